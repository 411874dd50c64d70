package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned by Latest when no checkpoint exists for
// the requested session id.
var ErrSessionNotFound = errors.New("session not found")

// Store owns the checkpoint directory and its sqlite manifest. Writes are
// synchronous: Append returns only after the checkpoint file is fsynced and
// the manifest row committed, so a completed checkpoint survives a crash.
type Store struct {
	dir string

	mu sync.Mutex
	db *sql.DB
}

type SessionInfo struct {
	SessionID    string
	BuildingType string
	Checkpoints  int
	LastPhase    string
	UpdatedAt    time.Time
}

func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty checkpoint dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{dir: dir, db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps the synchronous manifest writes cheap.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			phase TEXT NOT NULL,
			placed_blocks INTEGER NOT NULL,
			total_blocks INTEGER NOT NULL,
			description TEXT,
			path TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			building_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) pathFor(sessionID string, seq int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_checkpoint_%06d.ckpt.zst", sessionID, seq))
}

// NextSeq returns the next append sequence number for a session. Fresh
// sessions start at 0; resumed sessions continue where the manifest ends.
func (s *Store) NextSeq(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next int
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM checkpoints WHERE session_id = ?`,
		sessionID,
	).Scan(&next)
	return next, err
}

// Append persists one checkpoint: file first (fsynced), manifest row
// second. If the manifest insert fails the orphaned file is removed so the
// two stores cannot disagree.
func (s *Store) Append(cp CheckpointV1) error {
	if cp.Header.SessionID == "" {
		return fmt.Errorf("checkpoint: empty session id")
	}
	path := s.pathFor(cp.Header.SessionID, cp.Header.Seq)
	if err := WriteFile(path, cp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.Begin()
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO checkpoints (session_id, seq, phase, placed_blocks, total_blocks, description, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.Header.SessionID, cp.Header.Seq, cp.Phase,
		cp.Progress.PlacedBlocks, cp.Progress.TotalBlocks,
		cp.Description, path, now,
	); err != nil {
		_ = tx.Rollback()
		_ = os.Remove(path)
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO sessions (session_id, building_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		cp.Header.SessionID, cp.Blueprint.BuildingType, now, now,
	); err != nil {
		_ = tx.Rollback()
		_ = os.Remove(path)
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// Latest reads back the newest checkpoint for a session.
func (s *Store) Latest(sessionID string) (CheckpointV1, error) {
	s.mu.Lock()
	var path string
	err := s.db.QueryRow(
		`SELECT path FROM checkpoints WHERE session_id = ? ORDER BY seq DESC LIMIT 1`,
		sessionID,
	).Scan(&path)
	s.mu.Unlock()

	if errors.Is(err, sql.ErrNoRows) {
		return CheckpointV1{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return CheckpointV1{}, err
	}
	return ReadFile(path)
}

// ListSessions returns every known session with its checkpoint count and
// last recorded phase, newest first.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT c.session_id,
		       s.building_type,
		       COUNT(*),
		       (SELECT phase FROM checkpoints c2
		        WHERE c2.session_id = c.session_id
		        ORDER BY c2.seq DESC LIMIT 1),
		       MAX(c.created_at)
		FROM checkpoints c
		JOIN sessions s ON s.session_id = c.session_id
		GROUP BY c.session_id
		ORDER BY MAX(c.created_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updated string
		if err := rows.Scan(&info.SessionID, &info.BuildingType, &info.Checkpoints, &info.LastPhase, &updated); err != nil {
			return nil, err
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, info)
	}
	return out, rows.Err()
}
