// Package checkpoint persists durable snapshots of build-session progress.
// Each checkpoint is one zstd-compressed file (JSON header line followed by
// a gob body) plus a row in a sqlite manifest. The manifest, not filename
// prefix matching, is the source of truth for session discovery.
package checkpoint

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
}

type BlockV1 struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

type BlueprintV1 struct {
	BuildingType string    `json:"building_type"`
	ClearArea    bool      `json:"clear_area"`
	LevelGround  bool      `json:"level_ground"`
	Blocks       []BlockV1 `json:"blocks"`
}

type FailedBlockV1 struct {
	Block  BlockV1 `json:"block"`
	Reason string  `json:"reason"`
}

type ProgressV1 struct {
	TotalBlocks     int             `json:"total_blocks"`
	PlacedBlocks    int             `json:"placed_blocks"`
	Failed          []FailedBlockV1 `json:"failed,omitempty"`
	CompletedPhases []string        `json:"completed_phases,omitempty"`
}

type ItemStackV1 struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type CheckpointV1 struct {
	Header Header `json:"header"`

	Timestamp   time.Time     `json:"timestamp"`
	Phase       string        `json:"phase"`
	Progress    ProgressV1    `json:"progress"`
	AgentPos    [3]int        `json:"agent_pos"`
	Inventory   []ItemStackV1 `json:"inventory,omitempty"`
	Description string        `json:"description,omitempty"`
	Blueprint   BlueprintV1   `json:"blueprint"`
}

// WriteFile writes one checkpoint file and fsyncs it before returning. A
// crash immediately after WriteFile returns can never lose the checkpoint.
func WriteFile(path string, cp CheckpointV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(cp.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = f.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&cp); err != nil {
		_ = f.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads one checkpoint file written by WriteFile.
func ReadFile(path string) (CheckpointV1, error) {
	var cp CheckpointV1
	f, err := os.Open(path)
	if err != nil {
		return cp, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return cp, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is advisory; the gob body carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&cp); err != nil {
		return cp, fmt.Errorf("gob decode: %w", err)
	}
	return cp, nil
}
