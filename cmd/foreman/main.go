package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/checkpoint"
	"foreman.ai/internal/guardian"
	"foreman.ai/internal/manager"
	"foreman.ai/internal/transport/wsport"
)

func main() {
	var (
		url          = flag.String("url", "ws://localhost:8080/v1/ws", "world ws url")
		name         = flag.String("name", "foreman", "agent name")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		materials    = flag.String("materials", "", "path to materials.json capability tables (default: built-in)")
		thresholds   = flag.String("thresholds", "", "path to guardian thresholds yaml (default: built-in)")
		bpPath       = flag.String("blueprint", "", "blueprint json path, or a catalog name with -blueprints (build/validate modes)")
		bpDir        = flag.String("blueprints", "", "directory of blueprint catalogs; -blueprint then names an entry")
		resumeID     = flag.String("resume", "", "session id to resume")
		list         = flag.Bool("list", false, "list resumable sessions and exit")
		validateOnly = flag.Bool("validate", false, "verify an existing build against the blueprint, no construction")
		force        = flag.Bool("force", false, "proceed despite a failing pre-build gate")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[foreman] ", log.LstdFlags|log.Lmicroseconds)

	tables := catalogs.Default()
	if *materials != "" {
		t, err := catalogs.Load(*materials)
		if err != nil {
			logger.Fatalf("load materials: %v", err)
		}
		tables = t
	}

	th := guardian.DefaultThresholds()
	if *thresholds != "" {
		t, err := guardian.LoadThresholds(*thresholds)
		if err != nil {
			logger.Fatalf("load thresholds: %v", err)
		}
		th = t
	}

	store, err := checkpoint.Open(filepath.Join(*dataDir, "checkpoints"))
	if err != nil {
		logger.Fatalf("open checkpoint store: %v", err)
	}
	defer store.Close()

	events := buildlog.NewLogger(*dataDir)
	defer events.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := wsport.Dial(ctx, *url, *name)
	if err != nil {
		logger.Fatalf("connect world: %v", err)
	}
	defer client.Close()
	logger.Printf("connected as %s", client.AgentID())

	mgr := manager.New(client, store, tables, th, manager.Config{
		Logger: logger,
		Events: events,
	})

	switch {
	case *list:
		sessions, err := mgr.ListSessions()
		if err != nil {
			logger.Fatalf("list sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-12s  %3d checkpoints  phase=%s  updated=%s\n",
				s.SessionID, s.BuildingType, s.Checkpoints, s.LastPhase,
				s.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return

	case *resumeID != "":
		rep, err := mgr.Resume(ctx, *resumeID, manager.Options{Force: *force})
		if err != nil {
			logger.Fatalf("resume: %v", err)
		}
		printReport(rep)

	case *validateOnly:
		bp := mustBlueprint(logger, *bpDir, *bpPath)
		rep, err := mgr.Validate(ctx, bp)
		if err != nil {
			logger.Fatalf("validate: %v", err)
		}
		printReport(rep)

	default:
		bp := mustBlueprint(logger, *bpDir, *bpPath)
		rep, err := mgr.Build(ctx, bp, manager.Options{Force: *force})
		if err != nil {
			if rep != nil && rep.PreBuild != nil {
				printReport(rep)
			}
			logger.Fatalf("build: %v", err)
		}
		printReport(rep)
	}
}

func mustBlueprint(logger *log.Logger, dir, name string) *blueprint.Blueprint {
	if strings.TrimSpace(name) == "" {
		logger.Fatalf("-blueprint is required")
	}
	if dir != "" {
		catalog, err := blueprint.LoadDir(dir)
		if err != nil {
			logger.Fatalf("load blueprints from %s: %v", dir, err)
		}
		bp, ok := catalog[name]
		if !ok {
			logger.Fatalf("blueprint %q not found in %s (%d available)", name, dir, len(catalog))
		}
		return bp
	}
	bp, err := blueprint.Load(name)
	if err != nil {
		logger.Fatalf("load blueprint: %v", err)
	}
	return bp
}

func printReport(rep *manager.Report) {
	b, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(b))
}
