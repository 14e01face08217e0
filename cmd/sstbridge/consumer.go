package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sudoservertools/sstbridge/internal/audit"
	"github.com/sudoservertools/sstbridge/internal/daemon"
	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
	"github.com/sudoservertools/sstbridge/internal/world"
)

func runConsumer(args []string) int {
	fs, flags := newFlagSet("consumer")
	if _, err := parseArgs(fs, args); err != nil {
		return exitUsage
	}

	ctx := context.Background()
	e, err := openEnv(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		return exitError
	}
	defer e.close()

	w, err := loadWorld(e.cfg.Consumer.WorldFile, e.log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		return exitError
	}
	reg, err := feature.NewRegistry(w, e.log, e.cfg.Features)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		return exitError
	}

	opts := queue.ReconcilerOptions{Retention: e.retention(), Logger: e.log}
	if e.cfg.Audit.Enabled {
		path := filepath.Join(e.cfg.Consumer.StateDir, audit.FileName)
		al, err := audit.Open(path, int64(e.cfg.Audit.MaxSizeMB)<<20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
			return exitError
		}
		defer func() { _ = al.Close() }()
		al.EnableChecksum(e.cfg.Audit.Checksum)
		opts.Audit = al
	}
	rec := queue.NewReconciler(e.store, reg, opts)

	d, err := daemon.New(daemon.Options{
		Config:     e.cfg.Consumer,
		Store:      e.store,
		Reconciler: rec,
		WatchDir:   storage.WatchDir(e.store),
		Logger:     e.log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		return exitError
	}
	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		return exitError
	}
	return exitOK
}

// loadWorld seeds the simulated game runtime from a snapshot file, or the built-in catalogue.
func loadWorld(path string, logger *log.Logger) (world.World, error) {
	if path == "" {
		logger.Warn("no world file configured, using the built-in catalogue with no players online")
		return world.NewMemory(world.DefaultSnapshot()), nil
	}
	w, err := world.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return w, nil
}
