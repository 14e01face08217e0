package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sudoservertools/sstbridge/internal/api"
	"github.com/sudoservertools/sstbridge/internal/archive"
	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
)

func runAPI(args []string) int {
	fs, flags := newFlagSet("api")
	if _, err := parseArgs(fs, args); err != nil {
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		return exitError
	}
	defer e.close()

	reg, err := feature.NewRegistry(nil, e.log, e.cfg.Features)
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		return exitError
	}

	popts := e.producerOptions()
	var arc *archive.Archive
	if path := e.cfg.Producer.ArchivePath; path != "" {
		arc, err = archive.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "api: %v\n", err)
			return exitError
		}
		defer func() { _ = arc.Close() }()
		popts.Archive = arc

		compactCtx, cancelCompact := context.WithCancel(ctx)
		defer cancelCompact()
		go compactLoop(compactCtx, arc, e.cfg.Producer.ArchiveMaxAge, e.log)
	}
	producer := queue.NewProducer(e.store, reg, popts)

	srv := api.New(api.Options{
		Producer:          producer,
		Store:             e.store,
		Archive:           arc,
		APIKey:            e.cfg.API.APIKey,
		RateLimitRPS:      e.cfg.API.RateLimitRPS,
		RateLimitBurst:    e.cfg.API.RateLimitBurst,
		TrustForwardedFor: e.cfg.API.TrustProxy,
		StaleAfter:        max(30*time.Second, 5*e.cfg.Consumer.Interval),
		Logger:            e.log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(e.cfg.API.Listen) }()
	e.log.Info("api listening on %s (features: %v)", e.cfg.API.Listen, reg.Names())

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "api: %v\n", err)
			return exitError
		}
		return exitOK
	case <-ctx.Done():
	}

	e.log.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Consumer.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "api: shutdown: %v\n", err)
		return exitError
	}
	return exitOK
}

// compactLoop trims the archive hourly until ctx is done.
func compactLoop(ctx context.Context, arc *archive.Archive, maxAge time.Duration, logger *log.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if n, err := arc.Compact(maxAge); err != nil {
			logger.Warn("%v", err)
		} else if n > 0 {
			logger.Info("archive compacted: %d outcomes older than %s removed", n, maxAge)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
