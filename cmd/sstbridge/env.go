package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sudoservertools/sstbridge/internal/config"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// Exit codes shared by the producer commands.
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitPending = 3
	exitFailed  = 4
)

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg   *config.Config
	log   *log.Logger
	store storage.Store
}

func newFlagSet(name string) (*flag.FlagSet, *config.Flags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, config.RegisterFlags(fs)
}

// parseArgs lets flags appear before, between or after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func loadConfig(f *config.Flags) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(f)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, logger, nil
}

func openEnv(ctx context.Context, f *config.Flags) (*env, error) {
	cfg, logger, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	return &env{cfg: cfg, log: logger, store: store}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("close storage: %v", err)
	}
}

func (e *env) retention() queue.Retention {
	return queue.Retention{
		KeepProcessed:   e.cfg.Retention.KeepProcessed,
		ProcessedMaxAge: e.cfg.Retention.ProcessedMaxAge,
		MaxResults:      e.cfg.Retention.MaxResults,
	}
}

func (e *env) producerOptions() queue.ProducerOptions {
	return queue.ProducerOptions{
		PollInterval:    e.cfg.Producer.PollInterval,
		PollTimeout:     e.cfg.Producer.PollTimeout,
		EnqueueAttempts: e.cfg.Producer.EnqueueAttempts,
		Logger:          e.log,
	}
}

// readPayload accepts inline JSON, @file or - for stdin.
func readPayload(arg string) (json.RawMessage, error) {
	var data []byte
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(arg[1:])
	default:
		data = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return data, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
