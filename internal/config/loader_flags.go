package config

import (
	"flag"
	"time"
)

// Flags holds the command-line overrides. Zero values mean "not set".
type Flags struct {
	ConfigPath string

	Backend  string
	BaseDir  string
	StateDir string
	Listen   string
	APIKey   string
	LogLevel string
	Features string

	Interval    time.Duration
	PollTimeout time.Duration
	WorldFile   string
}

// RegisterFlags binds the shared flags onto fs. Each subcommand owns its FlagSet, so the
// flags are not package globals.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "path to YAML config file")
	fs.StringVar(&f.Backend, "backend", "", "storage backend (local|sftp|ftp|redis)")
	fs.StringVar(&f.BaseDir, "base-dir", "", "directory holding the queue and result files")
	fs.StringVar(&f.StateDir, "state-dir", "", "consumer state directory (lock, audit, control socket)")
	fs.StringVar(&f.Listen, "listen", "", "API listen address")
	fs.StringVar(&f.APIKey, "api-key", "", "API key required in X-Api-Key")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	fs.StringVar(&f.Features, "features", "", "comma-separated feature names (empty = all)")
	fs.DurationVar(&f.Interval, "interval", 0, "consumer reconciliation interval")
	fs.DurationVar(&f.PollTimeout, "poll-timeout", 0, "producer result poll timeout")
	fs.StringVar(&f.WorldFile, "world", "", "YAML or JSON world snapshot for the simulated game runtime")
	return f
}

func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if f.Backend != "" {
		cfg.Storage.Backend = f.Backend
	}
	if f.BaseDir != "" {
		cfg.Storage.BaseDir = f.BaseDir
	}
	if f.StateDir != "" {
		cfg.Consumer.StateDir = f.StateDir
	}
	if f.Listen != "" {
		cfg.API.Listen = f.Listen
	}
	if f.APIKey != "" {
		cfg.API.APIKey = f.APIKey
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.Features != "" {
		cfg.Features = splitList(f.Features)
	}
	if f.Interval != 0 {
		cfg.Consumer.Interval = f.Interval
	}
	if f.PollTimeout != 0 {
		cfg.Producer.PollTimeout = f.PollTimeout
	}
	if f.WorldFile != "" {
		cfg.Consumer.WorldFile = f.WorldFile
	}
}
