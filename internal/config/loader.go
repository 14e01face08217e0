package config

import (
	"fmt"
	"os"
)

// Load builds the configuration with precedence defaults → file → environment → flags and
// validates the result. f may be nil.
func Load(f *Flags) (*Config, error) {
	cfg := Default()

	path := ""
	if f != nil {
		path = f.ConfigPath
	}
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	loadStorageFromEnv(&cfg.Storage)
	loadConsumerFromEnv(&cfg.Consumer)
	loadRetentionFromEnv(&cfg.Retention)
	loadProducerFromEnv(&cfg.Producer)
	loadAPIFromEnv(&cfg.API)
	loadMiscFromEnv(cfg)

	applyFlags(cfg, f)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
