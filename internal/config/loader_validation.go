package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration constraints.
func Validate(cfg *Config) error {
	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := validateConsumer(&cfg.Consumer); err != nil {
		return err
	}
	if err := validateRetention(&cfg.Retention); err != nil {
		return err
	}
	if err := validateProducer(&cfg.Producer); err != nil {
		return err
	}
	return validateAPI(&cfg.API)
}

func validateStorage(cfg *StorageConfig) error {
	switch cfg.Backend {
	case BackendLocal:
		if cfg.BaseDir == "" {
			return errors.New("storage base_dir cannot be empty")
		}
	case BackendSFTP:
		if cfg.SFTP.Host == "" || cfg.SFTP.User == "" {
			return errors.New("sftp backend requires host and user")
		}
		if cfg.SFTP.Password == "" && cfg.SFTP.KeyFile == "" {
			return errors.New("sftp backend requires password or key_file")
		}
		if cfg.SFTP.Port <= 0 || cfg.SFTP.Port > 65535 {
			return fmt.Errorf("sftp port out of range: %d", cfg.SFTP.Port)
		}
	case BackendFTP:
		if cfg.FTP.Host == "" {
			return errors.New("ftp backend requires host")
		}
		if cfg.FTP.Port <= 0 || cfg.FTP.Port > 65535 {
			return fmt.Errorf("ftp port out of range: %d", cfg.FTP.Port)
		}
	case BackendRedis:
		if cfg.Redis.Address == "" {
			return errors.New("redis backend requires address")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return nil
}

func validateConsumer(cfg *ConsumerConfig) error {
	if cfg.Interval <= 0 {
		return errors.New("consumer interval must be positive")
	}
	if cfg.Debounce < 0 {
		return errors.New("consumer debounce cannot be negative")
	}
	if cfg.StateDir == "" {
		return errors.New("consumer state_dir cannot be empty")
	}
	return nil
}

func validateRetention(cfg *RetentionConfig) error {
	if cfg.KeepProcessed < 0 {
		return errors.New("retention keep_processed cannot be negative")
	}
	if cfg.ProcessedMaxAge < 0 {
		return errors.New("retention processed_max_age cannot be negative")
	}
	if cfg.MaxResults < 1 {
		return errors.New("retention max_results must be positive")
	}
	return nil
}

func validateProducer(cfg *ProducerConfig) error {
	if cfg.PollInterval <= 0 {
		return errors.New("producer poll_interval must be positive")
	}
	if cfg.PollTimeout <= 0 {
		return errors.New("producer poll_timeout must be positive")
	}
	if cfg.EnqueueAttempts < 1 {
		return errors.New("producer enqueue_attempts must be at least 1")
	}
	if cfg.ArchiveMaxAge < 0 {
		return errors.New("producer archive_max_age cannot be negative")
	}
	return nil
}

func validateAPI(cfg *APIConfig) error {
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return errors.New("api rate limits cannot be negative")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst == 0 {
		return errors.New("api rate_limit_burst must be positive when rate_limit_rps is set")
	}
	return nil
}
