package config

import "time"

// Default returns the configuration used when nothing else is set. The intervals and caps match
// what the mod itself uses.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendLocal,
			BaseDir: "./SST/api",
			Backup:  true,
			SFTP:    SFTPConfig{Port: 22, Timeout: 10 * time.Second},
			FTP:     FTPConfig{Port: 21, Timeout: 10 * time.Second},
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "sst:",
				Timeout:   5 * time.Second,
			},
		},
		Consumer: ConsumerConfig{
			Interval:        2 * time.Second,
			Debounce:        300 * time.Millisecond,
			StateDir:        "./sst-state",
			ShutdownTimeout: 30 * time.Second,
		},
		Retention: RetentionConfig{
			KeepProcessed:   50,
			ProcessedMaxAge: 24 * time.Hour,
			MaxResults:      100,
		},
		Producer: ProducerConfig{
			PollInterval:    500 * time.Millisecond,
			PollTimeout:     10 * time.Second,
			EnqueueAttempts: 3,
			ArchiveMaxAge:   30 * 24 * time.Hour,
		},
		API: APIConfig{
			Listen:         ":8090",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Audit:   AuditConfig{Enabled: true, MaxSizeMB: 100, Checksum: true},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
