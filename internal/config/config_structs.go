// Package config loads sstbridge settings: defaults, then a YAML file, then SST_* environment
// variables, then command-line flags.
package config

import "time"

// Config is the complete runtime configuration shared by the consumer, the API and the CLI.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Retention RetentionConfig `yaml:"retention"`
	Producer  ProducerConfig  `yaml:"producer"`
	API       APIConfig       `yaml:"api"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Features  []string        `yaml:"features"`
}

// Storage backends.
const (
	BackendLocal = "local"
	BackendSFTP  = "sftp"
	BackendFTP   = "ftp"
	BackendRedis = "redis"
)

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	BaseDir string      `yaml:"base_dir"`
	Backup  bool        `yaml:"backup"`
	SFTP    SFTPConfig  `yaml:"sftp"`
	FTP     FTPConfig   `yaml:"ftp"`
	Redis   RedisConfig `yaml:"redis"`
}

type SFTPConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	KeyFile    string        `yaml:"key_file"`
	KnownHosts string        `yaml:"known_hosts"`
	Timeout    time.Duration `yaml:"timeout"`
}

type FTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	TLS      bool          `yaml:"tls"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ConsumerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Debounce        time.Duration `yaml:"debounce"`
	StateDir        string        `yaml:"state_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WorldFile seeds the in-memory world used when no game runtime is attached.
	WorldFile string `yaml:"world_file"`
}

type RetentionConfig struct {
	KeepProcessed   int           `yaml:"keep_processed"`
	ProcessedMaxAge time.Duration `yaml:"processed_max_age"`
	MaxResults      int           `yaml:"max_results"`
}

type ProducerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	EnqueueAttempts int           `yaml:"enqueue_attempts"`
	ArchivePath     string        `yaml:"archive_path"`
	ArchiveMaxAge   time.Duration `yaml:"archive_max_age"`
}

type APIConfig struct {
	Listen         string  `yaml:"listen"`
	APIKey         string  `yaml:"api_key"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	// TrustProxy takes the client address from X-Forwarded-For. Leave off unless a reverse
	// proxy overwrites that header.
	TrustProxy bool `yaml:"trust_proxy"`
}

type AuditConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxSizeMB int  `yaml:"max_size_mb"`
	Checksum  bool `yaml:"checksum"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
