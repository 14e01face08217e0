package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "SST_"

func loadStorageFromEnv(cfg *StorageConfig) {
	if v := getEnvString("STORAGE_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := getEnvString("STORAGE_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v, ok := getEnvBool("STORAGE_BACKUP"); ok {
		cfg.Backup = v
	}

	if v := getEnvString("SFTP_HOST"); v != "" {
		cfg.SFTP.Host = v
	}
	if v := getEnvInt("SFTP_PORT"); v != 0 {
		cfg.SFTP.Port = v
	}
	if v := getEnvString("SFTP_USER"); v != "" {
		cfg.SFTP.User = v
	}
	if v := getEnvString("SFTP_PASSWORD"); v != "" {
		cfg.SFTP.Password = v
	}
	if v := getEnvString("SFTP_KEY_FILE"); v != "" {
		cfg.SFTP.KeyFile = v
	}
	if v := getEnvString("SFTP_KNOWN_HOSTS"); v != "" {
		cfg.SFTP.KnownHosts = v
	}
	if v := getEnvDuration("SFTP_TIMEOUT"); v != 0 {
		cfg.SFTP.Timeout = v
	}

	if v := getEnvString("FTP_HOST"); v != "" {
		cfg.FTP.Host = v
	}
	if v := getEnvInt("FTP_PORT"); v != 0 {
		cfg.FTP.Port = v
	}
	if v := getEnvString("FTP_USER"); v != "" {
		cfg.FTP.User = v
	}
	if v := getEnvString("FTP_PASSWORD"); v != "" {
		cfg.FTP.Password = v
	}
	if v, ok := getEnvBool("FTP_TLS"); ok {
		cfg.FTP.TLS = v
	}
	if v := getEnvDuration("FTP_TIMEOUT"); v != 0 {
		cfg.FTP.Timeout = v
	}

	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := getEnvString("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := getEnvInt("REDIS_DB"); v != 0 {
		cfg.Redis.DB = v
	}
	if v := getEnvString("REDIS_KEY_PREFIX"); v != "" {
		cfg.Redis.KeyPrefix = v
	}
	if v := getEnvDuration("REDIS_TIMEOUT"); v != 0 {
		cfg.Redis.Timeout = v
	}
}

func loadConsumerFromEnv(cfg *ConsumerConfig) {
	if v := getEnvDuration("CONSUMER_INTERVAL"); v != 0 {
		cfg.Interval = v
	}
	if v := getEnvDuration("CONSUMER_DEBOUNCE"); v != 0 {
		cfg.Debounce = v
	}
	if v := getEnvString("CONSUMER_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := getEnvDuration("CONSUMER_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
	if v := getEnvString("CONSUMER_WORLD_FILE"); v != "" {
		cfg.WorldFile = v
	}
}

func loadRetentionFromEnv(cfg *RetentionConfig) {
	if v := getEnvInt("RETENTION_KEEP_PROCESSED"); v != 0 {
		cfg.KeepProcessed = v
	}
	if v := getEnvDuration("RETENTION_PROCESSED_MAX_AGE"); v != 0 {
		cfg.ProcessedMaxAge = v
	}
	if v := getEnvInt("RETENTION_MAX_RESULTS"); v != 0 {
		cfg.MaxResults = v
	}
}

func loadProducerFromEnv(cfg *ProducerConfig) {
	if v := getEnvDuration("PRODUCER_POLL_INTERVAL"); v != 0 {
		cfg.PollInterval = v
	}
	if v := getEnvDuration("PRODUCER_POLL_TIMEOUT"); v != 0 {
		cfg.PollTimeout = v
	}
	if v := getEnvInt("PRODUCER_ENQUEUE_ATTEMPTS"); v != 0 {
		cfg.EnqueueAttempts = v
	}
	if v := getEnvString("PRODUCER_ARCHIVE_PATH"); v != "" {
		cfg.ArchivePath = v
	}
	if v := getEnvDuration("PRODUCER_ARCHIVE_MAX_AGE"); v != 0 {
		cfg.ArchiveMaxAge = v
	}
}

func loadAPIFromEnv(cfg *APIConfig) {
	if v := getEnvString("API_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := getEnvString("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := getEnvFloat("API_RATE_LIMIT_RPS"); v != 0 {
		cfg.RateLimitRPS = v
	}
	if v := getEnvInt("API_RATE_LIMIT_BURST"); v != 0 {
		cfg.RateLimitBurst = v
	}
	if v, ok := getEnvBool("API_TRUST_PROXY"); ok {
		cfg.TrustProxy = v
	}
}

func loadMiscFromEnv(cfg *Config) {
	if v, ok := getEnvBool("AUDIT_ENABLED"); ok {
		cfg.Audit.Enabled = v
	}
	if v := getEnvInt("AUDIT_MAX_SIZE_MB"); v != 0 {
		cfg.Audit.MaxSizeMB = v
	}
	if v, ok := getEnvBool("AUDIT_CHECKSUM"); ok {
		cfg.Audit.Checksum = v
	}
	if v := getEnvString("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getEnvString("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := getEnvString("FEATURES"); v != "" {
		cfg.Features = splitList(v)
	}
}

// Helper functions for reading environment variables. Unparseable values are ignored.

func getEnvString(key string) string {
	return os.Getenv(envPrefix + key)
}

func getEnvInt(key string) int {
	if v := getEnvString(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return 0
}

func getEnvFloat(key string) float64 {
	if v := getEnvString(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func getEnvDuration(key string) time.Duration {
	if v := getEnvString(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 0
}

func getEnvBool(key string) (bool, bool) {
	v := getEnvString(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
