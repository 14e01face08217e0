package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "unknown storage backend"},
		{"sftp missing host", func(c *Config) { c.Storage.Backend = BackendSFTP }, "host and user"},
		{"sftp missing auth", func(c *Config) {
			c.Storage.Backend = BackendSFTP
			c.Storage.SFTP.Host = "h"
			c.Storage.SFTP.User = "u"
		}, "password or key_file"},
		{"sftp ok", func(c *Config) {
			c.Storage.Backend = BackendSFTP
			c.Storage.SFTP.Host = "h"
			c.Storage.SFTP.User = "u"
			c.Storage.SFTP.KeyFile = "/k"
		}, ""},
		{"ftp missing host", func(c *Config) { c.Storage.Backend = BackendFTP }, "requires host"},
		{"redis missing address", func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.Address = ""
		}, "requires address"},
		{"zero interval", func(c *Config) { c.Consumer.Interval = 0 }, "interval must be positive"},
		{"zero max results", func(c *Config) { c.Retention.MaxResults = 0 }, "max_results"},
		{"negative keep", func(c *Config) { c.Retention.KeepProcessed = -1 }, "keep_processed"},
		{"zero attempts", func(c *Config) { c.Producer.EnqueueAttempts = 0 }, "enqueue_attempts"},
		{"rps without burst", func(c *Config) { c.API.RateLimitBurst = 0 }, "rate_limit_burst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
