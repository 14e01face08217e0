package storage

import (
	"context"
	"fmt"

	"github.com/sudoservertools/sstbridge/internal/config"
)

// Open builds the backend selected in cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return NewLocal(cfg.BaseDir, cfg.Backup)
	case config.BackendSFTP:
		return NewSFTP(cfg.SFTP, cfg.BaseDir)
	case config.BackendFTP:
		return NewFTP(cfg.FTP, cfg.BaseDir), nil
	case config.BackendRedis:
		return NewRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// WatchDir is the directory to watch for changes to s, or "" when s is not on this host.
func WatchDir(s Store) string {
	if l, ok := s.(*Local); ok {
		return l.Root()
	}
	return ""
}
