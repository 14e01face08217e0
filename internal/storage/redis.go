package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sudoservertools/sstbridge/internal/config"
)

const mtimeSuffix = ":mtime"

// Redis keeps each file as a string value under prefix+path, with the write time in a
// companion key. SET replaces the whole value, which is all the queue layer needs.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis dials the configured server and verifies it with PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return &Redis{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return r.prefix + clean, nil
}

func (r *Redis) Read(ctx context.Context, p string) ([]byte, error) {
	key, err := r.key(p)
	if err != nil {
		return nil, err
	}
	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notExist("read", p)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (r *Redis) Write(ctx context.Context, p string, data []byte) error {
	key, err := r.key(p)
	if err != nil {
		return err
	}
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.Set(ctx, key+mtimeSuffix, now, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func (r *Redis) Stat(ctx context.Context, p string) (FileInfo, error) {
	key, err := r.key(p)
	if err != nil {
		return FileInfo{}, err
	}
	var exists *redis.IntCmd
	var size *redis.IntCmd
	var mtime *redis.StringCmd
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, key)
		size = pipe.StrLen(ctx, key)
		mtime = pipe.Get(ctx, key+mtimeSuffix)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	if exists.Val() == 0 {
		return FileInfo{}, notExist("stat", p)
	}
	info := FileInfo{Path: p, Size: size.Val()}
	if ns, err := strconv.ParseInt(mtime.Val(), 10, 64); err == nil {
		info.ModTime = time.Unix(0, ns)
	}
	return info, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
