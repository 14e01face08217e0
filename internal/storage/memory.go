package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store, used by tests across packages.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memFile
	now   func() time.Time
}

type memFile struct {
	data    []byte
	modTime time.Time
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string]memFile), now: time.Now}
}

func (m *Memory) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[clean]
	if !ok {
		return nil, notExist("read", p)
	}
	return append([]byte(nil), f.data...), nil
}

func (m *Memory) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean] = memFile{data: append([]byte(nil), data...), modTime: m.now()}
	return nil
}

func (m *Memory) Stat(ctx context.Context, p string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	clean, err := CleanPath(p)
	if err != nil {
		return FileInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[clean]
	if !ok {
		return FileInfo{}, notExist("stat", p)
	}
	return FileInfo{Path: p, Size: int64(len(f.data)), ModTime: f.modTime}, nil
}

// Paths lists stored paths. Order is unspecified.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	return out
}

func (m *Memory) Close() error { return nil }
