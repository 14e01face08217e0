// Package audit appends one JSON line per durable request outcome.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudoservertools/sstbridge/internal/model"
)

const (
	DefaultMaxSize = 100 * 1024 * 1024
	FileName       = "audit.jsonl"
	ArchiveDir     = "archive"
)

// Entry is one line of the trail.
type Entry struct {
	Timestamp   time.Time    `json:"timestamp"`
	EventID     string       `json:"event_id"`
	Feature     string       `json:"feature"`
	RequestID   string       `json:"request_id"`
	Status      model.Status `json:"status"`
	Message     string       `json:"message,omitempty"`
	ProcessedAt string       `json:"processed_at,omitempty"`
	Checksum    string       `json:"checksum,omitempty"`
}

// Log is an append-only JSONL file rotated into ArchiveDir when it would exceed maxSize.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	size     int64
	maxSize  int64
	path     string
	checksum bool
	rotated  int
	now      func() time.Time
}

// Open opens or creates the trail at path.
func Open(path string, maxSize int64) (*Log, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	l := &Log{path: path, maxSize: maxSize, checksum: true, now: time.Now}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: stat %s: %w", l.path, err)
	}
	l.file = f
	l.size = st.Size()
	return nil
}

// EnableChecksum toggles the per-entry SHA-256.
func (l *Log) EnableChecksum(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checksum = on
}

// Record appends the outcome of one request. It satisfies queue.AuditSink.
func (l *Log) Record(feature string, res model.Result) error {
	return l.Write(&Entry{
		Timestamp:   l.now().UTC(),
		EventID:     uuid.NewString(),
		Feature:     feature,
		RequestID:   res.RequestID,
		Status:      res.Status,
		Message:     res.Result,
		ProcessedAt: res.ProcessedAt,
	})
}

// Write appends e and syncs the file.
func (l *Log) Write(e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit: log closed")
	}
	if l.checksum {
		e.Checksum = checksum(*e)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	data = append(data, '\n')

	if l.size > 0 && l.size+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("audit: rotate: %w", err)
		}
	}
	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	l.size += int64(n)
	return nil
}

func (l *Log) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	dir := filepath.Join(filepath.Dir(l.path), ArchiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	l.rotated++
	base := strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
	name := fmt.Sprintf("%s.%s.%d%s", base, l.now().Format("20060102_150405"), l.rotated, filepath.Ext(l.path))
	if err := os.Rename(l.path, filepath.Join(dir, name)); err != nil {
		return err
	}
	return l.open()
}

func checksum(e Entry) string {
	e.Checksum = ""
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reads a trail and returns how many entries it holds and how many pass their
// checksum. Entries without a checksum count as valid; unparseable lines as invalid.
func Verify(path string) (total, valid int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		total++
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if e.Checksum == "" || checksum(e) == e.Checksum {
			valid++
		}
	}
	if err := sc.Err(); err != nil {
		return total, valid, fmt.Errorf("audit: scan %s: %w", path, err)
	}
	return total, valid, nil
}

func (l *Log) Path() string { return l.path }

func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
