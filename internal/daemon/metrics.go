package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// MetricsFile is written next to the queue files so the mod side and the API can see that a
// consumer is alive.
const MetricsFile = "bridge_metrics.json"

// FeatureMetrics holds the current depth and cumulative counters for one feature.
type FeatureMetrics struct {
	Depth      int       `json:"depth"`
	Processed  int64     `json:"processed"`
	Succeeded  int64     `json:"succeeded"`
	Failed     int64     `json:"failed"`
	Coalesced  int64     `json:"coalesced"`
	Recovered  int64     `json:"recovered"`
	Pruned     int64     `json:"pruned"`
	Malformed  int64     `json:"malformed"`
	PassErrors int64     `json:"pass_errors"`
	LastError  string    `json:"last_error,omitempty"`
	LastPass   time.Time `json:"last_pass"`
}

type Metrics struct {
	SchemaVersion int                        `json:"schema_version"`
	PID           int                        `json:"pid"`
	StartedAt     time.Time                  `json:"started_at"`
	Heartbeat     time.Time                  `json:"heartbeat"`
	UpdatedAt     time.Time                  `json:"updated_at"`
	Scans         int64                      `json:"scans"`
	LastScanMS    int64                      `json:"last_scan_ms"`
	Unflushed     int                        `json:"unflushed"`
	Features      map[string]*FeatureMetrics `json:"features"`
}

// Depth sums the unprocessed records across features.
func (m *Metrics) Depth() int {
	n := 0
	for _, f := range m.Features {
		n += f.Depth
	}
	return n
}

// FeatureNames returns the feature keys in sorted order.
func (m *Metrics) FeatureNames() []string {
	names := make([]string, 0, len(m.Features))
	for name := range m.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// metricsRecorder accumulates scan counters and persists them through the store.
type metricsRecorder struct {
	store storage.Store
	path  string

	mu      sync.Mutex
	metrics Metrics
}

func newMetricsRecorder(store storage.Store, startedAt time.Time) *metricsRecorder {
	return &metricsRecorder{
		store: store,
		path:  MetricsFile,
		metrics: Metrics{
			SchemaVersion: 1,
			PID:           os.Getpid(),
			StartedAt:     startedAt,
			Features:      make(map[string]*FeatureMetrics),
		},
	}
}

// Load continues the counters of a previous run. A missing or unreadable file starts from zero.
func (mr *metricsRecorder) Load(ctx context.Context) error {
	data, err := mr.store.Read(ctx, mr.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read metrics: %w", err)
	}
	var prev Metrics
	if err := json.Unmarshal(data, &prev); err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.metrics.Scans = prev.Scans
	for name, f := range prev.Features {
		if f == nil {
			continue
		}
		cp := *f
		mr.metrics.Features[name] = &cp
	}
	return nil
}

// Observe folds one scan into the counters. Depth is absolute, everything else is additive.
func (mr *metricsRecorder) Observe(reports []queue.PassReport, scanStart time.Time, elapsed time.Duration, unflushed int) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	m := &mr.metrics
	m.Scans++
	m.LastScanMS = elapsed.Milliseconds()
	m.Heartbeat = scanStart.UTC()
	m.UpdatedAt = time.Now().UTC()
	m.Unflushed = unflushed

	for _, rep := range reports {
		f, ok := m.Features[rep.Feature]
		if !ok {
			f = &FeatureMetrics{}
			m.Features[rep.Feature] = f
		}
		f.LastPass = scanStart.UTC()
		if rep.Err != nil {
			f.PassErrors++
			f.LastError = rep.Err.Error()
			continue
		}
		f.LastError = ""
		f.Depth = rep.Depth
		f.Processed += int64(rep.Processed)
		f.Succeeded += int64(rep.Succeeded)
		f.Failed += int64(rep.Failed)
		f.Coalesced += int64(rep.Coalesced)
		f.Recovered += int64(rep.Recovered)
		f.Pruned += int64(rep.Pruned)
		if rep.Malformed {
			f.Malformed++
		}
	}
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (mr *metricsRecorder) Snapshot() Metrics {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	out := mr.metrics
	out.Features = make(map[string]*FeatureMetrics, len(mr.metrics.Features))
	for name, f := range mr.metrics.Features {
		cp := *f
		out.Features[name] = &cp
	}
	return out
}

// Flush writes the current snapshot to the metrics file.
func (mr *metricsRecorder) Flush(ctx context.Context) error {
	snap := mr.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := mr.store.Write(ctx, mr.path, append(data, '\n')); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// ReadMetrics loads the metrics file written by a consumer.
func ReadMetrics(ctx context.Context, store storage.Store) (Metrics, error) {
	data, err := store.Read(ctx, MetricsFile)
	if err != nil {
		return Metrics{}, err
	}
	var m Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return Metrics{}, fmt.Errorf("parse metrics: %w", err)
	}
	return m, nil
}
