package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sudoservertools/sstbridge/internal/jsonfile"
	"github.com/sudoservertools/sstbridge/internal/lock"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// grantFeature is a minimal item grant: it knows a fixed set of item classes.
type grantFeature struct {
	name    string
	classes map[string]bool
	calls   atomic.Int32
	exec    func(req model.Request) Outcome
}

func newGrantFeature() *grantFeature {
	return &grantFeature{name: "item_grant", classes: map[string]bool{"Apple": true, "BandageDressing": true}}
}

func (g *grantFeature) Name() string       { return g.name }
func (g *grantFeature) QueueFile() string  { return g.name + "s.json" }
func (g *grantFeature) ResultFile() string { return g.name + "s_results.json" }

func (g *grantFeature) Validate(raw json.RawMessage) error {
	var p struct {
		ItemClassName string `json:"itemClassName"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if p.ItemClassName == "" {
		return errors.New("itemClassName is required")
	}
	return nil
}

func (g *grantFeature) Execute(ctx context.Context, req model.Request) Outcome {
	g.calls.Add(1)
	if g.exec != nil {
		return g.exec(req)
	}
	var p struct {
		ItemClassName string `json:"itemClassName"`
		Quantity      int    `json:"quantity"`
	}
	if err := req.DecodePayload(&p); err != nil {
		return Failed("invalid payload: %v", err)
	}
	if !g.classes[p.ItemClassName] {
		return Failed("unknown item class")
	}
	return Succeeded("Spawned %dx %s", max(p.Quantity, 1), p.ItemClassName)
}

// hookStore wraps Memory with per-path read/write counters and injection points.
type hookStore struct {
	*storage.Memory

	mu          sync.Mutex
	reads       map[string]int
	writes      map[string]int
	afterRead   func(path string, n int)
	beforeWrite func(path string, n int) error
}

func newHookStore() *hookStore {
	return &hookStore{Memory: storage.NewMemory(), reads: map[string]int{}, writes: map[string]int{}}
}

func (h *hookStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := h.Memory.Read(ctx, path)
	h.mu.Lock()
	h.reads[path]++
	n, hook := h.reads[path], h.afterRead
	h.mu.Unlock()
	if hook != nil {
		hook(path, n)
	}
	return data, err
}

func (h *hookStore) Write(ctx context.Context, path string, data []byte) error {
	h.mu.Lock()
	h.writes[path]++
	n, hook := h.writes[path], h.beforeWrite
	h.mu.Unlock()
	if hook != nil {
		if err := hook(path, n); err != nil {
			return err
		}
	}
	return h.Memory.Write(ctx, path, data)
}

func (h *hookStore) writeCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes[path]
}

func mustRegistry(t *testing.T, fs ...Feature) *Registry {
	t.Helper()
	r, err := NewRegistry(fs...)
	require.NoError(t, err)
	return r
}

func newTestProducer(s storage.Store, reg *Registry, locks *lock.MutexMap) *Producer {
	return NewProducer(s, reg, ProducerOptions{
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  200 * time.Millisecond,
		Locks:        locks,
		Logger:       log.Discard(),
	})
}

func newTestReconciler(s storage.Store, reg *Registry, locks *lock.MutexMap) *Reconciler {
	return NewReconciler(s, reg, ReconcilerOptions{
		Retention: DefaultRetention(),
		Locks:     locks,
		Logger:    log.Discard(),
	})
}

func readQueue(t *testing.T, s storage.Store, path string) model.QueueFile {
	t.Helper()
	q, _, err := jsonfile.ReadQueue(context.Background(), s, path)
	require.NoError(t, err)
	return q
}

func readResults(t *testing.T, s storage.Store, path string) model.ResultFile {
	t.Helper()
	f, _, err := jsonfile.ReadResults(context.Background(), s, path)
	require.NoError(t, err)
	return f
}

func seedQueue(t *testing.T, s storage.Store, path string, raw string) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), path, []byte(raw)))
}

func countResults(f model.ResultFile, id string) int {
	n := 0
	for _, r := range f.Requests {
		if r.RequestID == id {
			n++
		}
	}
	return n
}

func apple(qty int) map[string]any {
	return map[string]any{"playerId": "76561198000000001", "itemClassName": "Apple", "quantity": qty}
}

func processedAt(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func idf(i int) string { return fmt.Sprintf("req-%03d", i) }
