package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudoservertools/sstbridge/internal/archive"
	"github.com/sudoservertools/sstbridge/internal/daemon"
	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
	"github.com/sudoservertools/sstbridge/internal/world"
)

const player = "76561198000000001"

type env struct {
	store    *storage.Memory
	producer *queue.Producer
	consumer *queue.Reconciler
	handler  http.Handler
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()
	store := storage.NewMemory()

	s := world.DefaultSnapshot()
	s.Players = []world.PlayerState{{ID: player, Name: "Survivor"}}
	consumerReg, err := feature.NewRegistry(world.NewMemory(s), log.Discard(), nil)
	require.NoError(t, err)
	producerReg, err := feature.NewRegistry(nil, log.Discard(), nil)
	require.NoError(t, err)

	e := &env{
		store:    store,
		consumer: queue.NewReconciler(store, consumerReg, queue.ReconcilerOptions{Logger: log.Discard()}),
	}
	opts := Options{Store: store, Logger: log.Discard()}
	var archiveOpt queue.ResultArchive
	if mutate != nil {
		mutate(&opts)
		if opts.Archive != nil {
			archiveOpt = opts.Archive
		}
	}
	e.producer = queue.NewProducer(store, producerReg, queue.ProducerOptions{
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Second,
		Archive:      archiveOpt,
		Logger:       log.Discard(),
	})
	opts.Producer = e.producer
	e.handler = New(opts).Handler()
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *env) pass(t *testing.T) {
	t.Helper()
	_, err := e.consumer.PassAll(context.Background())
	require.NoError(t, err)
}

// runConsumer reconciles in the background until the test ends.
func (e *env) runConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() { cancel(); <-done })
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = e.consumer.PassAll(ctx)
			}
		}
	}()
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func grantBody(class string) map[string]any {
	return map[string]any{"playerId": player, "itemClassName": class, "quantity": 1}
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[healthResp](t, rr)
	assert.Equal(t, "degraded", resp.Status, "no consumer has written metrics yet")
	assert.Len(t, resp.Features, 5)

	m := daemon.Metrics{Heartbeat: time.Now().UTC(), Features: map[string]*daemon.FeatureMetrics{
		feature.ItemGrantName: {Depth: 2},
	}}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, e.store.Write(context.Background(), daemon.MetricsFile, data))

	resp = decode[healthResp](t, e.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Consumer)
	assert.Equal(t, 2, resp.Consumer.Depth)
	assert.False(t, resp.Consumer.Stale)
	assert.Equal(t, []string{feature.ItemGrantName}, resp.Consumer.Features)
}

func TestListFeatures(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodGet, "/api/features", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode[[]featureResp](t, rr)
	require.Len(t, out, 5)
	assert.Equal(t, feature.ItemGrantName, out[0].Name)
	assert.Equal(t, "item_grants.json", out[0].QueueFile)
	assert.Equal(t, "item_grants_results.json", out[0].ResultFile)
}

func TestEnqueue_ThenStatus(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/item_grant/requests", grantBody("Apple"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[enqueueResp](t, rr)
	require.True(t, model.IsULID(created.RequestID))
	assert.Equal(t, model.StatusPending, created.Status)

	pending := decode[[]map[string]any](t, e.do(t, http.MethodGet, "/api/item_grant/pending", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, created.RequestID, pending[0]["requestId"])

	rr = e.do(t, http.MethodGet, "/api/item_grant/requests/"+created.RequestID, nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	e.pass(t)

	rr = e.do(t, http.MethodGet, "/api/item_grant/requests/"+created.RequestID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[model.Result](t, rr)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, "Item Apple added to inventory", res.Result)

	results := decode[[]model.Result](t, e.do(t, http.MethodGet, "/api/item_grant/results", nil))
	assert.Len(t, results, 1)
	assert.Empty(t, decode[[]map[string]any](t, e.do(t, http.MethodGet, "/api/item_grant/pending", nil)))
}

func TestEnqueue_WaitForOutcome(t *testing.T) {
	e := newEnv(t, nil)
	e.runConsumer(t)

	rr := e.do(t, http.MethodPost, "/api/item_grant/requests?wait=5s", grantBody("InvalidItemClass"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[enqueueResp](t, rr)
	assert.Equal(t, model.StatusFailed, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "unknown item class", resp.Result.Result)
}

func TestEnqueue_WaitTimesOut(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodPost, "/api/item_grant/requests?wait=30ms", grantBody("Apple"))
	require.Equal(t, http.StatusAccepted, rr.Code)
	resp := decode[enqueueResp](t, rr)
	assert.Equal(t, model.StatusPending, resp.Status)
	assert.Nil(t, resp.Result)
}

func TestEnqueue_Errors(t *testing.T) {
	e := newEnv(t, nil)

	body := grantBody("Apple")
	body["requestId"] = "r1"
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/item_grant/requests", body).Code)

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{"duplicate id", "/api/item_grant/requests", body, http.StatusConflict},
		{"bad player id", "/api/item_grant/requests", map[string]any{"playerId": "123", "itemClassName": "Apple", "quantity": 1}, http.StatusBadRequest},
		{"unknown feature", "/api/teleport_all/requests", grantBody("Apple"), http.StatusNotFound},
		{"non-object body", "/api/item_grant/requests", []int{1, 2}, http.StatusBadRequest},
		{"numeric request id", "/api/item_grant/requests", map[string]any{"requestId": 7}, http.StatusBadRequest},
		{"bad wait", "/api/item_grant/requests?wait=soon", grantBody("Apple"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[errorResp](t, rr).Error)
		})
	}
}

func TestStatus_NotFound(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodGet, "/api/item_grant/requests/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestResults_FromArchive(t *testing.T) {
	arc, err := archive.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = arc.Close() })

	e := newEnv(t, func(o *Options) { o.Archive = arc })
	created := decode[enqueueResp](t, e.do(t, http.MethodPost, "/api/item_grant/requests", grantBody("Apple")))
	e.pass(t)

	// the status lookup archives the outcome
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/item_grant/requests/"+created.RequestID, nil).Code)

	rr := e.do(t, http.MethodGet, "/api/item_grant/results?source=archive&limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	archived := decode[[]model.Result](t, rr)
	require.Len(t, archived, 1)
	assert.Equal(t, created.RequestID, archived[0].RequestID)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/item_grant/results?source=archive&limit=0", nil).Code)
}

func TestResults_ArchiveNotConfigured(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodGet, "/api/item_grant/results?source=archive", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAuth(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.APIKey = "s3cret" })

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/features", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/features", nil, "X-Api-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/features", nil, "X-Api-Key", "s3cret").Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", nil).Code)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 2
		o.TrustForwardedFor = true
	})
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/features", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/features", nil).Code)
	rr := e.do(t, http.MethodGet, "/api/features", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// a different client has its own bucket
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/features", nil, "X-Forwarded-For", "203.0.113.9").Code)
}

func TestParseWait(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5", 5 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"0", 0, false},
		{"-1", 0, true},
		{"-2s", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWait(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServerErrorsGoToLogger(t *testing.T) {
	out := &syncBuffer{}
	s := New(Options{Logger: log.New(log.Options{Output: out, Level: "warn"})})
	s.inner.ErrorLog.Print("http: TLS handshake error from 10.0.0.9:5123: EOF")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "TLS handshake error")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "level=warning")
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestRateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	e := newEnv(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 1
	})
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/features", nil, "X-Forwarded-For", "203.0.113.1").Code)
	rr := e.do(t, http.MethodGet, "/api/features", nil, "X-Forwarded-For", "203.0.113.2")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "a rotated header must not earn a new bucket")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:40000"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "198.51.100.7", clientIP(false)(r))
	assert.Equal(t, "203.0.113.5", clientIP(true)(r))

	r.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "198.51.100.7", clientIP(true)(r))
}
