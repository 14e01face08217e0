package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudoservertools/sstbridge/internal/config"
	"github.com/sudoservertools/sstbridge/internal/control"
	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/lock"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
	"github.com/sudoservertools/sstbridge/internal/world"
)

const player = "76561198000000001"

// stateDir lives under /tmp so the control socket path stays short.
func stateDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "sst-d-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

type fixture struct {
	store    storage.Store
	producer *queue.Producer
	daemon   *Daemon
	state    string
}

func newFixture(t *testing.T, store storage.Store, cfg config.ConsumerConfig, watchDir string) *fixture {
	t.Helper()
	s := world.DefaultSnapshot()
	s.Players = []world.PlayerState{{ID: player, Name: "Survivor"}}
	w := world.NewMemory(s)

	consumerReg, err := feature.NewRegistry(w, log.Discard(), nil)
	require.NoError(t, err)
	producerReg, err := feature.NewRegistry(nil, log.Discard(), nil)
	require.NoError(t, err)

	if cfg.StateDir == "" {
		cfg.StateDir = stateDir(t)
	}
	rec := queue.NewReconciler(store, consumerReg, queue.ReconcilerOptions{Logger: log.Discard()})
	d, err := New(Options{Config: cfg, Store: store, Reconciler: rec, WatchDir: watchDir})
	require.NoError(t, err)

	return &fixture{
		store: store,
		producer: queue.NewProducer(store, producerReg, queue.ProducerOptions{
			PollInterval: 10 * time.Millisecond,
			PollTimeout:  5 * time.Second,
			Logger:       log.Discard(),
		}),
		daemon: d,
		state:  cfg.StateDir,
	}
}

func grant(class string) feature.ItemGrant {
	return feature.ItemGrant{PlayerID: player, ItemClassName: class, Quantity: 1}
}

func TestNew_RequiresStateDir(t *testing.T) {
	_, err := New(Options{Store: storage.NewMemory()})
	assert.Error(t, err)
}

func TestDaemon_ControlScan(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, storage.NewMemory(), config.ConsumerConfig{Interval: time.Hour}, "")
	require.NoError(t, fx.daemon.Start())
	t.Cleanup(fx.daemon.Shutdown)

	id, err := fx.producer.Enqueue(ctx, feature.ItemGrantName, grant("Apple"))
	require.NoError(t, err)

	client := control.NewClient(SocketPath(fx.state))
	var reports []ReportView
	require.NoError(t, client.Call(ctx, control.CmdScan, nil, &reports))

	var found bool
	for _, rep := range reports {
		if rep.Feature == feature.ItemGrantName {
			found = true
			assert.Equal(t, 1, rep.Processed)
			assert.Equal(t, 1, rep.Succeeded)
			assert.Empty(t, rep.Error)
		}
	}
	assert.True(t, found, "item grant report present")

	res, err := fx.producer.Status(ctx, feature.ItemGrantName, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)

	var status StatusView
	require.NoError(t, client.Call(ctx, control.CmdStatus, nil, &status))
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Contains(t, status.Features, feature.ItemGrantName)
	assert.EqualValues(t, 1, status.Metrics.Features[feature.ItemGrantName].Succeeded)

	m, err := ReadMetrics(ctx, fx.store)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Scans, int64(2))
	assert.False(t, m.Heartbeat.IsZero())
}

func TestDaemon_TickerScans(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, storage.NewMemory(), config.ConsumerConfig{Interval: 20 * time.Millisecond}, "")
	require.NoError(t, fx.daemon.Start())
	t.Cleanup(fx.daemon.Shutdown)

	id, err := fx.producer.Enqueue(ctx, feature.ItemGrantName, grant("InvalidItemClass"))
	require.NoError(t, err)

	res, err := fx.producer.PollResult(ctx, feature.ItemGrantName, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, "unknown item class", res.Result)
}

func TestDaemon_WatchTriggersScan(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := storage.NewLocal(base, false)
	require.NoError(t, err)

	cfg := config.ConsumerConfig{Interval: time.Hour, Debounce: 20 * time.Millisecond}
	fx := newFixture(t, store, cfg, base)
	require.NoError(t, fx.daemon.Start())
	t.Cleanup(fx.daemon.Shutdown)

	id, err := fx.producer.Enqueue(ctx, feature.ItemGrantName, grant("Apple"))
	require.NoError(t, err)

	res, err := fx.producer.PollResult(ctx, feature.ItemGrantName, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)

	_, err = os.Stat(filepath.Join(base, MetricsFile))
	assert.NoError(t, err)
}

func TestDaemon_SingleInstance(t *testing.T) {
	dir := stateDir(t)
	cfg := config.ConsumerConfig{Interval: time.Hour, StateDir: dir}
	first := newFixture(t, storage.NewMemory(), cfg, "")
	require.NoError(t, first.daemon.Start())
	t.Cleanup(first.daemon.Shutdown)

	second := newFixture(t, storage.NewMemory(), cfg, "")
	err := second.daemon.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, lock.ErrLocked))
}

func TestDaemon_ShutdownCommandStopsRun(t *testing.T) {
	fx := newFixture(t, storage.NewMemory(), config.ConsumerConfig{Interval: time.Hour}, "")

	done := make(chan error, 1)
	go func() { done <- fx.daemon.Run(context.Background()) }()

	client := control.NewClient(SocketPath(fx.state))
	client.SetTimeout(time.Second)
	require.Eventually(t, func() bool {
		return client.Call(context.Background(), control.CmdPing, nil, nil) == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Call(context.Background(), control.CmdShutdown, nil, nil))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown command")
	}
	_, err := os.Stat(filepath.Join(fx.state, LockName))
	assert.True(t, os.IsNotExist(err), "lock released")
}

func TestDaemon_RunStopsOnContext(t *testing.T) {
	fx := newFixture(t, storage.NewMemory(), config.ConsumerConfig{Interval: time.Hour}, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fx.daemon.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	fx.daemon.Shutdown()
}
