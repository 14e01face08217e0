// Package daemon runs the consumer: a single process per state directory that reconciles every
// feature's queue file on a ticker and whenever the files change.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/sudoservertools/sstbridge/internal/config"
	"github.com/sudoservertools/sstbridge/internal/control"
	"github.com/sudoservertools/sstbridge/internal/lock"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// LockName is the singleton lock file inside the state directory.
const LockName = "consumer.lock"

type Options struct {
	Config config.ConsumerConfig
	Store  storage.Store
	// Reconciler owns the feature registry being served.
	Reconciler *queue.Reconciler
	// WatchDir enables fsnotify wakeups. Only meaningful for the local backend.
	WatchDir string
	Logger   *log.Logger
}

// ReportView is a PassReport with its error flattened for the control channel.
type ReportView struct {
	queue.PassReport
	Error string `json:"error,omitempty"`
}

// StatusView answers the status command.
type StatusView struct {
	PID      int      `json:"pid"`
	StateDir string   `json:"state_dir"`
	Watching string   `json:"watching,omitempty"`
	Features []string `json:"features"`
	Metrics  Metrics  `json:"metrics"`
}

type Daemon struct {
	cfg      config.ConsumerConfig
	store    storage.Store
	rec      *queue.Reconciler
	log      *log.Logger
	watchDir string

	fileLock *lock.FileLock
	server   *control.Server
	watcher  *fsnotify.Watcher
	metrics  *metricsRecorder
	queueSet map[string]bool

	// scanMu serializes passes; ticker, watcher and control scans never overlap.
	scanMu sync.Mutex

	// ctx stops the loops. passCtx is handed to reconciliation and is only cancelled when the
	// shutdown timeout expires, so an in-flight pass can commit its results.
	ctx        context.Context
	cancel     context.CancelFunc
	passCtx    context.Context
	passCancel context.CancelFunc
	wg         sync.WaitGroup

	shutdownOnce sync.Once
	stopping     atomic.Bool
}

func New(opts Options) (*Daemon, error) {
	if opts.Store == nil || opts.Reconciler == nil {
		return nil, errors.New("daemon: store and reconciler are required")
	}
	if opts.Config.StateDir == "" {
		return nil, errors.New("daemon: state dir is required")
	}
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = 2 * time.Second
	}
	if opts.Config.Debounce <= 0 {
		opts.Config.Debounce = 300 * time.Millisecond
	}
	if opts.Config.ShutdownTimeout <= 0 {
		opts.Config.ShutdownTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithField("component", "consumer")

	queueSet := make(map[string]bool)
	for _, f := range opts.Reconciler.Features().All() {
		queueSet[filepath.Base(f.QueueFile())] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	passCtx, passCancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:        opts.Config,
		store:      opts.Store,
		rec:        opts.Reconciler,
		log:        logger,
		watchDir:   opts.WatchDir,
		fileLock:   lock.NewFileLock(filepath.Join(opts.Config.StateDir, LockName)),
		server:     control.NewServer(SocketPath(opts.Config.StateDir), logger),
		metrics:    newMetricsRecorder(opts.Store, time.Now().UTC()),
		queueSet:   queueSet,
		ctx:        ctx,
		cancel:     cancel,
		passCtx:    passCtx,
		passCancel: passCancel,
	}, nil
}

// SocketPath is where the consumer for stateDir listens for control commands.
func SocketPath(stateDir string) string {
	return filepath.Join(stateDir, control.SocketName)
}

// Run starts the consumer and blocks until ctx is done, a shutdown command arrives or the
// process is signalled. A second signal during shutdown exits immediately.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		d.log.Info("received %s, shutting down", sig)
		go func() {
			sig := <-sigCh
			d.log.Warn("received second %s, forcing exit", sig)
			os.Exit(1)
		}()
	case <-ctx.Done():
		signal.Stop(sigCh)
	case <-d.ctx.Done():
		signal.Stop(sigCh)
	}

	d.Shutdown()
	return nil
}

// Start acquires the singleton lock, opens the control socket, starts the loops and runs the
// first scan. It returns once the consumer is serving.
func (d *Daemon) Start() error {
	if err := os.MkdirAll(d.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("another consumer is serving %s: %w", d.cfg.StateDir, err)
	}

	if err := d.metrics.Load(d.passCtx); err != nil {
		d.log.Warn("previous metrics ignored: %v", err)
	}

	if d.watchDir != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			_ = d.fileLock.Unlock()
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(d.watchDir); err != nil {
			_ = w.Close()
			_ = d.fileLock.Unlock()
			return fmt.Errorf("watch %s: %w", d.watchDir, err)
		}
		d.watcher = w
	}

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		if d.watcher != nil {
			_ = d.watcher.Close()
		}
		_ = d.fileLock.Unlock()
		return fmt.Errorf("start control server: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"pid":      os.Getpid(),
		"features": d.rec.Features().Names(),
		"interval": d.cfg.Interval.String(),
		"watch":    d.watchDir,
	}).Info("consumer started")

	d.wg.Add(1)
	go d.tickerLoop()
	if d.watcher != nil {
		d.wg.Add(1)
		go d.watchLoop()
	}

	d.scanOnce("startup")
	return nil
}

// Done is closed once shutdown has begun.
func (d *Daemon) Done() <-chan struct{} { return d.ctx.Done() }

// Scan runs one pass over every feature and persists the metrics.
func (d *Daemon) Scan(ctx context.Context) ([]queue.PassReport, error) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()

	start := time.Now()
	reports, err := d.rec.PassAll(ctx)
	elapsed := time.Since(start)

	d.metrics.Observe(reports, start, elapsed, d.rec.Unflushed())
	if ferr := d.metrics.Flush(ctx); ferr != nil {
		d.log.Warn("%v", ferr)
	}

	for _, rep := range reports {
		if rep.Err != nil || rep.Processed > 0 || rep.Pruned > 0 || rep.Malformed {
			l := d.log.WithFields(logrus.Fields{
				"feature":   rep.Feature,
				"processed": rep.Processed,
				"succeeded": rep.Succeeded,
				"failed":    rep.Failed,
				"pruned":    rep.Pruned,
				"depth":     rep.Depth,
			})
			if rep.Err != nil {
				l.WithError(rep.Err).Warn("pass failed")
			} else {
				l.Info("pass complete")
			}
		}
	}
	return reports, err
}

func (d *Daemon) scanOnce(trigger string) {
	if d.stopping.Load() {
		return
	}
	d.log.Debug("scan triggered by %s", trigger)
	_, _ = d.Scan(d.passCtx)
}

func (d *Daemon) tickerLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.scanOnce("ticker")
		}
	}
}

// watchLoop coalesces bursts of queue file events into one scan after the debounce window.
func (d *Daemon) watchLoop() {
	defer d.wg.Done()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(d.cfg.Debounce)
			} else {
				timer.Reset(d.cfg.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			d.scanOnce("fsnotify")
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("watcher: %v", err)
		}
	}
}

func (d *Daemon) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return d.queueSet[filepath.Base(ev.Name)]
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(control.CmdPing, func(ctx context.Context, req *control.Request) *control.Response {
		return control.OK(map[string]any{"pong": true, "pid": os.Getpid()})
	})

	d.server.Handle(control.CmdScan, func(ctx context.Context, req *control.Request) *control.Response {
		if d.stopping.Load() {
			return control.Fail(control.CodeShuttingDown, "consumer is shutting down")
		}
		reports, _ := d.Scan(d.passCtx)
		views := make([]ReportView, len(reports))
		for i, rep := range reports {
			views[i] = ReportView{PassReport: rep}
			if rep.Err != nil {
				views[i].Error = rep.Err.Error()
			}
		}
		return control.OK(views)
	})

	d.server.Handle(control.CmdStatus, func(ctx context.Context, req *control.Request) *control.Response {
		return control.OK(d.Status())
	})

	d.server.Handle(control.CmdShutdown, func(ctx context.Context, req *control.Request) *control.Response {
		d.log.Info("shutdown requested over control socket")
		d.cancel()
		return control.OK(map[string]string{"status": "shutting_down"})
	})
}

// Status reports the live counters and which features are served.
func (d *Daemon) Status() StatusView {
	snap := d.metrics.Snapshot()
	snap.Unflushed = d.rec.Unflushed()
	return StatusView{
		PID:      os.Getpid(),
		StateDir: d.cfg.StateDir,
		Watching: d.watchDir,
		Features: d.rec.Features().Names(),
		Metrics:  snap,
	}
}

// Shutdown stops the loops, waits for an in-flight pass up to the shutdown timeout and releases
// the lock. Safe to call more than once.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.stopping.Store(true)
		d.cancel()

		if d.watcher != nil {
			_ = d.watcher.Close()
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			d.scanMu.Lock()
			d.scanMu.Unlock()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(d.cfg.ShutdownTimeout):
			d.log.Warn("shutdown timeout (%s) exceeded, abandoning in-flight pass", d.cfg.ShutdownTimeout)
			d.passCancel()
			<-done
		}

		d.server.Stop()
		if n := d.rec.Unflushed(); n > 0 {
			d.log.Warn("%d outcomes never reached the result file", n)
		}
		d.passCancel()
		if err := d.fileLock.Unlock(); err != nil {
			d.log.Warn("release lock: %v", err)
		}
		d.log.Info("consumer stopped")
	})
}
