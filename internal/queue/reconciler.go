package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sudoservertools/sstbridge/internal/jsonfile"
	"github.com/sudoservertools/sstbridge/internal/lock"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// AuditSink receives every outcome once it is durable in the result file.
type AuditSink interface {
	Record(feature string, res model.Result) error
}

type ReconcilerOptions struct {
	Retention Retention
	Audit     AuditSink
	Locks     *lock.MutexMap
	Logger    *log.Logger
	Now       func() time.Time
}

// PassReport summarizes one reconciliation pass over one feature.
type PassReport struct {
	Feature string `json:"feature"`
	// Processed counts records marked processed this pass, whatever the reason.
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Coalesced counts duplicate ids folded into an earlier record.
	Coalesced int `json:"coalesced"`
	// Recovered counts records that already had an outcome from an earlier pass.
	Recovered int `json:"recovered"`
	// Pruned counts records and results dropped by retention.
	Pruned    int           `json:"pruned"`
	Depth     int           `json:"depth"`
	Malformed bool          `json:"malformed,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Reconciler is the consumer side: it executes unprocessed requests and records results.
type Reconciler struct {
	store    storage.Store
	features *Registry
	opts     ReconcilerOptions
	docs     documents

	// unflushed holds outcomes whose result write has not succeeded yet, per feature, in
	// completion order. They are written on the next pass instead of re-executing.
	mu        sync.Mutex
	unflushed map[string][]model.Result
}

func NewReconciler(store storage.Store, features *Registry, opts ReconcilerOptions) *Reconciler {
	if opts.Retention == (Retention{}) {
		opts.Retention = DefaultRetention()
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewMutexMap()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Options{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		store:     store,
		features:  features,
		opts:      opts,
		docs:      newDocuments(store, opts.Logger, opts.Now),
		unflushed: make(map[string][]model.Result),
	}
}

// Features returns the registry being reconciled.
func (r *Reconciler) Features() *Registry { return r.features }

// PassAll reconciles every feature concurrently. Features never share files, so each file
// still has one owner. Every report is returned; errors are joined.
func (r *Reconciler) PassAll(ctx context.Context) ([]PassReport, error) {
	features := r.features.All()
	reports := make([]PassReport, len(features))

	var g errgroup.Group
	for i, f := range features {
		g.Go(func() error {
			rep, err := r.Pass(ctx, f)
			rep.Err = err
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, rep := range reports {
		if rep.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rep.Feature, rep.Err))
		}
	}
	return reports, errors.Join(errs...)
}

// Pass runs one reconciliation over f. A storage error aborts the pass for f; nothing
// partial is committed for the file that failed and the next pass retries.
func (r *Reconciler) Pass(ctx context.Context, f Feature) (rep PassReport, err error) {
	start := time.Now()
	rep.Feature = f.Name()
	defer func() { rep.Duration = time.Since(start) }()

	l := r.opts.Logger.WithField("feature", f.Name())
	unlock := r.opts.Locks.LockAll(f.QueueFile(), f.ResultFile())
	defer unlock()

	q, malformed, err := r.docs.queue(ctx, f.QueueFile())
	if err != nil {
		return rep, fmt.Errorf("read queue %s: %w", f.QueueFile(), err)
	}
	if malformed {
		rep.Malformed = true
		l.Warn("queue file malformed, skipping this pass")
		return rep, nil
	}

	rf, _, err := r.docs.results(ctx, f.ResultFile())
	if err != nil {
		return rep, fmt.Errorf("read results %s: %w", f.ResultFile(), err)
	}
	answered := make(map[string]model.Result, len(rf.Requests))
	for _, res := range rf.Requests {
		answered[res.RequestID] = res
	}
	buffered := r.buffered(f.Name())

	// results of records not yet committed as processed are exempt from the result cap
	uncommitted := make(map[string]bool)
	for _, rec := range q.Requests {
		if !rec.Processed && rec.RequestID != "" {
			uncommitted[rec.RequestID] = true
		}
	}

	now := r.opts.Now()
	seen := make(map[string]bool, len(q.Requests))
	marked := false

	for i := range q.Requests {
		rec := &q.Requests[i]
		id := rec.RequestID
		if rec.Processed {
			seen[id] = true
			continue
		}

		rl := l.WithField("request_id", id)
		switch {
		case id == "":
			rl.Warn("record without requestId marked processed without a result")
		case seen[id]:
			rep.Coalesced++
			rl.Info("duplicate request id coalesced into earlier record")
		case hasResult(answered, buffered, id):
			rep.Recovered++
			rl.Debug("outcome already recorded, marking processed")
		default:
			out := r.execute(ctx, f, *rec, rl)
			res := model.NewResult(id, out.Status, out.Message, now)
			buffered[id] = res
			r.buffer(f.Name(), res)
			if out.Status == model.StatusSuccess {
				rep.Succeeded++
			} else {
				rep.Failed++
			}
			rl.Info("processed status=%s result=%q", out.Status, out.Message)
		}

		seen[id] = true
		rec.MarkProcessed(now)
		rep.Processed++
		marked = true
	}

	flushed, prunedResults, err := r.flushResults(ctx, f, uncommitted)
	rep.Pruned += prunedResults
	if err != nil {
		return rep, err
	}
	r.audit(f, flushed, l)

	prunedRequests, depth, err := r.writeQueue(ctx, f, q.Requests, marked, now)
	rep.Pruned += prunedRequests
	rep.Depth = depth
	if err != nil {
		return rep, err
	}
	return rep, nil
}

func hasResult(answered map[string]model.Result, buffered map[string]model.Result, id string) bool {
	if _, ok := answered[id]; ok {
		return true
	}
	_, ok := buffered[id]
	return ok
}

// execute runs the feature's effect. A panic becomes a failed outcome.
func (r *Reconciler) execute(ctx context.Context, f Feature, req model.Request, l *log.Logger) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			l.Error("executor panic: %v", p)
			out = Failed("internal error: %v", p)
		}
	}()
	out = f.Execute(ctx, req)
	if err := model.ValidateResultTransition(model.StatusPending, out.Status); err != nil {
		l.Warn("executor outcome rejected, recording failure: %v", err)
		out = Failed("executor returned status %q", out.Status)
	}
	return out
}

// flushResults merges the buffered outcomes into a fresh read of the result file, applies the
// result cap and writes. Results for ids in protect, and those added now, are never pruned.
// It returns the results that became durable.
func (r *Reconciler) flushResults(ctx context.Context, f Feature, protect map[string]bool) ([]model.Result, int, error) {
	pending := r.pendingResults(f.Name())

	fresh, malformed, err := r.docs.results(ctx, f.ResultFile())
	if err != nil {
		return nil, 0, fmt.Errorf("read results %s: %w", f.ResultFile(), err)
	}
	present := fresh.IDs()

	keep := make(map[string]bool, len(protect)+len(pending))
	for id := range protect {
		keep[id] = true
	}
	var added []model.Result
	for _, res := range pending {
		if !present[res.RequestID] {
			present[res.RequestID] = true
			added = append(added, res)
		}
		keep[res.RequestID] = true
	}

	merged := append(fresh.Requests, added...)
	kept, pruned := PruneResultsKeeping(merged, r.opts.Retention.MaxResults, keep)
	if len(added) == 0 && pruned == 0 && !malformed {
		r.clearBuffered(f.Name(), pending)
		return nil, 0, nil
	}

	if err := jsonfile.WriteResults(ctx, r.store, f.ResultFile(), model.ResultFile{Requests: kept}); err != nil {
		return nil, 0, fmt.Errorf("write results %s: %w", f.ResultFile(), err)
	}
	r.clearBuffered(f.Name(), pending)
	return added, pruned, nil
}

// writeQueue merges the working set with a fresh read so records appended since the first
// read survive, applies retention and writes when anything changed.
func (r *Reconciler) writeQueue(ctx context.Context, f Feature, working []model.Request, marked bool, now time.Time) (pruned, depth int, err error) {
	fresh, _, err := r.docs.queue(ctx, f.QueueFile())
	if err != nil {
		return 0, 0, fmt.Errorf("re-read queue %s: %w", f.QueueFile(), err)
	}

	have := make(map[string]bool, len(working))
	for _, rec := range working {
		have[rec.RequestID] = true
	}
	merged := working
	for _, rec := range fresh.Requests {
		if !have[rec.RequestID] {
			merged = append(merged, rec)
		}
	}

	kept, pruned := PruneRequests(merged, r.opts.Retention, now)
	for _, rec := range kept {
		if !rec.Processed {
			depth++
		}
	}
	if !marked && pruned == 0 {
		return 0, depth, nil
	}
	if err := jsonfile.WriteQueue(ctx, r.store, f.QueueFile(), model.QueueFile{Requests: kept}); err != nil {
		return 0, depth, fmt.Errorf("write queue %s: %w", f.QueueFile(), err)
	}
	return pruned, depth, nil
}

func (r *Reconciler) audit(f Feature, results []model.Result, l *log.Logger) {
	if r.opts.Audit == nil {
		return
	}
	for _, res := range results {
		if err := r.opts.Audit.Record(f.Name(), res); err != nil {
			l.WithFields(logrus.Fields{"request_id": res.RequestID}).Warn("audit record: %v", err)
		}
	}
}

func (r *Reconciler) buffer(feature string, res model.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unflushed[feature] = append(r.unflushed[feature], res)
}

func (r *Reconciler) buffered(feature string) map[string]model.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.Result, len(r.unflushed[feature]))
	for _, res := range r.unflushed[feature] {
		out[res.RequestID] = res
	}
	return out
}

func (r *Reconciler) pendingResults(feature string) []model.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Result(nil), r.unflushed[feature]...)
}

func (r *Reconciler) clearBuffered(feature string, flushed []model.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := make(map[string]bool, len(flushed))
	for _, res := range flushed {
		done[res.RequestID] = true
	}
	remaining := r.unflushed[feature][:0]
	for _, res := range r.unflushed[feature] {
		if !done[res.RequestID] {
			remaining = append(remaining, res)
		}
	}
	if len(remaining) == 0 {
		delete(r.unflushed, feature)
		return
	}
	r.unflushed[feature] = remaining
}

// Unflushed reports how many outcomes are waiting for a successful result write.
func (r *Reconciler) Unflushed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.unflushed {
		n += len(list)
	}
	return n
}
