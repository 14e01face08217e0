package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sudoservertools/sstbridge/internal/jsonfile"
	"github.com/sudoservertools/sstbridge/internal/lock"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// ResultArchive remembers results after they are pruned from the result file.
type ResultArchive interface {
	Put(feature string, res model.Result) error
	Get(feature, requestID string) (model.Result, bool, error)
}

type ProducerOptions struct {
	PollInterval    time.Duration
	PollTimeout     time.Duration
	EnqueueAttempts int
	Archive         ResultArchive
	Locks           *lock.MutexMap
	Logger          *log.Logger
	Now             func() time.Time
}

// Producer is the API side of the protocol: it appends requests and reads results.
type Producer struct {
	store    storage.Store
	features *Registry
	opts     ProducerOptions
	docs     documents
	reads    singleflight.Group
}

func NewProducer(store storage.Store, features *Registry, opts ProducerOptions) *Producer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	if opts.EnqueueAttempts < 1 {
		opts.EnqueueAttempts = 3
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
	return &Producer{
		store:    store,
		features: features,
		opts:     opts,
		docs:     newDocuments(store, opts.Logger, opts.Now),
	}
}

// Features returns the registry the producer serves.
func (p *Producer) Features() *Registry { return p.features }

// Enqueue validates payload, assigns a fresh request id and appends the request.
func (p *Producer) Enqueue(ctx context.Context, feature string, payload any) (string, error) {
	id, err := model.NewRequestID()
	if err != nil {
		return "", err
	}
	if err := p.EnqueueWithID(ctx, feature, id, payload); err != nil {
		return "", err
	}
	return id, nil
}

// EnqueueWithID appends a request under a caller-chosen id. An id that is already queued or
// already has a result is rejected with ErrDuplicateRequest.
func (p *Producer) EnqueueWithID(ctx context.Context, feature, id string, payload any) error {
	f, err := p.features.Get(feature)
	if err != nil {
		return err
	}
	if err := model.ValidateRequestID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	raw, err := rawPayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := f.Validate(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	req, err := model.NewRequest(id, raw, p.opts.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	l := p.opts.Logger.WithFields(logrus.Fields{"feature": f.Name(), "request_id": id})

	unlock := p.opts.Locks.LockAll(f.QueueFile())
	defer unlock()

	for attempt := 1; attempt <= p.opts.EnqueueAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		q, _, err := p.docs.queue(ctx, f.QueueFile())
		if err != nil {
			return fmt.Errorf("read queue %s: %w", f.QueueFile(), err)
		}
		if q.Find(id) >= 0 {
			return fmt.Errorf("%w: %s already queued", ErrDuplicateRequest, id)
		}
		if attempt == 1 {
			rf, _, err := p.docs.results(ctx, f.ResultFile())
			if err != nil {
				return fmt.Errorf("read results %s: %w", f.ResultFile(), err)
			}
			if _, done := rf.Find(id); done {
				return fmt.Errorf("%w: %s already has a result", ErrDuplicateRequest, id)
			}
		}

		q.Requests = append(q.Requests, req)
		if err := jsonfile.WriteQueue(ctx, p.store, f.QueueFile(), q); err != nil {
			return fmt.Errorf("write queue %s: %w", f.QueueFile(), err)
		}

		// A consumer that read before our write and wrote after it drops the record; check.
		check, _, err := p.docs.queue(ctx, f.QueueFile())
		if err != nil {
			return fmt.Errorf("verify queue %s: %w", f.QueueFile(), err)
		}
		if check.Find(id) >= 0 {
			l.Info("enqueued (attempt %d)", attempt)
			return nil
		}
		l.Warn("enqueued record missing after write, retrying (attempt %d/%d)", attempt, p.opts.EnqueueAttempts)
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrLostUpdate, id, p.opts.EnqueueAttempts)
}

func rawPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// PollResult waits until the result for id appears, timeout elapses or ctx is done. A
// non-positive timeout uses the configured default. Timing out returns ErrPending.
func (p *Producer) PollResult(ctx context.Context, feature, id string, timeout time.Duration) (model.Result, error) {
	f, err := p.features.Get(feature)
	if err != nil {
		return model.Result{}, err
	}
	if timeout <= 0 {
		timeout = p.opts.PollTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		res, found, err := p.lookupResult(ctx, f, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.Result{}, ctxErr
			}
			p.opts.Logger.WithFields(logrus.Fields{"feature": f.Name(), "request_id": id}).
				Debug("poll read failed, will retry: %v", err)
		}
		if found {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return model.Result{}, ctx.Err()
		case <-deadline.C:
			return model.Result{Status: model.StatusPending, RequestID: id}, fmt.Errorf("%w: %s", ErrPending, id)
		case <-ticker.C:
		}
	}
}

// lookupResult reads the result file once per concurrent burst of callers.
func (p *Producer) lookupResult(ctx context.Context, f Feature, id string) (model.Result, bool, error) {
	v, err, _ := p.reads.Do(f.ResultFile(), func() (any, error) {
		rf, _, err := jsonfile.ReadResults(ctx, p.store, f.ResultFile())
		if errors.Is(err, jsonfile.ErrMalformed) {
			// the consumer quarantines it; until then nothing in it is trusted
			return model.ResultFile{}, nil
		}
		return rf, err
	})
	if err != nil {
		return model.Result{}, false, err
	}
	rf := v.(model.ResultFile)
	res, ok := rf.Find(id)
	if !ok || !model.IsTerminal(res.Status) {
		return model.Result{}, false, nil
	}
	p.archive(f, res)
	return res, true, nil
}

func (p *Producer) archive(f Feature, res model.Result) {
	if p.opts.Archive == nil {
		return
	}
	if err := p.opts.Archive.Put(f.Name(), res); err != nil {
		p.opts.Logger.WithFields(logrus.Fields{"feature": f.Name(), "request_id": res.RequestID}).
			Warn("archive result: %v", err)
	}
}

// Status reports what is known about id without waiting: its result, an archived result, a
// synthetic pending result when only the queued record exists, or ErrNotFound.
func (p *Producer) Status(ctx context.Context, feature, id string) (model.Result, error) {
	f, err := p.features.Get(feature)
	if err != nil {
		return model.Result{}, err
	}

	res, found, err := p.lookupResult(ctx, f, id)
	if err != nil {
		return model.Result{}, fmt.Errorf("read results %s: %w", f.ResultFile(), err)
	}
	if found {
		return res, nil
	}

	if p.opts.Archive != nil {
		res, ok, err := p.opts.Archive.Get(f.Name(), id)
		if err != nil {
			p.opts.Logger.WithFields(logrus.Fields{"feature": f.Name(), "request_id": id}).
				Warn("archive lookup: %v", err)
		} else if ok {
			return res, nil
		}
	}

	q, _, err := jsonfile.ReadQueue(ctx, p.store, f.QueueFile())
	if err != nil && !errors.Is(err, jsonfile.ErrMalformed) {
		return model.Result{}, fmt.Errorf("read queue %s: %w", f.QueueFile(), err)
	}
	if q.Find(id) >= 0 {
		// processed without a visible result means the result was pruned: still unknown
		return model.PendingResult(id), nil
	}
	return model.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Results returns the result file contents, oldest first.
func (p *Producer) Results(ctx context.Context, feature string) ([]model.Result, error) {
	f, err := p.features.Get(feature)
	if err != nil {
		return nil, err
	}
	rf, _, err := jsonfile.ReadResults(ctx, p.store, f.ResultFile())
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", f.ResultFile(), err)
	}
	return rf.Requests, nil
}

// Pending returns the requests the consumer has not processed yet.
func (p *Producer) Pending(ctx context.Context, feature string) ([]model.Request, error) {
	f, err := p.features.Get(feature)
	if err != nil {
		return nil, err
	}
	q, _, err := jsonfile.ReadQueue(ctx, p.store, f.QueueFile())
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", f.QueueFile(), err)
	}
	return q.Unprocessed(), nil
}
