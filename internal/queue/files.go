package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudoservertools/sstbridge/internal/jsonfile"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// documents loads queue and result files, quarantining any that fail to parse.
type documents struct {
	store storage.Store
	log   *log.Logger
	now   func() time.Time

	// lastQuarantined maps a path to the bytes last quarantined for it, so re-reading the
	// same broken file within a pass does not store a second copy.
	lastQuarantined *sync.Map
}

func newDocuments(store storage.Store, l *log.Logger, now func() time.Time) documents {
	return documents{store: store, log: l, now: now, lastQuarantined: &sync.Map{}}
}

// queue returns the queue document at path. A malformed document is quarantined and read
// as empty; malformed reports that case.
func (d documents) queue(ctx context.Context, path string) (q model.QueueFile, malformed bool, err error) {
	q, raw, err := jsonfile.ReadQueue(ctx, d.store, path)
	if errors.Is(err, jsonfile.ErrMalformed) {
		d.quarantine(ctx, path, raw, err)
		return model.QueueFile{}, true, nil
	}
	return q, false, err
}

// results is queue for result documents.
func (d documents) results(ctx context.Context, path string) (f model.ResultFile, malformed bool, err error) {
	f, raw, err := jsonfile.ReadResults(ctx, d.store, path)
	if errors.Is(err, jsonfile.ErrMalformed) {
		d.quarantine(ctx, path, raw, err)
		return model.ResultFile{}, true, nil
	}
	return f, false, err
}

func (d documents) quarantine(ctx context.Context, path string, raw []byte, cause error) {
	if prev, ok := d.lastQuarantined.Load(path); ok && prev.(string) == string(raw) {
		return
	}
	l := d.log.WithFields(logrus.Fields{"path": path}).WithError(cause)
	dst, err := jsonfile.Quarantine(ctx, d.store, path, raw, d.now())
	if err != nil {
		l.Error("malformed document, quarantine failed: %v", err)
		return
	}
	d.lastQuarantined.Store(path, string(raw))
	l.Warn("malformed document quarantined to %s", dst)
}
