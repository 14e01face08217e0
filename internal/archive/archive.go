// Package archive keeps every terminal result a producer has observed, so status lookups
// keep working after retention drops the record from the result file.
package archive

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/sudoservertools/sstbridge/internal/model"
)

// entry is the stored value. Results are immutable, so the first one stored wins.
type entry struct {
	Result     model.Result `json:"result"`
	ArchivedAt time.Time    `json:"archivedAt"`
}

// Archive is a bbolt database with one bucket per feature, keyed by request id.
type Archive struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the archive at path. It fails after a second if another process
// holds the file.
func Open(path string) (*Archive, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	return &Archive{db: db, now: time.Now}, nil
}

// Put stores res unless a result for the same id is already archived. Non-terminal
// results are ignored.
func (a *Archive) Put(feature string, res model.Result) error {
	if !model.IsTerminal(res.Status) || res.RequestID == "" {
		return nil
	}
	val, err := json.Marshal(entry{Result: res, ArchivedAt: a.now().UTC()})
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", res.RequestID, err)
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(feature))
		if err != nil {
			return fmt.Errorf("archive: bucket %s: %w", feature, err)
		}
		key := []byte(res.RequestID)
		if b.Get(key) != nil {
			return nil
		}
		return b.Put(key, val)
	})
}

// Get returns the archived result for id.
func (a *Archive) Get(feature, id string) (model.Result, bool, error) {
	var (
		e  entry
		ok bool
	)
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(feature))
		if b == nil {
			return nil
		}
		val := b.Get([]byte(id))
		if val == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return model.Result{}, false, fmt.Errorf("archive: get %s/%s: %w", feature, id, err)
	}
	return e.Result, ok, nil
}

// Count returns the number of archived results for feature.
func (a *Archive) Count(feature string) (int, error) {
	n := 0
	err := a.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(feature)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Recent returns up to limit archived results for feature, newest first.
func (a *Archive) Recent(feature string, limit int) ([]model.Result, error) {
	var out []entry
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(feature))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan %s: %w", feature, err)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	results := make([]model.Result, len(out))
	for i, e := range out {
		results[i] = e.Result
	}
	return results, nil
}

// Compact drops entries archived more than maxAge ago, across all features. It returns
// the number removed.
func (a *Archive) Compact(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := a.now().Add(-maxAge)
	removed := 0
	err := a.db.Update(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			var stale [][]byte
			if err := b.ForEach(func(k, v []byte) error {
				var e entry
				if err := json.Unmarshal(v, &e); err != nil || e.ArchivedAt.Before(cutoff) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			}); err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return fmt.Errorf("delete %s/%s: %w", name, k, err)
				}
			}
			removed += len(stale)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("archive: compact: %w", err)
	}
	return removed, nil
}

// Features lists the buckets present.
func (a *Archive) Features() ([]string, error) {
	var names []string
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func sortNewestFirst(entries []entry) {
	slices.SortStableFunc(entries, func(x, y entry) int {
		return y.ArchivedAt.Compare(x.ArchivedAt)
	})
}

func (a *Archive) Close() error {
	return a.db.Close()
}
