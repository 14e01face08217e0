// Package queue implements the file-backed command queue: producers append requests and poll
// for results, the reconciler processes requests and writes results. Both sides use
// read-merge-write since the backends offer no locking.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sudoservertools/sstbridge/internal/model"
)

// Outcome is what an executor reports for one request.
type Outcome struct {
	Status  model.Status
	Message string
}

func Succeeded(format string, args ...any) Outcome {
	return Outcome{Status: model.StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

func Failed(format string, args ...any) Outcome {
	return Outcome{Status: model.StatusFailed, Message: fmt.Sprintf(format, args...)}
}

// Feature binds a queue file, a result file, a payload schema and the effect to perform.
type Feature interface {
	Name() string
	QueueFile() string
	ResultFile() string
	// Validate checks a payload before it is enqueued.
	Validate(payload json.RawMessage) error
	// Execute performs the effect of req. It must not retry on its own.
	Execute(ctx context.Context, req model.Request) Outcome
}

// Registry is the set of features a process serves, in registration order.
type Registry struct {
	order  []string
	byName map[string]Feature
}

// NewRegistry rejects duplicate names and features that share a file.
func NewRegistry(features ...Feature) (*Registry, error) {
	r := &Registry{byName: make(map[string]Feature, len(features))}
	files := make(map[string]string)
	for _, f := range features {
		if _, dup := r.byName[f.Name()]; dup {
			return nil, fmt.Errorf("feature %q registered twice", f.Name())
		}
		for _, file := range []string{f.QueueFile(), f.ResultFile()} {
			if owner, taken := files[file]; taken {
				return nil, fmt.Errorf("features %q and %q both use %s", owner, f.Name(), file)
			}
			files[file] = f.Name()
		}
		r.byName[f.Name()] = f
		r.order = append(r.order, f.Name())
	}
	return r, nil
}

// Get returns the named feature or ErrUnknownFeature.
func (r *Registry) Get(name string) (Feature, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	return f, nil
}

func (r *Registry) All() []Feature {
	out := make([]Feature, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select narrows the registry to names. An empty list keeps everything.
func (r *Registry) Select(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	picked := make([]Feature, 0, len(names))
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		f, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		picked = append(picked, f)
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return r.index(picked[i].Name()) < r.index(picked[j].Name())
	})
	return NewRegistry(picked...)
}

func (r *Registry) index(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return len(r.order)
}
