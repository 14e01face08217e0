// Package feature defines the concrete request types the bridge carries: item grants and
// deletes, player commands, vehicle keys and vehicle deletes.
package feature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/queue"
)

// Kind describes one feature over payload type P.
type Kind[P any] struct {
	Name       string
	QueueFile  string
	ResultFile string
	Validate   func(P) error
	// Execute may be nil in processes that only enqueue.
	Execute func(ctx context.Context, id string, p P) queue.Outcome
}

// Define turns a Kind into a queue.Feature.
func Define[P any](s Kind[P]) queue.Feature {
	return &definition[P]{kind: s}
}

type definition[P any] struct {
	kind Kind[P]
}

func (d *definition[P]) Name() string       { return d.kind.Name }
func (d *definition[P]) QueueFile() string  { return d.kind.QueueFile }
func (d *definition[P]) ResultFile() string { return d.kind.ResultFile }

func (d *definition[P]) Validate(raw json.RawMessage) error {
	p, err := d.decode(raw)
	if err != nil {
		return err
	}
	if d.kind.Validate == nil {
		return nil
	}
	return d.kind.Validate(p)
}

// Execute re-validates the payload: records can reach the queue file without going
// through an API process.
func (d *definition[P]) Execute(ctx context.Context, req model.Request) queue.Outcome {
	var p P
	if err := req.DecodePayload(&p); err != nil {
		return queue.Failed("invalid payload: %v", err)
	}
	if d.kind.Validate != nil {
		if err := d.kind.Validate(p); err != nil {
			return queue.Failed("invalid payload: %v", err)
		}
	}
	if d.kind.Execute == nil {
		return queue.Failed("%s is not executable in this process", d.kind.Name)
	}
	return d.kind.Execute(ctx, req.RequestID, p)
}

func (d *definition[P]) decode(raw json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", d.kind.Name, err)
	}
	return p, nil
}
