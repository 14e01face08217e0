// Package status summarizes a bridge directory: whether a consumer answers on its control
// socket and how deep each feature's queue is.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sudoservertools/sstbridge/internal/control"
	"github.com/sudoservertools/sstbridge/internal/daemon"
	"github.com/sudoservertools/sstbridge/internal/jsonfile"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

type BridgeStatus struct {
	Consumer ConsumerStatus `json:"consumer"`
	Queues   []QueueStatus  `json:"queues"`
}

type ConsumerStatus struct {
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	Heartbeat *time.Time `json:"heartbeat,omitempty"`
}

type QueueStatus struct {
	Feature   string `json:"feature"`
	Pending   int    `json:"pending"`
	Processed int    `json:"processed"`
	Results   int    `json:"results"`
	Malformed bool   `json:"malformed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Collect gathers the status. socketPath may be empty when the consumer runs on another host;
// the heartbeat from the metrics file is reported either way.
func Collect(ctx context.Context, store storage.Store, features *queue.Registry, socketPath string) BridgeStatus {
	var s BridgeStatus
	if socketPath != "" {
		s.Consumer = checkConsumer(ctx, socketPath)
	}
	if m, err := daemon.ReadMetrics(ctx, store); err == nil {
		hb := m.Heartbeat
		s.Consumer.Heartbeat = &hb
		if s.Consumer.PID == 0 {
			s.Consumer.PID = m.PID
		}
	}
	for _, f := range features.All() {
		s.Queues = append(s.Queues, queueDepth(ctx, store, f))
	}
	return s
}

// Run collects the status and prints it as text or JSON.
func Run(ctx context.Context, w io.Writer, store storage.Store, features *queue.Registry, socketPath string, jsonOutput bool) error {
	s := Collect(ctx, store, features, socketPath)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printStatus(w, s, time.Now())
	return nil
}

func checkConsumer(ctx context.Context, socketPath string) ConsumerStatus {
	client := control.NewClient(socketPath)
	client.SetTimeout(2 * time.Second)
	var pong struct {
		PID int `json:"pid"`
	}
	if err := client.Call(ctx, control.CmdPing, nil, &pong); err != nil {
		return ConsumerStatus{}
	}
	return ConsumerStatus{Running: true, PID: pong.PID}
}

func queueDepth(ctx context.Context, store storage.Store, f queue.Feature) QueueStatus {
	qs := QueueStatus{Feature: f.Name()}

	q, _, err := jsonfile.ReadQueue(ctx, store, f.QueueFile())
	switch {
	case errors.Is(err, jsonfile.ErrMalformed):
		qs.Malformed = true
	case err != nil:
		qs.Error = err.Error()
		return qs
	}
	for _, r := range q.Requests {
		if r.Processed {
			qs.Processed++
		} else {
			qs.Pending++
		}
	}

	rf, _, err := jsonfile.ReadResults(ctx, store, f.ResultFile())
	switch {
	case errors.Is(err, jsonfile.ErrMalformed):
		qs.Malformed = true
	case err != nil:
		qs.Error = err.Error()
	default:
		qs.Results = len(rf.Requests)
	}
	return qs
}

func printStatus(w io.Writer, s BridgeStatus, now time.Time) {
	switch {
	case s.Consumer.Running:
		fmt.Fprintf(w, "Consumer: running (pid %d)\n", s.Consumer.PID)
	default:
		fmt.Fprintln(w, "Consumer: not reachable")
	}
	if s.Consumer.Heartbeat != nil {
		fmt.Fprintf(w, "Heartbeat: %s (%s ago)\n",
			s.Consumer.Heartbeat.Format(time.RFC3339), now.Sub(*s.Consumer.Heartbeat).Round(time.Second))
	}

	if len(s.Queues) == 0 {
		return
	}
	fmt.Fprintln(w, "\nQueues:")
	fmt.Fprintf(w, "  %-16s  %7s  %9s  %7s\n", "FEATURE", "PENDING", "PROCESSED", "RESULTS")
	for _, q := range s.Queues {
		line := fmt.Sprintf("  %-16s  %7d  %9d  %7d", q.Feature, q.Pending, q.Processed, q.Results)
		if q.Malformed {
			line += "  (malformed)"
		}
		if q.Error != "" {
			line += "  error: " + q.Error
		}
		fmt.Fprintln(w, line)
	}
}
