package status

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sudoservertools/sstbridge/internal/daemon"
	"github.com/sudoservertools/sstbridge/internal/feature"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

func registry(t *testing.T) *queue.Registry {
	t.Helper()
	reg, err := feature.NewRegistry(nil, log.Discard(), []string{feature.ItemGrantName, feature.VehicleKeyName})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func write(t *testing.T, s storage.Store, path, content string) {
	t.Helper()
	if err := s.Write(context.Background(), path, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCollect_EmptyStore(t *testing.T) {
	s := Collect(context.Background(), storage.NewMemory(), registry(t), "")
	if s.Consumer.Running {
		t.Error("consumer reported running without a socket")
	}
	if s.Consumer.Heartbeat != nil {
		t.Error("heartbeat reported without a metrics file")
	}
	if len(s.Queues) != 2 {
		t.Fatalf("expected 2 queues, got %d", len(s.Queues))
	}
	for _, q := range s.Queues {
		if q.Pending != 0 || q.Processed != 0 || q.Results != 0 {
			t.Errorf("%s: expected empty, got %+v", q.Feature, q)
		}
	}
}

func TestCollect_CountsRecords(t *testing.T) {
	store := storage.NewMemory()
	write(t, store, "item_grants.json", `{"requests":[
		{"requestId":"a","processed":false},
		{"requestId":"b","processed":true},
		{"requestId":"c","processed":false}]}`)
	write(t, store, "item_grants_results.json", `{"requests":[{"requestId":"b","status":"success","result":"ok"}]}`)
	write(t, store, "key_grants.json", `{"requests":[`)

	hb := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, _ := json.Marshal(daemon.Metrics{PID: 4242, Heartbeat: hb})
	write(t, store, daemon.MetricsFile, string(data))

	s := Collect(context.Background(), store, registry(t), "")
	if s.Consumer.Heartbeat == nil || !s.Consumer.Heartbeat.Equal(hb) {
		t.Errorf("heartbeat: got %v", s.Consumer.Heartbeat)
	}
	if s.Consumer.PID != 4242 {
		t.Errorf("pid: got %d", s.Consumer.PID)
	}

	grant := s.Queues[0]
	if grant.Feature != feature.ItemGrantName || grant.Pending != 2 || grant.Processed != 1 || grant.Results != 1 {
		t.Errorf("item_grant: got %+v", grant)
	}
	if !s.Queues[1].Malformed {
		t.Errorf("vehicle_key: expected malformed, got %+v", s.Queues[1])
	}
}

func TestRun_Text(t *testing.T) {
	store := storage.NewMemory()
	write(t, store, "item_grants.json", `{"requests":[{"requestId":"a","processed":false}]}`)

	var buf bytes.Buffer
	if err := Run(context.Background(), &buf, store, registry(t), "", false); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Consumer: not reachable", "FEATURE", "item_grant", "vehicle_key"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(context.Background(), &buf, storage.NewMemory(), registry(t), "", true); err != nil {
		t.Fatalf("run: %v", err)
	}
	var s BridgeStatus
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Queues) != 2 {
		t.Errorf("expected 2 queues, got %d", len(s.Queues))
	}
}
