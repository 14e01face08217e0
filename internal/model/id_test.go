package model

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewRequestID(t *testing.T) {
	id, err := NewRequestID()
	if err != nil {
		t.Fatalf("NewRequestID returned error: %v", err)
	}
	if !IsULID(id) {
		t.Errorf("generated id %q is not a ULID", id)
	}
	if err := ValidateRequestID(id); err != nil {
		t.Errorf("generated id rejected: %v", err)
	}
}

func TestNewRequestID_UniqueAcrossGoroutines(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := NewRequestID()
				if err != nil {
					t.Errorf("NewRequestID: %v", err)
					return
				}
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1600 {
		t.Errorf("expected 1600 ids, got %d", len(seen))
	}
}

func TestRequestIDTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id, _ := NewRequestID()
	ts, err := RequestIDTime(id)
	if err != nil {
		t.Fatalf("RequestIDTime: %v", err)
	}
	if ts.Before(before) {
		t.Errorf("timestamp %v is before %v", ts, before)
	}

	if _, err := RequestIDTime("not-a-ulid"); err == nil {
		t.Error("expected error for non-ULID id")
	}
}

func TestValidateRequestID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"r1", false},
		{"2026-03-01T12:00:00Z", false},
		{"", true},
		{"   ", true},
		{"bad\nid", true},
		{strings.Repeat("x", MaxRequestIDLen+1), true},
	}
	for _, tt := range tests {
		if err := ValidateRequestID(tt.id); (err != nil) != tt.wantErr {
			t.Errorf("ValidateRequestID(%q) err = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}
