package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudoservertools/sstbridge/internal/model"
)

func TestPruneRequests(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id string, processed bool, ago time.Duration) model.Request {
		r := model.Request{RequestID: id, RequestedAt: processedAt(now.Add(-ago)), Processed: processed}
		if processed {
			r.ProcessedAt = processedAt(now.Add(-ago))
		}
		return r
	}

	tests := []struct {
		name    string
		in      []model.Request
		ret     Retention
		wantIDs []string
	}{
		{
			name:    "under limits untouched",
			in:      []model.Request{mk("a", true, time.Minute), mk("b", false, time.Minute)},
			ret:     Retention{KeepProcessed: 5, ProcessedMaxAge: time.Hour},
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "cap keeps newest processed, order preserved",
			in:      []model.Request{mk("old", true, 3*time.Minute), mk("u", false, 10*time.Hour), mk("mid", true, 2*time.Minute), mk("new", true, time.Minute)},
			ret:     Retention{KeepProcessed: 2},
			wantIDs: []string{"u", "mid", "new"},
		},
		{
			name:    "age drops processed only",
			in:      []model.Request{mk("stale", true, 48*time.Hour), mk("staleU", false, 48*time.Hour), mk("fresh", true, time.Hour)},
			ret:     Retention{KeepProcessed: 50, ProcessedMaxAge: 24 * time.Hour},
			wantIDs: []string{"staleU", "fresh"},
		},
		{
			name:    "zero max age disables age pruning",
			in:      []model.Request{mk("ancient", true, 1000*time.Hour)},
			ret:     Retention{KeepProcessed: 50},
			wantIDs: []string{"ancient"},
		},
		{
			name:    "keep zero drops every processed record",
			in:      []model.Request{mk("a", true, time.Minute), mk("b", false, time.Minute)},
			ret:     Retention{KeepProcessed: 0},
			wantIDs: []string{"b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, pruned := PruneRequests(tt.in, tt.ret, now)
			var ids []string
			for _, r := range got {
				ids = append(ids, r.RequestID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.in)-len(tt.wantIDs), pruned)
		})
	}
}

func TestPruneRequests_TiesBrokenByPosition(t *testing.T) {
	at := "2026-03-01T12:00:00Z"
	in := []model.Request{
		{RequestID: "1", Processed: true, ProcessedAt: at},
		{RequestID: "2", Processed: true, ProcessedAt: at},
		{RequestID: "3", Processed: true, ProcessedAt: at},
	}
	got, _ := PruneRequests(in, Retention{KeepProcessed: 2}, time.Now())
	assert.Equal(t, "2", got[0].RequestID)
	assert.Equal(t, "3", got[1].RequestID)
}

func TestPruneResults(t *testing.T) {
	var in []model.Result
	for i := 0; i < 5; i++ {
		in = append(in, model.Result{RequestID: idf(i)})
	}

	got, pruned := PruneResults(in, 3)
	assert.Equal(t, 2, pruned)
	assert.Equal(t, idf(2), got[0].RequestID)
	assert.Len(t, got, 3)

	got, pruned = PruneResults(in, 10)
	assert.Equal(t, 0, pruned)
	assert.Len(t, got, 5)
}

func TestPruneResultsKeeping(t *testing.T) {
	var in []model.Result
	for i := 0; i < 5; i++ {
		in = append(in, model.Result{RequestID: idf(i)})
	}

	got, pruned := PruneResultsKeeping(in, 3, map[string]bool{idf(0): true})
	assert.Equal(t, 2, pruned)
	require.Len(t, got, 3)
	assert.Equal(t, []string{idf(0), idf(3), idf(4)}, []string{got[0].RequestID, got[1].RequestID, got[2].RequestID})

	keepAll := map[string]bool{}
	for _, r := range in {
		keepAll[r.RequestID] = true
	}
	got, pruned = PruneResultsKeeping(in, 2, keepAll)
	assert.Equal(t, 0, pruned)
	assert.Len(t, got, 5)
}
