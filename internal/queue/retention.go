package queue

import (
	"sort"
	"time"

	"github.com/sudoservertools/sstbridge/internal/model"
)

// Retention bounds how much history the two files keep.
type Retention struct {
	// KeepProcessed caps processed records kept in the queue file, newest first.
	KeepProcessed int
	// ProcessedMaxAge drops processed records completed longer ago than this. 0 disables.
	ProcessedMaxAge time.Duration
	// MaxResults caps the result file, oldest dropped first.
	MaxResults int
}

// DefaultRetention matches the mod's own caps.
func DefaultRetention() Retention {
	return Retention{KeepProcessed: 50, ProcessedMaxAge: 24 * time.Hour, MaxResults: 100}
}

// PruneRequests keeps every unprocessed record and the newest processed ones allowed by ret.
// Surviving records keep their relative order. It returns the kept records and how many were
// dropped.
func PruneRequests(reqs []model.Request, ret Retention, now time.Time) ([]model.Request, int) {
	type cand struct {
		idx int
		at  time.Time
	}
	var processed []cand
	drop := make(map[int]bool)

	for i, r := range reqs {
		if !r.Processed {
			continue
		}
		at := r.CompletedAt()
		if ret.ProcessedMaxAge > 0 && !at.IsZero() && now.Sub(at) > ret.ProcessedMaxAge {
			drop[i] = true
			continue
		}
		processed = append(processed, cand{idx: i, at: at})
	}

	keep := ret.KeepProcessed
	if keep < 0 {
		keep = 0
	}
	if len(processed) > keep {
		// newest first; file position breaks ties so later entries count as newer
		sort.SliceStable(processed, func(a, b int) bool {
			if !processed[a].at.Equal(processed[b].at) {
				return processed[a].at.After(processed[b].at)
			}
			return processed[a].idx > processed[b].idx
		})
		for _, c := range processed[keep:] {
			drop[c.idx] = true
		}
	}

	if len(drop) == 0 {
		return reqs, 0
	}
	out := make([]model.Request, 0, len(reqs)-len(drop))
	for i, r := range reqs {
		if !drop[i] {
			out = append(out, r)
		}
	}
	return out, len(drop)
}

// PruneResults keeps the newest limit results. Results are appended in completion order, so
// the oldest are at the front.
func PruneResults(results []model.Result, limit int) ([]model.Result, int) {
	return PruneResultsKeeping(results, limit, nil)
}

// PruneResultsKeeping drops the oldest results beyond limit, skipping any whose id is in
// keep. The file may stay over limit until those ids are no longer protected.
func PruneResultsKeeping(results []model.Result, limit int, keep map[string]bool) ([]model.Result, int) {
	if limit <= 0 || len(results) <= limit {
		return results, 0
	}
	excess := len(results) - limit
	out := make([]model.Result, 0, len(results))
	dropped := 0
	for _, res := range results {
		if dropped < excess && !keep[res.RequestID] {
			dropped++
			continue
		}
		out = append(out, res)
	}
	if dropped == 0 {
		return results, 0
	}
	return out, dropped
}
