package model

import "time"

// ResultFile is the on-disk result document. The mod reads and writes the same
// "requests" key for both files.
type ResultFile struct {
	Requests []Result `json:"requests"`
}

// Result is the outcome of processing exactly one request.
type Result struct {
	RequestID   string `json:"requestId"`
	Status      Status `json:"status"`
	Result      string `json:"result"`
	ProcessedAt string `json:"processedAt"`
}

// NewResult builds a terminal result stamped with the completion time.
func NewResult(id string, status Status, message string, at time.Time) Result {
	return Result{
		RequestID:   id,
		Status:      status,
		Result:      message,
		ProcessedAt: at.UTC().Format(time.RFC3339),
	}
}

// PendingResult describes a request the consumer has not completed yet.
func PendingResult(id string) Result {
	return Result{RequestID: id, Status: StatusPending}
}

// Find returns the result for id, if present.
func (f ResultFile) Find(id string) (Result, bool) {
	for _, r := range f.Requests {
		if r.RequestID == id {
			return r, true
		}
	}
	return Result{}, false
}

// IDs returns the set of request ids that already have a result.
func (f ResultFile) IDs() map[string]bool {
	ids := make(map[string]bool, len(f.Requests))
	for _, r := range f.Requests {
		ids[r.RequestID] = true
	}
	return ids
}
