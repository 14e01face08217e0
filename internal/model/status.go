package model

import "fmt"

// Status is the tri-state outcome of a request. The string values are shared with the mod
// and the dashboard and must not change without versioning both sides.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var validStatuses = map[Status]bool{
	StatusPending: true,
	StatusSuccess: true,
	StatusFailed:  true,
}

var terminalStatuses = map[Status]bool{
	StatusSuccess: true,
	StatusFailed:  true,
}

// IsTerminal reports whether no further outcome can follow s.
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// ParseStatus accepts the canonical values plus "completed", which older mod builds wrote
// for a successful request.
func ParseStatus(s string) (Status, error) {
	if s == "completed" {
		return StatusSuccess, nil
	}
	st := Status(s)
	if !validStatuses[st] {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// ValidateResultTransition only allows pending → success|failed.
func ValidateResultTransition(from, to Status) error {
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	if !validStatuses[from] {
		return fmt.Errorf("unknown status %q", from)
	}
	if !IsTerminal(to) {
		return fmt.Errorf("invalid result transition: %q → %q", from, to)
	}
	return nil
}
