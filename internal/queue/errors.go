package queue

import "errors"

var (
	// ErrDuplicateRequest rejects an enqueue whose requestId is already queued or answered.
	ErrDuplicateRequest = errors.New("duplicate request id")
	// ErrPending means the poll timed out. The outcome is unknown, not failed.
	ErrPending = errors.New("result pending")
	// ErrNotFound means neither a result nor a queued record exists for the id.
	ErrNotFound = errors.New("request not found")
	// ErrLostUpdate means the appended record kept disappearing under concurrent writers.
	ErrLostUpdate = errors.New("enqueue lost to concurrent writers")
	// ErrUnknownFeature names a feature that is not registered.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrInvalidPayload wraps a feature's validation error.
	ErrInvalidPayload = errors.New("invalid payload")
)
