package model

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// MaxRequestIDLen bounds caller-supplied request ids.
const MaxRequestIDLen = 128

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a ULID: time-ordered, 80 random bits, safe to generate from several
// producer processes at once.
func NewRequestID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return id.String(), nil
}

// IsULID reports whether id was produced by NewRequestID.
func IsULID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// ValidateRequestID checks a caller-supplied id.
func ValidateRequestID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("requestId is empty")
	}
	if len(id) > MaxRequestIDLen {
		return fmt.Errorf("requestId exceeds %d bytes", MaxRequestIDLen)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("requestId contains control characters")
		}
	}
	return nil
}

// RequestIDTime extracts the creation time from a ULID request id.
func RequestIDTime(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid request id %q: %w", id, err)
	}
	return ulid.Time(u.Time()), nil
}
