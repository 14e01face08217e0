package feature

import (
	"fmt"
	"regexp"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem with a payload.
type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(field, format string, args ...any) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when nothing was added, so callers can return it directly.
func (ve *ValidationErrors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}

var steam64 = regexp.MustCompile(`^[0-9]{17}$`)

func checkPlayerID(errs *ValidationErrors, id string) {
	if !steam64.MatchString(id) {
		errs.Add("playerId", "must be a 17-digit Steam64 id")
	}
}

func checkRequired(errs *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, "is required")
	}
}
