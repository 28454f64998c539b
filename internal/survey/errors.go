package survey

import (
	"errors"
	"fmt"
	"strings"

	"agrosurvey/internal/store"
)

var (
	ErrSessionNotFound    = errors.New("survey session not found")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrAlreadySubmitted   = errors.New("survey already submitted")
	ErrSessionCompleted   = errors.New("survey session is completed")
)

// ValidationError rejects an edit or a submission without side effects.
type ValidationError struct {
	Reason string
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func validationErr(reason string, fields ...string) error {
	return &ValidationError{Reason: reason, Fields: fields}
}

// StoreWriteError reports a failed response write. It matches store.ErrWrite
// with errors.Is regardless of what the underlying store returned.
type StoreWriteError struct {
	Err error
}

func (e *StoreWriteError) Error() string {
	return "save response: " + e.Err.Error()
}

func (e *StoreWriteError) Unwrap() []error {
	return []error{store.ErrWrite, e.Err}
}
