// Package rendering turns completed research requests into PDF reports and attaches
// the stored artifact to the request.
package rendering

import (
	"errors"
	"fmt"
)

// ErrNotCompleted is returned when a report is requested before the run completed.
var ErrNotCompleted = errors.New("research request is not completed")

// RenderError represents a general rendering failure
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
