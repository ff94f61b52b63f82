package generator

import (
	"errors"
	"fmt"
)

// Kind classifies why a generation fell back.
type Kind string

// Failure kinds.
const (
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindTransport   Kind = "transport"
	KindMalformed   Kind = "malformed"
	KindSchema      Kind = "schema"
)

// Failure is the cause recorded on a fallback result.
type Failure struct {
	Kind  Kind
	Stage string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s generation failed (%s): %v", f.Stage, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the failure kind of err, or "" when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
