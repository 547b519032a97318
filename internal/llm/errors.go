package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedOutput is returned when a generative call does not produce
	// exactly one JSON object.
	ErrMalformedOutput = errors.New("malformed generative output")
	// ErrProviderUnavailable is returned when a provider call fails at the
	// transport or API level.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// MalformedOutputError carries the raw text of a response that could not be
// parsed. It matches ErrMalformedOutput with errors.Is.
type MalformedOutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("stage %s: %v: %v", e.Stage, ErrMalformedOutput, e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedOutput.
func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

// IsMalformed returns true if err is a malformed-output error.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}

func providerError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
}
