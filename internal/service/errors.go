package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrInvalidFortuneID = errors.New("fortune_id must be a UUID")
	ErrUnsupportedMime  = errors.New("unsupported mime type")
	ErrInvalidBucket    = errors.New("unknown bucket")
	ErrInvalidPath      = errors.New("invalid object path")
	ErrInvalidDimension = errors.New("width and height must be positive and size_bytes non-negative")
	ErrFortuneNotFound  = errors.New("fortune not found")
	ErrNotOwner         = errors.New("not the owner of this fortune")
	ErrNoEntitlement    = errors.New("an active subscription or trial is required for photos")
	ErrMediaNotFound    = errors.New("no photo attached to this fortune")
	ErrObjectMissing    = errors.New("uploaded object not found")
)

// StepError tags an internal failure with the step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}
