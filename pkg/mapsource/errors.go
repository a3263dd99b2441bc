package mapsource

import (
	"errors"
	"fmt"
)

// ErrResourceExhausted reports that a source ran out of memory while
// activating or drawing. The condition is recoverable.
var ErrResourceExhausted = errors.New("resource exhausted")

// ErrNotActive is returned when drawing a source that is not active.
var ErrNotActive = errors.New("map source not active")

// ActivationError reports that a source could not allocate the resources it
// needs.
type ActivationError struct {
	MapID string
	Title string
	Err   error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate map %s (%s): %v", e.MapID, e.Title, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// ParseError reports that a map resource could not be turned into a
// Definition.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse map %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func activationError(def *Definition, err error) error {
	if err == nil {
		return nil
	}
	var ae *ActivationError
	if errors.As(err, &ae) {
		return err
	}
	return &ActivationError{MapID: def.ID, Title: def.Title, Err: err}
}
