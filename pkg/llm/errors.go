package llm

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame marks a stream frame whose payload is not valid JSON.
// Only surfaced under FramePolicyStrict.
var ErrMalformedFrame = errors.New("malformed stream frame")

// FrameError carries the offending payload of a rejected frame.
type FrameError struct {
	Payload string
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedFrame, e.Err)
}

func (e *FrameError) Unwrap() []error {
	return []error{ErrMalformedFrame, e.Err}
}

// TransportError is a network or remote failure during a completion request.
type TransportError struct {
	StatusCode int    // zero when no HTTP response was received
	Body       string // truncated response body for non-2xx statuses
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("completion API error (status %d): %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("completion request failed: %v", e.Err)
	default:
		return "completion request failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
