package channel

import (
	"errors"
	"fmt"
)

// ErrEmptyJobID is returned by Connect when no job id is supplied.
var ErrEmptyJobID = errors.New("channel: job id is required")

// StreamError reports a problem on the push stream. Closed is set when the
// connection ended or could not be opened; Malformed is set for an event whose
// payload could not be decoded, in which case the subscription stays open.
type StreamError struct {
	JobID     string
	Closed    bool
	Malformed bool
	Err       error
}

func (e *StreamError) Error() string {
	switch {
	case e.Malformed:
		return fmt.Sprintf("malformed progress event for job %s: %v", e.JobID, e.Err)
	case e.Closed && e.Err == nil:
		return fmt.Sprintf("progress stream for job %s: connection closed", e.JobID)
	case e.Closed:
		return fmt.Sprintf("progress stream for job %s: connection closed: %v", e.JobID, e.Err)
	default:
		return fmt.Sprintf("progress stream for job %s: connection error: %v", e.JobID, e.Err)
	}
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
