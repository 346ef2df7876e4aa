package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session: controller closed")
	// ErrRetryNotAllowed is returned by Retry unless the job has failed.
	ErrRetryNotAllowed = errors.New("session: retry is only allowed after a failure")
	// ErrNoArtifact is returned by SaveArtifact unless the job has completed.
	ErrNoArtifact = errors.New("session: no completed job to save")
	// ErrNoStorage is returned by SaveArtifact when no storage provider is set.
	ErrNoStorage = errors.New("session: artifact storage is not configured")
)

// PollError wraps one failed status poll. Attempt counts consecutive failures.
type PollError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("status poll %d for job %s: %v", e.Attempt, e.JobID, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
