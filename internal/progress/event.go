package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/ytdl-client/internal/job"
)

// Kind denotes which session milestone an Event represents.
type Kind string

// Supported event kinds.
const (
	KindSubmitted Kind = "JOB_SUBMITTED"
	KindStatus    Kind = "JOB_STATUS"
	KindDone      Kind = "JOB_DONE"
	KindError     Kind = "JOB_ERROR"
	KindLog       Kind = "LOG"
)

// Source names the component that produced the state change.
type Source string

// Supported sources.
const (
	SourceSession Source = "session"
	SourceStream  Source = "stream"
	SourcePoll    Source = "poll"
)

// Event is one observable change in the download session.
type Event struct {
	// JobID is the backend job id; empty for failures that happen before the
	// backend assigned one, and for session-level log lines.
	JobID string
	// TS is the UTC time recorded by the controller's clock.
	TS   time.Time
	Kind Kind
	// Status and Progress are the job state after the change was applied.
	Status   job.Status
	Progress int
	// Message is the user-facing inline message at the time of the event.
	Message string
	Source  Source
	// Dur is the wall time from submission, set on JOB_DONE and JOB_ERROR.
	Dur time.Duration
	// Log is set for LOG events only.
	Log *job.LogEntry
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindSubmitted, KindStatus, KindDone:
		if e.JobID == "" {
			return fmt.Errorf("%s requires job id", e.Kind)
		}
	case KindError:
	case KindLog:
		if e.Log == nil {
			return errors.New("log event requires entry")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes out a job.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}
