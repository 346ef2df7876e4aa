package job

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job as reported by the backend or held
// by the session controller.
type Status string

// Supported job statuses.
const (
	StatusIdle        Status = "idle"
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// statusExpired is reported by the backend once a finished artifact has been
// cleaned up; the client treats it as a failure.
const statusExpired = "expired"

// ParseStatus normalizes a backend status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case statusExpired:
		return StatusFailed, nil
	case StatusIdle, StatusPending, StatusProcessing, StatusDownloading, StatusCompleted, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown job status %q", raw)
	}
}

// IsTerminal reports whether no further updates are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the job is being worked on by the backend.
func (s Status) IsActive() bool {
	return s == StatusProcessing || s == StatusDownloading
}

// ClampProgress bounds a percentage to 0..100.
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
