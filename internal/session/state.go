package session

import (
	"github.com/JakeFAU/ytdl-client/internal/job"
)

// Monitor names the update source currently watching the job.
type Monitor string

// Monitoring sources. At most one is active at a time.
const (
	MonitorNone   Monitor = "none"
	MonitorStream Monitor = "stream"
	MonitorPoll   Monitor = "poll"
)

// State is a point-in-time copy of the session.
type State struct {
	URL      string      `json:"url"`
	URLError string      `json:"url_error,omitempty"`
	Request  job.Request `json:"request"`

	Status   job.Status `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
	JobID    string     `json:"job_id,omitempty"`
	// Error is the inline error for the latest failed operation.
	Error   string  `json:"error,omitempty"`
	Monitor Monitor `json:"monitor"`

	Metadata    *job.Metadata  `json:"metadata,omitempty"`
	ArtifactURI string         `json:"artifact_uri,omitempty"`
	Logs        []job.LogEntry `json:"logs"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Request = s.Request.Clone()
	out.Logs = append([]job.LogEntry(nil), s.Logs...)
	if s.Metadata != nil {
		md := *s.Metadata
		md.AvailableSubtitles = append([]string(nil), s.Metadata.AvailableSubtitles...)
		out.Metadata = &md
	}
	return out
}
