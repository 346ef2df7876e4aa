package job

import "time"

// StatusSnapshot is one {status, progress} observation of a job, from either
// the push stream or the status poll.
type StatusSnapshot struct {
	JobID        string
	Status       Status
	Progress     int
	ErrorMessage string
	FileSize     int64
	ExpiresAt    *time.Time
}

// Metadata is the read-only video information fetched before download.
type Metadata struct {
	Title              string   `json:"title"`
	Uploader           string   `json:"uploader"`
	Duration           float64  `json:"duration"`
	ViewCount          int64    `json:"view_count"`
	ThumbnailURL       string   `json:"thumbnail_url"`
	AvailableSubtitles []string `json:"available_subtitles"`
}

// DurationValue converts the duration in seconds to a time.Duration.
func (m Metadata) DurationValue() time.Duration {
	return time.Duration(m.Duration * float64(time.Second))
}
