package sinks

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/progress"
)

// Publisher delivers one notification payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the JSON body published when a job reaches a terminal status.
type Notification struct {
	JobID       string     `json:"job_id,omitempty"`
	Status      job.Status `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	FinishedAt  time.Time  `json:"finished_at"`
	DurationSec float64    `json:"duration_seconds"`
}

// PublisherSink publishes a Notification for every terminal event.
type PublisherSink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherSink builds a sink that publishes to topic through pub.
func NewPublisherSink(pub Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes terminal events and ignores the rest. Every terminal event
// is attempted; failures are joined into the returned error.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		id, err := s.pub.Publish(ctx, s.topic, Notification{
			JobID:       evt.JobID,
			Status:      evt.Status,
			Progress:    evt.Progress,
			Message:     evt.Message,
			FinishedAt:  evt.TS,
			DurationSec: evt.Dur.Seconds(),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("job notification published",
			zap.String("job_id", evt.JobID),
			zap.String("message_id", id),
			zap.String("topic", s.topic),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the publisher is closed by its owner.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
