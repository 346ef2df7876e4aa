package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JakeFAU/ytdl-client/internal/progress"
)

type sender interface {
	Send(msg tea.Msg)
}

// Sink is a progress sink that wakes the running program whenever the session
// changes. Batches that arrive before Attach are dropped; the model refreshes
// from the controller snapshot, not from the events themselves.
type Sink struct {
	mu sync.Mutex
	to sender
}

// NewSink returns a detached Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Attach routes later batches to p. A nil p detaches.
func (s *Sink) Attach(p sender) {
	s.mu.Lock()
	s.to = p
	s.mu.Unlock()
}

// Consume implements progress.Sink.
func (s *Sink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	to := s.to
	s.mu.Unlock()
	if to == nil || len(batch) == 0 {
		return nil
	}
	last := batch[len(batch)-1]
	to.Send(refreshMsg{last: last.Kind})
	return nil
}

// Close implements progress.Sink.
func (s *Sink) Close(context.Context) error {
	s.Attach(nil)
	return nil
}
