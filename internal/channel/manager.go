// Package channel owns the push subscription that carries live progress for a
// single job. The Manager never reconnects on its own: any stream failure is
// reported once through Handlers.OnError and the caller decides what to do.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/JakeFAU/ytdl-client/internal/job"
)

// State is the lifecycle position of the current subscription.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "stream_connecting"
	StateActive     State = "stream_active"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateDegraded   State = "degraded"
)

// URLResolver maps a job id to its progress stream endpoint.
type URLResolver interface {
	ProgressURL(jobID string) string
}

// Handlers receives subscription callbacks. They run on the subscription
// goroutine, in the order events arrive, and must not block for long.
type Handlers struct {
	OnOpen   func()
	OnUpdate func(job.StatusSnapshot)
	OnError  func(error)
}

// Manager holds at most one live subscription.
type Manager struct {
	urls   URLResolver
	http   *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  State
}

// New builds a Manager. httpClient must not carry a request timeout since the
// stream is long lived; nil selects a dedicated client.
func New(urls URLResolver, httpClient *http.Client, logger *zap.Logger) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		urls:   urls,
		http:   httpClient,
		logger: logger,
		state:  StateIdle,
	}
}

// Connect tears down any existing subscription and opens a new one for jobID.
// It returns immediately; progress flows through h.
func (m *Manager) Connect(ctx context.Context, jobID string, h Handlers) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrEmptyJobID
	}
	m.Disconnect()

	subCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.cancel = cancel
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Debug("progress stream connecting", zap.String("job_id", jobID))
	go m.run(subCtx, gen, jobID, h)
	return nil
}

// Disconnect closes the current subscription, if any. It is safe to call at
// any time and never waits for the subscription goroutine.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.state = StateIdle
}

// State reports the lifecycle position of the current subscription.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) run(ctx context.Context, gen uint64, jobID string, h Handlers) {
	client := sse.NewClient(m.urls.ProgressURL(jobID))
	client.Connection = m.http
	client.ReconnectStrategy = &backoff.StopBackOff{}

	opened := false
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		opened = true
		if m.transition(gen, StateActive) {
			m.logger.Info("progress stream open", zap.String("job_id", jobID))
			if h.OnOpen != nil {
				h.OnOpen()
			}
		}
		return nil
	}

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 || !m.current(gen) {
			return
		}
		snap, err := decodeEvent(msg.Data, jobID)
		if err != nil {
			m.logger.Warn("malformed progress event", zap.String("job_id", jobID), zap.Error(err))
			if h.OnError != nil {
				h.OnError(&StreamError{JobID: jobID, Malformed: true, Err: err})
			}
			return
		}
		if snap.JobID != jobID {
			m.logger.Debug("dropping progress event for another job",
				zap.String("job_id", jobID), zap.String("event_job_id", snap.JobID))
			return
		}
		switch snap.Status {
		case job.StatusCompleted:
			m.transition(gen, StateCompleted)
		case job.StatusFailed:
			m.transition(gen, StateFailed)
		}
		if h.OnUpdate != nil {
			h.OnUpdate(snap)
		}
	})

	if ctx.Err() != nil {
		return
	}
	var streamErr *StreamError
	if err == nil || !opened {
		streamErr = &StreamError{JobID: jobID, Closed: true, Err: err}
		if !m.transition(gen, StateDegraded) {
			return
		}
	} else {
		streamErr = &StreamError{JobID: jobID, Err: err}
		if !m.transition(gen, StateFailed) {
			return
		}
	}
	m.logger.Warn("progress stream ended", zap.String("job_id", jobID), zap.Error(streamErr))
	if h.OnError != nil {
		h.OnError(streamErr)
	}
}

// transition moves the subscription tagged gen to next. It reports false when
// gen has been superseded by Disconnect or a later Connect.
func (m *Manager) transition(gen uint64, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	m.state = next
	return true
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

type eventBody struct {
	JobID    string   `json:"job_id"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
}

// decodeEvent parses one stream payload. A payload without job_id is taken to
// belong to the subscribed job.
func decodeEvent(data []byte, jobID string) (job.StatusSnapshot, error) {
	var body eventBody
	if err := json.Unmarshal(data, &body); err != nil {
		return job.StatusSnapshot{}, fmt.Errorf("decode event: %w", err)
	}
	status, err := job.ParseStatus(body.Status)
	if err != nil {
		return job.StatusSnapshot{}, err
	}
	if body.Progress == nil {
		return job.StatusSnapshot{}, errors.New("event has no progress")
	}
	id := body.JobID
	if id == "" {
		id = jobID
	}
	return job.StatusSnapshot{
		JobID:    id,
		Status:   status,
		Progress: job.ClampProgress(int(math.Round(*body.Progress))),
	}, nil
}
