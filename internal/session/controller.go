// Package session drives one download job from submission to a terminal
// status. A Controller owns the job state and its log; every mutation runs on
// a single event-loop goroutine, and gateway calls, stream callbacks and poll
// timers re-enter the loop by posting closures to it.
package session

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/channel"
	"github.com/JakeFAU/ytdl-client/internal/clock"
	"github.com/JakeFAU/ytdl-client/internal/gateway"
	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/progress"
	"github.com/JakeFAU/ytdl-client/internal/storage"
)

// DefaultPollInterval is the delay between fallback status polls.
const DefaultPollInterval = 2 * time.Second

const opsBuffer = 64

// Gateway is the subset of the backend client the controller calls.
type Gateway interface {
	FetchMetadata(ctx context.Context, rawURL string) (job.Metadata, error)
	CreateJob(ctx context.Context, req job.Request) (string, error)
	FetchStatus(ctx context.Context, jobID string) (job.StatusSnapshot, error)
	FetchArtifact(ctx context.Context, jobID string) (gateway.Artifact, error)
}

// Channel is the push subscription used for live progress.
type Channel interface {
	Connect(ctx context.Context, jobID string, h channel.Handlers) error
	Disconnect()
}

// Config tunes a Controller.
type Config struct {
	// PollInterval is the delay between fallback polls (default 2s).
	PollInterval time.Duration
	// MaxPollFailures fails the job after this many consecutive poll errors.
	// Zero polls until a terminal status or Close.
	MaxPollFailures int
	// Storage receives saved artifacts under StoragePrefix.
	Storage       storage.Provider
	StoragePrefix string
	// Emitter receives every state change; nil discards them.
	Emitter progress.Emitter
}

// Controller is the job session state machine.
type Controller struct {
	gw      Gateway
	ch      Channel
	clock   clock.Clock
	cfg     Config
	emitter progress.Emitter
	logger  *zap.Logger

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	rootCtx      context.Context
	rootCancel   context.CancelFunc
	jobCtx       context.Context
	jobCancel    context.CancelFunc
	state        State
	lastRequest  job.Request
	gen          uint64
	pollTimer    clock.Timer
	pollFailures int
	submittedAt  time.Time

	snapMu sync.RWMutex
	snap   State
}

// New builds a Controller and starts its event loop. Close releases it.
func New(gw Gateway, ch Channel, clk clock.Clock, cfg Config, logger *zap.Logger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = discard{}
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	c := &Controller{
		gw:         gw,
		ch:         ch,
		clock:      clk,
		cfg:        cfg,
		emitter:    emitter,
		logger:     logger,
		ops:        make(chan func(), opsBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		state: State{
			Status:  job.StatusIdle,
			Monitor: MonitorNone,
			Request: job.Request{Format: job.FormatVideo},
			Logs:    []job.LogEntry{},
		},
	}
	c.snap = c.state.Clone()
	go c.loop()
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.Clone()
}

// Logs returns a copy of the session log.
func (c *Controller) Logs() []job.LogEntry {
	return c.Snapshot().Logs
}

// SetURL records a URL edit and validates it. A non-empty URL that fails
// validation sets the inline error and returns a *gateway.ValidationError;
// nothing is logged.
func (c *Controller) SetURL(rawURL string) error {
	return c.exec(func() error {
		c.state.URL = rawURL
		c.state.URLError = ""
		if strings.TrimSpace(rawURL) != "" && !job.ValidateURL(rawURL) {
			return c.rejectURL()
		}
		return nil
	})
}

// SetOptions records the submission options used by the next Submit.
func (c *Controller) SetOptions(format job.Format, includeSubtitles bool, advanced job.AdvancedOptions) error {
	if format == "" {
		format = job.FormatVideo
	}
	if _, err := job.ParseFormat(string(format)); err != nil {
		return &gateway.ValidationError{Field: "format", Message: err.Error()}
	}
	if bad := advanced.UnknownKeys(); len(bad) > 0 {
		return &gateway.ValidationError{
			Field:   "advanced_options",
			Message: "Invalid advanced option: " + strings.Join(bad, ", "),
		}
	}
	opts := job.Request{AdvancedOptions: advanced}.Clone().AdvancedOptions
	return c.exec(func() error {
		c.state.Request.Format = format
		c.state.Request.IncludeSubtitles = includeSubtitles
		c.state.Request.AdvancedOptions = opts
		return nil
	})
}

// Submit starts a new job for the current URL and options. Any monitoring of
// a previous job stops first. It returns once the creation call is in flight.
func (c *Controller) Submit() error {
	return c.exec(func() error {
		if !job.ValidateURL(c.state.URL) {
			return c.rejectURL()
		}
		req := c.state.Request.Clone()
		req.URL = strings.TrimSpace(c.state.URL)
		c.submit(req)
		return nil
	})
}

// Retry re-submits the last request as a new job. It is only valid after the
// job failed.
func (c *Controller) Retry() error {
	return c.exec(func() error {
		if c.state.Status != job.StatusFailed || c.lastRequest.URL == "" {
			return ErrRetryNotAllowed
		}
		c.state.Progress = 0
		c.state.Message = ""
		c.state.JobID = ""
		c.appendLog(job.LevelInfo, "Retrying download...")
		c.submit(c.lastRequest.Clone())
		return nil
	})
}

// ClearLogs empties the session log.
func (c *Controller) ClearLogs() error {
	return c.exec(func() error {
		c.state.Logs = []job.LogEntry{}
		return nil
	})
}

// FetchMetadata loads video details for rawURL and records them in the state.
// Invalid URLs are rejected inline without a log entry.
func (c *Controller) FetchMetadata(ctx context.Context, rawURL string) (job.Metadata, error) {
	err := c.exec(func() error {
		if !job.ValidateURL(rawURL) {
			return c.rejectURL()
		}
		c.state.Error = ""
		c.appendLog(job.LevelInfo, "Fetching video metadata...")
		return nil
	})
	if err != nil {
		return job.Metadata{}, err
	}

	md, fetchErr := c.gw.FetchMetadata(ctx, rawURL)
	err = c.exec(func() error {
		if fetchErr != nil {
			c.state.Error = fetchErr.Error()
			c.appendLog(job.LevelError, "Failed to get metadata: "+fetchErr.Error())
			return nil
		}
		c.state.Metadata = &md
		c.appendLog(job.LevelInfo, "Metadata loaded: "+md.Title)
		return nil
	})
	if fetchErr != nil {
		return job.Metadata{}, fetchErr
	}
	return md, err
}

// SaveArtifact fetches the completed job's output and writes it to the
// configured storage. It returns the storage URI.
func (c *Controller) SaveArtifact(ctx context.Context) (string, error) {
	var jobID string
	err := c.exec(func() error {
		if c.state.Status != job.StatusCompleted || c.state.JobID == "" {
			return ErrNoArtifact
		}
		if c.cfg.Storage == nil {
			return ErrNoStorage
		}
		jobID = c.state.JobID
		c.appendLog(job.LevelInfo, "Preparing file download...")
		return nil
	})
	if err != nil {
		return "", err
	}

	uri, saveErr := c.saveArtifact(ctx, jobID)
	err = c.exec(func() error {
		if saveErr != nil {
			c.appendLog(job.LevelError, "File download failed: "+saveErr.Error())
			return nil
		}
		c.state.ArtifactURI = uri
		c.appendLog(job.LevelInfo, "File download completed")
		return nil
	})
	if saveErr != nil {
		return "", saveErr
	}
	return uri, err
}

func (c *Controller) saveArtifact(ctx context.Context, jobID string) (string, error) {
	art, err := c.gw.FetchArtifact(ctx, jobID)
	if err != nil {
		return "", err
	}
	key, err := storage.ObjectPath(c.cfg.StoragePrefix, art.Filename)
	if err != nil {
		return "", err
	}
	return c.cfg.Storage.PutObject(ctx, key, art.ContentType, bytes.NewReader(art.Data))
}

// Close stops monitoring, cancels in-flight calls and stops the event loop.
// It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.ops:
			fn()
			c.publish()
		case <-c.quit:
			c.stopMonitoring()
			c.rootCancel()
			c.publish()
			c.logger.Debug("session closed", zap.String("job_id", c.state.JobID))
			return
		}
	}
}

// post queues fn for the loop. It reports false once the controller closed.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.ops <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// exec runs fn on the loop and waits for its result.
func (c *Controller) exec(fn func() error) error {
	errc := make(chan error, 1)
	ok := c.post(func() {
		err := fn()
		c.publish()
		errc <- err
	})
	if !ok {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

func (c *Controller) publish() {
	snap := c.state.Clone()
	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()
}

func (c *Controller) rejectURL() error {
	c.state.URLError = invalidURLMessage
	return &gateway.ValidationError{Field: "url", Message: invalidURLMessage}
}

const invalidURLMessage = "Please enter a valid YouTube URL"

func (c *Controller) appendLog(level job.LogLevel, msg string) {
	entry := job.LogEntry{Level: level, Message: msg, Timestamp: c.clock.Now().UTC()}
	c.state.Logs = append(c.state.Logs, entry)
	c.emit(progress.KindLog, progress.SourceSession, func(e *progress.Event) { e.Log = &entry })
}

func (c *Controller) emit(kind progress.Kind, source progress.Source, mutate func(*progress.Event)) {
	evt := progress.Event{
		JobID:    c.state.JobID,
		TS:       c.clock.Now().UTC(),
		Kind:     kind,
		Status:   c.state.Status,
		Progress: c.state.Progress,
		Message:  c.state.Message,
		Source:   source,
	}
	if mutate != nil {
		mutate(&evt)
	}
	c.emitter.Emit(evt)
}

type discard struct{}

func (discard) Emit(progress.Event) {}
