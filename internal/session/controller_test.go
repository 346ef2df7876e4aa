package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/channel"
	"github.com/JakeFAU/ytdl-client/internal/clock/clocktest"
	"github.com/JakeFAU/ytdl-client/internal/gateway"
	"github.com/JakeFAU/ytdl-client/internal/job"
	"github.com/JakeFAU/ytdl-client/internal/progress"
	"github.com/JakeFAU/ytdl-client/internal/storage"
	"github.com/JakeFAU/ytdl-client/internal/storage/memory"
)

const waitFor = 2 * time.Second

func TestController_SetURLValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	err := h.ctrl.SetURL("https://example.com/video")
	var vErr *gateway.ValidationError
	require.ErrorAs(t, err, &vErr)
	snap := h.ctrl.Snapshot()
	require.Equal(t, "Please enter a valid YouTube URL", snap.URLError)
	require.Equal(t, job.StatusIdle, snap.Status)
	require.Empty(t, snap.Logs)

	require.NoError(t, h.ctrl.SetURL("youtu.be/abc123"))
	require.Empty(t, h.ctrl.Snapshot().URLError)

	require.NoError(t, h.ctrl.SetURL(""))
	require.Empty(t, h.ctrl.Snapshot().URLError)
}

func TestController_SubmitBlockedByInvalidURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	require.Error(t, h.ctrl.SetURL("not a url"))

	err := h.ctrl.Submit()
	var vErr *gateway.ValidationError
	require.ErrorAs(t, err, &vErr)
	snap := h.ctrl.Snapshot()
	require.Equal(t, job.StatusIdle, snap.Status)
	require.Empty(t, snap.Logs)
	require.Zero(t, h.gw.createCount())
}

func TestController_SetOptionsRejectsUnknownValues(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	require.Error(t, h.ctrl.SetOptions("flac", false, nil))
	require.Error(t, h.ctrl.SetOptions(job.FormatVideo, false, job.AdvancedOptions{"rate": "1M"}))
	require.NoError(t, h.ctrl.SetOptions(job.FormatAudioWAV, true, job.AdvancedOptions{job.OptionProxy: "socks5://p"}))
	req := h.ctrl.Snapshot().Request
	require.Equal(t, job.FormatAudioWAV, req.Format)
	require.True(t, req.IncludeSubtitles)
}

func TestController_StreamToCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }

	require.NoError(t, h.ctrl.SetURL("https://youtu.be/xyz"))
	require.NoError(t, h.ctrl.SetOptions(job.FormatAudioMP3, false, nil))
	require.NoError(t, h.ctrl.Submit())

	stream := h.connected(t, "j1")
	require.Equal(t, MonitorStream, h.ctrl.Snapshot().Monitor)
	require.Equal(t, job.StatusProcessing, h.ctrl.Snapshot().Status)

	stream.OnOpen()
	stream.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusProcessing, Progress: 10})
	stream.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100})
	h.waitStatus(t, job.StatusCompleted)

	// A late duplicate from the superseded subscription is ignored.
	stream.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100})
	h.sync(t)

	snap := h.ctrl.Snapshot()
	require.Equal(t, 100, snap.Progress)
	require.Equal(t, MonitorNone, snap.Monitor)
	require.False(t, h.ch.isConnected())
	require.Equal(t, 1, countLogs(snap.Logs, "Download completed successfully!"))
	require.Equal(t, 1, countLogs(snap.Logs, "Progress monitoring started"))
	require.Equal(t, 1, countLogs(snap.Logs, "Download started with job ID: j1"))
	require.Equal(t, job.FormatAudioMP3, h.gw.lastRequest().Format)
	require.Equal(t, "https://youtu.be/xyz", h.gw.lastRequest().URL)
	require.Zero(t, h.gw.statusCount())

	kinds := h.events.kinds()
	require.Contains(t, kinds, progress.KindSubmitted)
	require.Equal(t, progress.KindDone, kinds[len(kinds)-1])
}

func TestController_StreamErrorFallsBackToPolling(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.status = func(int, string) (job.StatusSnapshot, error) {
		return job.StatusSnapshot{JobID: "j1", Status: job.StatusFailed, Progress: 0}, nil
	}

	h.submit(t, "https://youtu.be/xyz")
	stream := h.connected(t, "j1")
	stream.OnError(&channel.StreamError{JobID: "j1", Closed: true})

	h.waitStatus(t, job.StatusFailed)
	snap := h.ctrl.Snapshot()
	require.Equal(t, 0, snap.Progress)
	require.Equal(t, MonitorNone, snap.Monitor)
	require.False(t, h.ch.isConnected())
	require.Equal(t, 1, h.gw.statusCount())
	require.Empty(t, h.clk.Pending())
	require.GreaterOrEqual(t, countLevel(snap.Logs, job.LevelError), 1)
	require.Equal(t, 1, countLogs(snap.Logs, "Progress monitoring error: Connection closed"))
	require.Equal(t, "Download failed. Check logs for details.", snap.Message)
}

func TestController_PollsImmediatelyThenEveryInterval(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.status = func(call int, _ string) (job.StatusSnapshot, error) {
		if call == 1 {
			return job.StatusSnapshot{JobID: "j1", Status: job.StatusDownloading, Progress: 30}, nil
		}
		return job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100}, nil
	}

	h.submit(t, "https://youtu.be/xyz")
	stream := h.connected(t, "j1")
	stream.OnError(&channel.StreamError{JobID: "j1", Err: errors.New("reset")})

	h.waitPoll(t)
	require.Equal(t, 1, h.gw.statusCount())
	require.Equal(t, []time.Duration{DefaultPollInterval}, h.clk.Pending())
	snap := h.ctrl.Snapshot()
	require.Equal(t, MonitorPoll, snap.Monitor)
	require.Equal(t, "Downloading... 30%", snap.Message)
	require.False(t, h.ch.isConnected())

	h.clk.Advance(DefaultPollInterval - time.Millisecond)
	h.sync(t)
	require.Equal(t, 1, h.gw.statusCount())

	h.clk.Advance(time.Millisecond)
	h.waitStatus(t, job.StatusCompleted)
	require.Equal(t, 2, h.gw.statusCount())
	require.Empty(t, h.clk.Pending())
	require.Equal(t, []time.Duration{DefaultPollInterval}, h.clk.Scheduled())
}

func TestController_PollErrorsAreLoggedAndRetried(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.status = func(call int, _ string) (job.StatusSnapshot, error) {
		if call <= 2 {
			return job.StatusSnapshot{}, &gateway.TransportError{Op: gateway.OpStatus, Message: "Failed to get status"}
		}
		return job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100}, nil
	}

	h.submit(t, "https://youtu.be/xyz")
	h.connected(t, "j1").OnError(&channel.StreamError{JobID: "j1", Malformed: true, Err: errors.New("bad json")})

	for range 2 {
		h.waitPoll(t)
		require.NotEqual(t, job.StatusFailed, h.ctrl.Snapshot().Status)
		h.clk.Advance(DefaultPollInterval)
	}
	h.waitStatus(t, job.StatusCompleted)

	logs := h.ctrl.Snapshot().Logs
	require.Equal(t, 2, countLogs(logs, "Status polling error: Failed to get status"))
	require.Equal(t, 1, countLogs(logs, "Progress monitoring error: Malformed progress event"))
}

func TestController_MaxPollFailuresFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MaxPollFailures: 2, PollInterval: time.Second})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.status = func(int, string) (job.StatusSnapshot, error) {
		return job.StatusSnapshot{}, errors.New("connection refused")
	}

	h.submit(t, "https://youtu.be/xyz")
	h.connected(t, "j1").OnError(&channel.StreamError{JobID: "j1", Closed: true})

	h.waitPoll(t)
	h.clk.Advance(time.Second)
	h.waitStatus(t, job.StatusFailed)

	snap := h.ctrl.Snapshot()
	require.Equal(t, 2, h.gw.statusCount())
	require.Empty(t, h.clk.Pending())
	require.Contains(t, snap.Error, "after 2 status checks")
}

func TestController_ProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.submit(t, "https://youtu.be/xyz")
	stream := h.connected(t, "j1")

	for _, p := range []int{10, 50, 30, 60, 59} {
		stream.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusDownloading, Progress: p})
	}
	stream.OnUpdate(job.StatusSnapshot{JobID: "other", Status: job.StatusDownloading, Progress: 99})
	h.sync(t)

	var applied []int
	for _, evt := range h.events.all() {
		if evt.Kind == progress.KindStatus {
			applied = append(applied, evt.Progress)
		}
	}
	require.Equal(t, []int{10, 50, 50, 60, 60}, applied)
	require.Equal(t, 60, h.ctrl.Snapshot().Progress)
	require.Equal(t, "Downloading... 60%", h.ctrl.Snapshot().Message)
}

func TestController_CreateFailureFailsWithoutMonitoring(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) {
		return "", &gateway.ServerError{Op: gateway.OpCreateJob, StatusCode: http.StatusBadRequest, Message: "Video unavailable"}
	}

	h.submit(t, "https://youtu.be/xyz")
	h.waitStatus(t, job.StatusFailed)

	snap := h.ctrl.Snapshot()
	require.Equal(t, "Video unavailable", snap.Error)
	require.Empty(t, snap.JobID)
	require.Equal(t, 1, countLogs(snap.Logs, "Download failed: Video unavailable"))
	require.Zero(t, h.ch.connectCount())
	require.NotContains(t, h.events.statuses(), job.StatusProcessing)
}

func TestController_RetryResetsProgressAndMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	seen := make(chan State, 2)
	h.gw.create = func(job.Request) (string, error) {
		seen <- h.ctrl.Snapshot()
		if h.gw.createCount() == 1 {
			return "j1", nil
		}
		return "j2", nil
	}

	require.ErrorIs(t, h.ctrl.Retry(), ErrRetryNotAllowed)

	require.NoError(t, h.ctrl.SetOptions(job.FormatAudioMP3, true, job.AdvancedOptions{job.OptionCookies: "/a"}))
	h.submit(t, "https://youtu.be/xyz")
	<-seen
	stream := h.connected(t, "j1")
	stream.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusDownloading, Progress: 40})
	stream.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusFailed, Progress: 40, ErrorMessage: "HTTP Error 403"})
	h.waitStatus(t, job.StatusFailed)
	require.Equal(t, 40, h.ctrl.Snapshot().Progress)
	require.Equal(t, 1, countLogs(h.ctrl.Snapshot().Logs, "Download failed: HTTP Error 403"))

	// Editing the form does not change what a retry re-submits.
	require.NoError(t, h.ctrl.SetURL("https://youtu.be/other"))
	require.NoError(t, h.ctrl.Retry())
	atCreate := <-seen
	require.Equal(t, 0, atCreate.Progress)
	require.Empty(t, atCreate.Message)
	require.Equal(t, job.StatusPending, atCreate.Status)

	h.connected(t, "j2")
	last := h.gw.lastRequest()
	require.Equal(t, "https://youtu.be/xyz", last.URL)
	require.Equal(t, job.FormatAudioMP3, last.Format)
	require.Equal(t, job.AdvancedOptions{job.OptionCookies: "/a"}, last.AdvancedOptions)
	require.Equal(t, 1, countLogs(h.ctrl.Snapshot().Logs, "Retrying download..."))
	require.Equal(t, job.StatusProcessing, h.ctrl.Snapshot().Status)
	require.Equal(t, "j2", h.ctrl.Snapshot().JobID)
}

func TestController_NewSubmitCancelsPriorMonitoring(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	ids := []string{"j1", "j2"}
	var mu sync.Mutex
	h.gw.create = func(job.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	h.gw.status = func(_ int, jobID string) (job.StatusSnapshot, error) {
		return job.StatusSnapshot{JobID: jobID, Status: job.StatusProcessing, Progress: 20}, nil
	}

	h.submit(t, "https://youtu.be/xyz")
	old := h.connected(t, "j1")
	old.OnError(&channel.StreamError{JobID: "j1", Closed: true})
	h.waitPoll(t)

	require.NoError(t, h.ctrl.Submit())
	fresh := h.connected(t, "j2")
	require.Empty(t, h.clk.Pending())

	old.OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100})
	fresh.OnUpdate(job.StatusSnapshot{JobID: "j2", Status: job.StatusDownloading, Progress: 5})
	h.sync(t)

	snap := h.ctrl.Snapshot()
	require.Equal(t, "j2", snap.JobID)
	require.Equal(t, job.StatusDownloading, snap.Status)
	require.Equal(t, 5, snap.Progress)
	require.Equal(t, MonitorStream, snap.Monitor)
	require.Equal(t, 1, h.gw.statusCount())
}

func TestController_CloseTearsDownMonitoring(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.status = func(int, string) (job.StatusSnapshot, error) {
		return job.StatusSnapshot{JobID: "j1", Status: job.StatusProcessing, Progress: 1}, nil
	}
	h.submit(t, "https://youtu.be/xyz")
	h.connected(t, "j1").OnError(errors.New("boom"))
	h.waitPoll(t)

	h.ctrl.Close()
	h.ctrl.Close()

	require.Empty(t, h.clk.Pending())
	require.False(t, h.ch.isConnected())
	require.Equal(t, MonitorNone, h.ctrl.Snapshot().Monitor)
	require.ErrorIs(t, h.ctrl.Submit(), ErrClosed)
	require.ErrorIs(t, h.ctrl.SetURL("youtu.be/abc"), ErrClosed)
}

func TestController_FetchMetadata(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.gw.metadata = func(rawURL string) (job.Metadata, error) {
		if strings.Contains(rawURL, "gone") {
			return job.Metadata{}, &gateway.ServerError{Op: gateway.OpMetadata, StatusCode: 404, Message: "Video not found"}
		}
		return job.Metadata{Title: "A Video", Duration: 61}, nil
	}

	md, err := h.ctrl.FetchMetadata(context.Background(), "https://youtu.be/xyz")
	require.NoError(t, err)
	require.Equal(t, "A Video", md.Title)
	snap := h.ctrl.Snapshot()
	require.Equal(t, "A Video", snap.Metadata.Title)
	require.Equal(t, []string{"Fetching video metadata...", "Metadata loaded: A Video"}, messages(snap.Logs))

	_, err = h.ctrl.FetchMetadata(context.Background(), "https://youtu.be/gone")
	require.Error(t, err)
	snap = h.ctrl.Snapshot()
	require.Equal(t, "Video not found", snap.Error)
	require.Equal(t, "Failed to get metadata: Video not found", snap.Logs[len(snap.Logs)-1].Message)

	require.NoError(t, h.ctrl.ClearLogs())
	_, err = h.ctrl.FetchMetadata(context.Background(), "https://example.com/x")
	var vErr *gateway.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Empty(t, h.ctrl.Snapshot().Logs)
}

func TestController_SaveArtifact(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	h := newHarness(t, Config{Storage: blobs, StoragePrefix: "downloads"})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.artifact = func(jobID string) (gateway.Artifact, error) {
		return gateway.Artifact{Filename: "My Song.mp3", ContentType: "audio/mpeg", Data: []byte("ID3")}, nil
	}

	_, err := h.ctrl.SaveArtifact(context.Background())
	require.ErrorIs(t, err, ErrNoArtifact)

	h.submit(t, "https://youtu.be/xyz")
	h.connected(t, "j1").OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100})
	h.waitStatus(t, job.StatusCompleted)

	uri, err := h.ctrl.SaveArtifact(context.Background())
	require.NoError(t, err)
	require.Equal(t, "memory://downloads/My Song.mp3", uri)
	obj, ok := blobs.Get("downloads/My Song.mp3")
	require.True(t, ok)
	require.Equal(t, "ID3", string(obj.Data))

	snap := h.ctrl.Snapshot()
	require.Equal(t, uri, snap.ArtifactURI)
	logs := messages(snap.Logs)
	require.Equal(t, []string{"Preparing file download...", "File download completed"}, logs[len(logs)-2:])
}

func TestController_SaveArtifactStorageFailure(t *testing.T) {
	t.Parallel()

	store := &storage.MockProvider{}
	store.On("PutObject", mock.Anything, "download_j1", "", mock.Anything).
		Return("", errors.New("disk full")).Once()
	h := newHarness(t, Config{Storage: store})
	h.gw.create = func(job.Request) (string, error) { return "j1", nil }
	h.gw.artifact = func(jobID string) (gateway.Artifact, error) {
		return gateway.Artifact{Filename: "download_" + jobID, Data: []byte("x")}, nil
	}
	h.submit(t, "https://youtu.be/xyz")
	h.connected(t, "j1").OnUpdate(job.StatusSnapshot{JobID: "j1", Status: job.StatusCompleted, Progress: 100})
	h.waitStatus(t, job.StatusCompleted)

	_, err := h.ctrl.SaveArtifact(context.Background())
	require.EqualError(t, err, "disk full")
	logs := h.ctrl.Snapshot().Logs
	require.Equal(t, "File download failed: disk full", logs[len(logs)-1].Message)
	require.Equal(t, job.LevelError, logs[len(logs)-1].Level)
	store.AssertExpectations(t)
}

// harness wires a Controller to in-memory fakes and a manual clock.
type harness struct {
	ctrl   *Controller
	gw     *fakeGateway
	ch     *fakeChannel
	clk    *clocktest.Clock
	events *eventRecorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		gw:     &fakeGateway{},
		ch:     &fakeChannel{},
		clk:    clocktest.New(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		events: &eventRecorder{},
	}
	cfg.Emitter = h.events
	h.ctrl = New(h.gw, h.ch, h.clk, cfg, zap.NewNop())
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) submit(t *testing.T, rawURL string) {
	t.Helper()
	require.NoError(t, h.ctrl.SetURL(rawURL))
	require.NoError(t, h.ctrl.Submit())
}

// connected waits for the stream subscription to jobID and for the
// controller to publish the resulting state.
func (h *harness) connected(t *testing.T, jobID string) channel.Handlers {
	t.Helper()
	handlers := h.ch.waitConnected(t, jobID)
	h.sync(t)
	return handlers
}

// waitPoll waits until exactly one poll is scheduled.
func (h *harness) waitPoll(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.clk.Pending()) == 1 }, waitFor, time.Millisecond)
	h.sync(t)
}

func (h *harness) waitStatus(t *testing.T, status job.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Status == status
	}, waitFor, time.Millisecond)
}

// sync waits until every closure posted so far has run.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.exec(func() error { return nil }))
}

type fakeGateway struct {
	mu       sync.Mutex
	create   func(job.Request) (string, error)
	status   func(call int, jobID string) (job.StatusSnapshot, error)
	metadata func(string) (job.Metadata, error)
	artifact func(string) (gateway.Artifact, error)

	requests    []job.Request
	statusCalls int
}

func (g *fakeGateway) FetchMetadata(_ context.Context, rawURL string) (job.Metadata, error) {
	return g.metadata(rawURL)
}

func (g *fakeGateway) CreateJob(_ context.Context, req job.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	fn := g.create
	g.mu.Unlock()
	return fn(req)
}

func (g *fakeGateway) FetchStatus(_ context.Context, jobID string) (job.StatusSnapshot, error) {
	g.mu.Lock()
	g.statusCalls++
	call, fn := g.statusCalls, g.status
	g.mu.Unlock()
	return fn(call, jobID)
}

func (g *fakeGateway) FetchArtifact(_ context.Context, jobID string) (gateway.Artifact, error) {
	return g.artifact(jobID)
}

func (g *fakeGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *fakeGateway) lastRequest() job.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func (g *fakeGateway) statusCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	jobID     string
	handlers  channel.Handlers
	connects  int
}

func (c *fakeChannel) Connect(_ context.Context, jobID string, h channel.Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.jobID = jobID
	c.handlers = h
	c.connects++
	return nil
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeChannel) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// waitConnected blocks until the controller subscribed to jobID and returns
// the handlers it registered.
func (c *fakeChannel) waitConnected(t *testing.T, jobID string) channel.Handlers {
	t.Helper()
	var h channel.Handlers
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		h = c.handlers
		return c.connected && c.jobID == jobID
	}, waitFor, time.Millisecond)
	return h
}

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *eventRecorder) kinds() []progress.Kind {
	var out []progress.Kind
	for _, evt := range r.all() {
		if evt.Kind != progress.KindLog {
			out = append(out, evt.Kind)
		}
	}
	return out
}

func (r *eventRecorder) statuses() []job.Status {
	var out []job.Status
	for _, evt := range r.all() {
		out = append(out, evt.Status)
	}
	return out
}

func countLogs(logs []job.LogEntry, msg string) int {
	n := 0
	for _, l := range logs {
		if l.Message == msg {
			n++
		}
	}
	return n
}

func countLevel(logs []job.LogEntry, level job.LogLevel) int {
	n := 0
	for _, l := range logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

func messages(logs []job.LogEntry) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Message)
	}
	return out
}
