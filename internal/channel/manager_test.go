package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/job"
)

const waitFor = 2 * time.Second

func TestManager_DeliversUpdatesInOrder(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, func(jobID string, send func(string)) {
		send(fmt.Sprintf(`{"job_id":%q,"status":"processing","progress":10}`, jobID))
		send(fmt.Sprintf(`{"job_id":%q,"status":"downloading","progress":55.5}`, jobID))
	})
	mgr := New(srv, nil, zap.NewNop())
	rec := newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))
	t.Cleanup(mgr.Disconnect)

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 2 }, waitFor, 5*time.Millisecond)
	require.Equal(t, []job.StatusSnapshot{
		{JobID: "j1", Status: job.StatusProcessing, Progress: 10},
		{JobID: "j1", Status: job.StatusDownloading, Progress: 56},
	}, rec.snapshots())
	require.Equal(t, 1, rec.openCount())
	require.Equal(t, StateActive, mgr.State())
	require.Empty(t, rec.errs())
}

func TestManager_MalformedEventKeepsSubscription(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, func(_ string, send func(string)) {
		send(`{not json`)
		send(`{"status":"warping","progress":3}`)
		send(`{"status":"processing","progress":20}`)
	})
	mgr := New(srv, nil, zap.NewNop())
	rec := newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))
	t.Cleanup(mgr.Disconnect)

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, waitFor, 5*time.Millisecond)
	errs := rec.errs()
	require.Len(t, errs, 2)
	for _, err := range errs {
		var sErr *StreamError
		require.ErrorAs(t, err, &sErr)
		require.True(t, sErr.Malformed)
		require.False(t, sErr.Closed)
	}
	require.Equal(t, StateActive, mgr.State())
}

func TestManager_DropsEventsForOtherJobs(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, func(_ string, send func(string)) {
		send(`{"job_id":"other","status":"processing","progress":90}`)
		send(`{"job_id":"j1","status":"processing","progress":5}`)
	})
	mgr := New(srv, nil, zap.NewNop())
	rec := newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))
	t.Cleanup(mgr.Disconnect)

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, waitFor, 5*time.Millisecond)
	require.Equal(t, 5, rec.snapshots()[0].Progress)
}

func TestManager_TerminalPayloadDoesNotDisconnect(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, func(_ string, send func(string)) {
		send(`{"job_id":"j1","status":"completed","progress":100}`)
	})
	mgr := New(srv, nil, zap.NewNop())
	rec := newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))
	t.Cleanup(mgr.Disconnect)

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, waitFor, 5*time.Millisecond)
	require.Equal(t, StateCompleted, mgr.State())
	require.Never(t, func() bool { return srv.closedCount() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestManager_OpenFailureDegrades(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	mgr := New(staticURL(srv.URL), nil, zap.NewNop())
	rec := newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))

	require.Eventually(t, func() bool { return len(rec.errs()) == 1 }, waitFor, 5*time.Millisecond)
	var sErr *StreamError
	require.ErrorAs(t, rec.errs()[0], &sErr)
	require.True(t, sErr.Closed)
	require.Equal(t, StateDegraded, mgr.State())
	require.Zero(t, rec.openCount())
}

func TestManager_ServerCloseDegrades(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, func(_ string, send func(string)) {
		send(`{"job_id":"j1","status":"processing","progress":1}`)
	})
	srv.hangUp = true
	mgr := New(srv, nil, zap.NewNop())
	rec := newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))

	require.Eventually(t, func() bool { return len(rec.errs()) == 1 }, waitFor, 5*time.Millisecond)
	var sErr *StreamError
	require.ErrorAs(t, rec.errs()[0], &sErr)
	require.True(t, sErr.Closed)
	require.Contains(t, sErr.Error(), "connection closed")
	require.Equal(t, StateDegraded, mgr.State())
	require.Len(t, rec.snapshots(), 1)
}

func TestManager_DisconnectIsIdempotentAndSilent(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, nil)
	mgr := New(srv, nil, zap.NewNop())
	rec := newRecorder()

	mgr.Disconnect()
	require.Equal(t, StateIdle, mgr.State())

	require.NoError(t, mgr.Connect(context.Background(), "j1", rec.handlers()))
	require.Eventually(t, func() bool { return rec.openCount() == 1 }, waitFor, 5*time.Millisecond)

	mgr.Disconnect()
	mgr.Disconnect()

	require.Eventually(t, func() bool { return srv.closedCount() == 1 }, waitFor, 5*time.Millisecond)
	require.Never(t, func() bool { return len(rec.errs()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, StateIdle, mgr.State())
}

func TestManager_ConnectReplacesSubscription(t *testing.T) {
	t.Parallel()

	srv := newStreamServer(t, nil)
	mgr := New(srv, nil, zap.NewNop())
	first, second := newRecorder(), newRecorder()

	require.NoError(t, mgr.Connect(context.Background(), "a", first.handlers()))
	require.Eventually(t, func() bool { return first.openCount() == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, mgr.Connect(context.Background(), "b", second.handlers()))
	t.Cleanup(mgr.Disconnect)

	require.Eventually(t, func() bool { return srv.closedCount() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return second.openCount() == 1 }, waitFor, 5*time.Millisecond)
	require.Empty(t, first.errs())
	require.Equal(t, []string{"a", "b"}, srv.jobs())
}

func TestManager_ConnectRequiresJobID(t *testing.T) {
	t.Parallel()

	mgr := New(staticURL("http://127.0.0.1:0"), nil, nil)
	err := mgr.Connect(context.Background(), "  ", Handlers{})
	require.True(t, errors.Is(err, ErrEmptyJobID))
	require.Equal(t, StateIdle, mgr.State())
}

type staticURL string

func (u staticURL) ProgressURL(string) string { return string(u) }

// streamServer is a fake progress endpoint. It serves /api/progress/{id},
// runs script, then holds the connection until the client goes away unless
// hangUp is set.
type streamServer struct {
	*httptest.Server
	script func(jobID string, send func(string))
	hangUp bool

	mu     sync.Mutex
	seen   []string
	closed int
}

func newStreamServer(t *testing.T, script func(string, func(string))) *streamServer {
	t.Helper()
	s := &streamServer{script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *streamServer) ProgressURL(jobID string) string {
	return s.URL + "/api/progress/" + jobID
}

func (s *streamServer) serve(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Path[len("/api/progress/"):]
	s.mu.Lock()
	s.seen = append(s.seen, jobID)
	s.mu.Unlock()

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if s.script != nil {
		s.script(jobID, func(data string) {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		})
	}
	if s.hangUp {
		return
	}
	<-r.Context().Done()
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

func (s *streamServer) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *streamServer) jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

type recorder struct {
	mu      sync.Mutex
	opens   int
	updates []job.StatusSnapshot
	errors  []error
}

func newRecorder() *recorder { return &recorder{} }

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOpen: func() {
			r.mu.Lock()
			r.opens++
			r.mu.Unlock()
		},
		OnUpdate: func(s job.StatusSnapshot) {
			r.mu.Lock()
			r.updates = append(r.updates, s)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errors = append(r.errors, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

func (r *recorder) snapshots() []job.StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]job.StatusSnapshot(nil), r.updates...)
}

func (r *recorder) errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}
