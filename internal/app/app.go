// Package app initializes and holds long-lived client services, acting as a
// dependency injection container for the CLI and terminal UI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/api"
	"github.com/JakeFAU/ytdl-client/internal/channel"
	"github.com/JakeFAU/ytdl-client/internal/clock"
	"github.com/JakeFAU/ytdl-client/internal/clock/system"
	"github.com/JakeFAU/ytdl-client/internal/config"
	"github.com/JakeFAU/ytdl-client/internal/gateway"
	"github.com/JakeFAU/ytdl-client/internal/heartbeat"
	"github.com/JakeFAU/ytdl-client/internal/progress"
	"github.com/JakeFAU/ytdl-client/internal/progress/sinks"
	"github.com/JakeFAU/ytdl-client/internal/publisher/pubsub"
	"github.com/JakeFAU/ytdl-client/internal/session"
	"github.com/JakeFAU/ytdl-client/internal/storage"
	"github.com/JakeFAU/ytdl-client/internal/storage/gcs"
	"github.com/JakeFAU/ytdl-client/internal/storage/local"
)

// Publisher is a closable notification publisher.
type Publisher interface {
	sinks.Publisher
	Close() error
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	clock      clock.Clock
	registerer prometheus.Registerer
	storage    storage.Provider
	publisher  Publisher
	sinks      []progress.Sink
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRegisterer registers progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStorage replaces the configured artifact store.
func WithStorage(p storage.Provider) Option {
	return func(o *options) { o.storage = p }
}

// WithPublisher replaces the configured notification publisher. The topic is
// still taken from config, or "ytdl-jobs" when unset.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithSinks adds extra progress sinks, e.g. the terminal UI.
func WithSinks(s ...progress.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

const defaultTopic = "ytdl-jobs"

// App holds the shared, long-lived services for one client run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   clock.Clock
	gateway *gateway.Client
	channel *channel.Manager
	session *session.Controller
	hub     *progress.Hub
	storage storage.Provider
	pub     Publisher
	server  *api.Server

	mu        sync.Mutex
	hb        *heartbeat.Heartbeat
	srvCancel context.CancelFunc
	srvDone   chan struct{}
	closeOnce sync.Once
}

// New builds every service from cfg. It fails fast when a configured backend
// (bucket, topic) cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	logger.Debug("initializing client services", zap.String("backend", cfg.Gateway.BaseURL))

	gw, err := gateway.New(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.GatewayTimeout(),
		UserAgent: cfg.Gateway.UserAgent,
	}, logger.Named("gateway"))
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}
	// The stream is long-lived; only the request context bounds it.
	ch := channel.New(gw, &http.Client{}, logger.Named("channel"))

	a := &App{cfg: cfg, logger: logger, clock: o.clock, gateway: gw, channel: ch}

	a.storage = o.storage
	if a.storage == nil {
		if a.storage, err = openStorage(ctx, cfg.Storage, logger); err != nil {
			return nil, err
		}
	}

	a.pub = o.publisher
	if a.pub == nil && cfg.NotificationsEnabled() {
		logger.Info("publishing completion notifications", zap.String("topic", cfg.PubSub.TopicName))
		p, perr := pubsub.New(ctx, cfg.PubSub.ProjectID)
		if perr != nil {
			a.closeStorage()
			return nil, fmt.Errorf("init pubsub: %w", perr)
		}
		a.pub = p
	}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		a.closeStorage()
		a.closePublisher()
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("session")), promSink}
	if a.pub != nil {
		topic := cfg.PubSub.TopicName
		if topic == "" {
			topic = defaultTopic
		}
		hubSinks = append(hubSinks, sinks.NewPublisherSink(a.pub, topic, logger.Named("notify")))
	}
	hubSinks = append(hubSinks, o.sinks...)
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.BatchWait(),
		Logger:         logger.Named("hub"),
	}, hubSinks...)

	a.session = session.New(gw, ch, o.clock, session.Config{
		PollInterval:    cfg.PollInterval(),
		MaxPollFailures: cfg.Session.MaxPollFailures,
		Storage:         a.storage,
		StoragePrefix:   cfg.Storage.Prefix,
		Emitter:         a.hub,
	}, logger.Named("session"))

	if cfg.Server.Listen != "" {
		a.server = api.NewServer(a.session, gw, logger.Named("api"))
	}
	return a, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Backend {
	case config.StorageGCS:
		logger.Info("using gcs artifact storage", zap.String("bucket", cfg.GCSBucket))
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, nil
	case config.StorageLocal, "":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Gateway returns the backend client.
func (a *App) Gateway() *gateway.Client { return a.gateway }

// Session returns the job session controller.
func (a *App) Session() *session.Controller { return a.session }

// Dropped reports progress events discarded by a full hub.
func (a *App) Dropped() int64 { return a.hub.Dropped() }

// StartHeartbeat starts the activity pinger when enabled. Repeated calls
// return the running instance; it returns nil when heartbeats are disabled.
func (a *App) StartHeartbeat(ctx context.Context) *heartbeat.Heartbeat {
	if !a.cfg.Heartbeat.Enabled {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hb == nil {
		a.hb = heartbeat.Start(ctx, a.gateway, heartbeat.Config{
			Interval: a.cfg.HeartbeatInterval(),
			Clock:    a.clock,
		}, a.logger.Named("heartbeat"))
	}
	return a.hb
}

// Notify forwards a user interaction to the heartbeat, if running.
func (a *App) Notify(i heartbeat.Interaction) {
	a.mu.Lock()
	hb := a.hb
	a.mu.Unlock()
	if hb != nil {
		hb.Notify(i)
	}
}

// StartServer runs the operator server in the background when server.listen
// is set. Close stops it.
func (a *App) StartServer(ctx context.Context) {
	if a.server == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srvCancel != nil {
		return
	}
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.srvCancel, a.srvDone = cancel, done
	go func() {
		defer close(done)
		if err := a.server.Serve(srvCtx, a.cfg.Server.Listen); err != nil {
			a.logger.Error("operator server failed", zap.Error(err))
		}
	}()
}

// Close shuts every service down in dependency order: interaction sources,
// the session, the event hub, then remote clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		hb, cancel, done := a.hb, a.srvCancel, a.srvDone
		a.mu.Unlock()

		if hb != nil {
			hb.Stop()
		}
		if cancel != nil {
			cancel()
			<-done
		}
		a.session.Close()
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		if err := a.closePublisher(); err != nil {
			errs = append(errs, err)
		}
		if err := a.closeStorage(); err != nil {
			errs = append(errs, err)
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
	})
	return errors.Join(errs...)
}

func (a *App) closePublisher() error {
	if a.pub == nil {
		return nil
	}
	if err := a.pub.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}

func (a *App) closeStorage() error {
	c, ok := a.storage.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
