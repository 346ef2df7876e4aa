// Package heartbeat keeps the backend from idling out while a user is present.
// A Heartbeat pings once on start, on every interval tick, and on every
// recognized user interaction. Ping failures are the sender's concern and
// never reach the caller.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ytdl-client/internal/clock"
	"github.com/JakeFAU/ytdl-client/internal/clock/system"
	"github.com/JakeFAU/ytdl-client/internal/metrics"
)

// DefaultInterval is the periodic ping cadence.
const DefaultInterval = 30 * time.Second

// Interaction is a user input event type that counts as activity.
type Interaction string

const (
	PointerDown Interaction = "pointer_down"
	PointerMove Interaction = "pointer_move"
	KeyPress    Interaction = "key_press"
	Scroll      Interaction = "scroll"
	TouchStart  Interaction = "touch_start"
	Click       Interaction = "click"
)

var interactions = map[Interaction]struct{}{
	PointerDown: {},
	PointerMove: {},
	KeyPress:    {},
	Scroll:      {},
	TouchStart:  {},
	Click:       {},
}

// Valid reports whether i is one of the recognized interaction types.
func (i Interaction) Valid() bool {
	_, ok := interactions[i]
	return ok
}

const (
	triggerStart    = "start"
	triggerInterval = "interval"
)

// Sender delivers one activity ping. Implementations swallow their own errors.
type Sender interface {
	SendHeartbeat(ctx context.Context)
}

// Config controls the heartbeat cadence.
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
}

// Heartbeat is a running activity pinger. Stop is its single teardown handle.
type Heartbeat struct {
	sender Sender
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	ticker clock.Ticker

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	once    sync.Once
}

// Start sends the first ping immediately and keeps pinging until Stop is
// called or ctx is done.
func Start(ctx context.Context, sender Sender, cfg Config, logger *zap.Logger) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hbCtx, cancel := context.WithCancel(ctx)
	h := &Heartbeat{
		sender: sender,
		logger: logger,
		ctx:    hbCtx,
		cancel: cancel,
		ticker: cfg.Clock.NewTicker(cfg.Interval),
	}
	logger.Debug("activity heartbeat started", zap.Duration("interval", cfg.Interval))
	h.fire(triggerStart)

	h.wg.Add(1)
	go h.loop()
	return h
}

// Notify pings immediately for a recognized interaction. Unknown interaction
// types and calls after Stop are ignored.
func (h *Heartbeat) Notify(i Interaction) {
	if !i.Valid() {
		return
	}
	h.fire(string(i))
}

// Attach forwards every interaction received on src to Notify until src is
// closed or the heartbeat stops.
func (h *Heartbeat) Attach(src <-chan Interaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-h.ctx.Done():
				return
			case i, ok := <-src:
				if !ok {
					return
				}
				h.Notify(i)
			}
		}
	}()
}

// Stop releases the ticker and every attached source, cancels in-flight pings
// and waits for them to return. It is safe to call more than once.
func (h *Heartbeat) Stop() {
	h.once.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		h.cancel()
		h.ticker.Stop()
		h.wg.Wait()
		h.logger.Debug("activity heartbeat stopped")
	})
}

func (h *Heartbeat) loop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.ticker.C():
			h.fire(triggerInterval)
		}
	}
}

func (h *Heartbeat) fire(trigger string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.ctx.Err() != nil {
		return
	}
	metrics.ObserveHeartbeat(trigger)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.sender.SendHeartbeat(h.ctx)
	}()
}
