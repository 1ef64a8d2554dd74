package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"grid-dashboard/internal/bus"
	"grid-dashboard/internal/events"
	"grid-dashboard/internal/metrics"
	"grid-dashboard/internal/state"
)

type Options struct {
	URL    string
	Policy Policy

	// EventLogCapacity bounds the grid event history (default and maximum 100).
	EventLogCapacity int
	// SendQueue is the per-channel outbound buffer (default 64).
	SendQueue int
	// Symbols, when non-nil, is the subscription intent asserted on the first open.
	Symbols []string

	Dialer    Dialer
	Scheduler Scheduler
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Client keeps one backend socket alive and folds its frames into a state.Store.
// All mutable client state is owned by a single event-loop goroutine; socket
// pumps, timers and facade calls hand work to it.
type Client struct {
	opts    Options
	policy  Policy
	dialer  Dialer
	sched   Scheduler
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics

	store    *state.Store
	messages *bus.Bus[events.Message]

	ops       chan func()
	stopped   chan struct{}
	startOnce sync.Once
	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	// owned by the loop
	current        *Channel
	reconnectTimer Timer
	pingTimer      Timer
	closed         bool
	subs           subscriptions
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		opts:     opts,
		policy:   opts.Policy.withDefaults(),
		dialer:   opts.Dialer,
		sched:    opts.Scheduler,
		now:      opts.Now,
		log:      logger,
		metrics:  opts.Metrics,
		store:    state.NewStore(opts.EventLogCapacity),
		messages: bus.New[events.Message](),
		ops:      make(chan func(), 256),
		stopped:  make(chan struct{}),
	}
	if c.dialer == nil {
		c.dialer = WebsocketDialer{}
	}
	if c.sched == nil {
		c.sched = wallClock{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	c.store.SetClock(c.now)
	if opts.Symbols != nil {
		c.subs.set(opts.Symbols)
	}
	return c
}

// Start launches the event loop and the first connection attempt. The client
// tears itself down when ctx is canceled. Calling Start again only re-requests
// an open, which is a no-op while a channel is connecting or open.
func (c *Client) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		c.ctx, c.cancel = context.WithCancel(ctx)
		c.started.Store(true)
		go c.loop()
	})
	return c.do(c.open)
}

func (c *Client) loop() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.ops:
			fn()
			if c.closed {
				return
			}
		case <-c.ctx.Done():
			c.teardown()
			return
		}
	}
}

// post hands fn to the loop. It reports false once the loop has stopped.
func (c *Client) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (c *Client) do(fn func()) error {
	select {
	case <-c.stopped:
		return events.ErrClientClosed
	default:
	}
	if !c.started.Load() {
		return events.ErrNotStarted
	}
	done := make(chan struct{})
	if !c.post(func() { fn(); close(done) }) {
		return events.ErrClientClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		select {
		case <-done:
			return nil
		default:
			return events.ErrClientClosed
		}
	}
}

func (c *Client) open() {
	if c.closed {
		return
	}
	if cur := c.current; cur != nil {
		switch cur.State() {
		case Connecting, Open:
			return
		}
		cur.Close()
	}
	ch := newChannel(c.opts.URL, c.dialer, listener{c}, c.opts.SendQueue, c.log)
	c.current = ch
	c.log.Info("connecting to backend websocket",
		slog.String("url", c.opts.URL),
		slog.String("channel", ch.ID()),
	)
	ch.start(c.ctx)
}

// listener forwards channel signals onto the loop.
type listener struct{ c *Client }

func (l listener) ChannelOpened(ch *Channel) {
	l.c.post(func() { l.c.handleOpen(ch) })
}

func (l listener) ChannelMessage(ch *Channel, raw []byte) {
	l.c.post(func() { l.c.handleMessage(ch, raw) })
}

func (l listener) ChannelClosed(ch *Channel, info CloseInfo) {
	l.c.post(func() { l.c.handleClose(ch, info) })
}

func (l listener) ChannelError(ch *Channel, err error) {
	l.c.post(func() { l.c.handleError(ch, err) })
}

func (c *Client) handleOpen(ch *Channel) {
	if ch != c.current || c.closed {
		return
	}
	c.store.Connected()
	c.metrics.Connected.Set(1)
	c.log.Info("backend websocket connected",
		slog.String("url", c.opts.URL),
		slog.String("channel", ch.ID()),
	)

	if frame, ok := c.subs.frame(); ok {
		if err := c.writeFrame(frame, string(events.TypeSubscribe)); err != nil {
			c.log.Warn("re-subscribe failed", slog.String("err", err.Error()))
		} else {
			c.log.Info("subscribed to grid events", slog.String("symbols", strings.Join(frame.Symbols, ",")))
		}
	}
	c.schedulePing(ch)
}

func (c *Client) schedulePing(ch *Channel) {
	c.pingTimer = c.sched.AfterFunc(c.policy.PingInterval, func() {
		c.post(func() {
			if ch != c.current || ch.State() != Open {
				return
			}
			if err := c.write(events.PingFrame(), string(events.TypePing)); err != nil {
				c.log.Warn("keepalive ping failed", slog.String("err", err.Error()))
			}
			c.schedulePing(ch)
		})
	})
}

func (c *Client) handleMessage(ch *Channel, raw []byte) {
	if ch != c.current {
		return
	}
	msg, err := events.Classify(raw, c.now())
	if err != nil {
		c.metrics.ParseErrors.Inc()
		c.log.Warn("ws message parse error", slog.String("err", err.Error()))
		c.store.SetError(events.ErrMessageParse.Error())
		return
	}
	c.metrics.FramesReceived.WithLabelValues(messageClass(msg)).Inc()

	switch m := msg.(type) {
	case events.Keepalive:
		if err := c.write(events.PongFrame(), string(events.TypePong)); err != nil {
			c.log.Warn("pong failed", slog.String("err", err.Error()))
		}
		return
	case events.Ack:
		return
	case events.GridEventMessage:
		c.logGridEvent(m.Event)
		c.store.AppendGridEvent(m.Event)
	case events.Latest:
		c.store.SetLatest(m.Fields)
	case events.SettingUpdateResult:
		c.store.SetSettings(m.Fields)
	case events.LastBuyPriceResult:
		c.store.SetLastBuyPrice(m.Fields)
	case events.TradeResult:
		c.log.Info("trade result",
			slog.String("type", string(m.Kind)),
			slog.String("symbol", m.Symbol),
			slog.Bool("result", m.Result),
			slog.String("message", m.Message),
		)
		c.store.RecordTradeResult(m)
	case events.AuthResult:
		c.store.SetAuthenticated(m.Authenticated)
	case events.Other:
		c.log.Debug("unhandled ws message", slog.String("type", string(m.Type)))
		c.store.RecordOther(m)
	}
	c.messages.Publish(msg)
}

func messageClass(msg events.Message) string {
	switch msg.(type) {
	case events.Keepalive:
		return "keepalive"
	case events.Ack:
		return "ack"
	case events.GridEventMessage:
		return "grid-event"
	case events.Other:
		return "other"
	}
	return "result"
}

func (c *Client) logGridEvent(e events.GridEvent) {
	attrs := []any{
		slog.String("type", string(e.Kind)),
		slog.String("symbol", e.Symbol),
		slog.String("message", e.Message),
		slog.String("timestamp", e.Timestamp),
	}
	switch d := e.Details().(type) {
	case events.GridStarted:
		attrs = append(attrs, slog.Int("levels", d.LevelsCount))
	case events.GridLevelTriggered:
		attrs = append(attrs, slog.Int("level_index", d.LevelIndex), slog.String("side", d.Side))
	case events.GridSettingsUpdated:
		attrs = append(attrs, slog.Int("levels", d.LevelsCount))
	case events.GridDefaultCreated:
		attrs = append(attrs, slog.Int("levels", d.LevelsCount))
	case events.GridStatusRequested:
		attrs = append(attrs, slog.Bool("is_active", d.IsActive), slog.Bool("has_live_grid", d.HasLiveGrid))
	}
	c.log.Info("grid event", attrs...)
}

func (c *Client) handleError(ch *Channel, err error) {
	if ch != c.current || c.closed {
		return
	}
	c.log.Warn("backend websocket error",
		slog.String("channel", ch.ID()),
		slog.String("err", err.Error()),
	)
	c.store.SetError(err.Error())
}

func (c *Client) handleClose(ch *Channel, info CloseInfo) {
	if ch != c.current {
		return
	}
	c.stopPing()
	c.store.Disconnected()
	c.metrics.Connected.Set(0)
	c.log.Info("backend websocket closed",
		slog.String("channel", ch.ID()),
		slog.Int("code", info.Code),
		slog.String("reason", info.Reason),
		slog.Bool("clean", info.WasClean),
		slog.Bool("by_caller", info.ByCaller),
	)
	if info.ByCaller || c.closed {
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect reads the attempt count from the store, never from a
// value captured when the channel opened.
func (c *Client) scheduleReconnect() {
	attempts := c.store.ReconnectAttempts()
	if !c.policy.ShouldRetry(attempts) {
		c.metrics.ReconnectsExhausted.Inc()
		c.log.Error("giving up on backend websocket",
			slog.Int("attempts", int(attempts)),
			slog.Int("max_attempts", int(c.policy.MaxAttempts)),
		)
		c.store.SetError(events.ErrMaxReconnectsExceeded.Error())
		return
	}
	delay := c.policy.Delay(attempts)
	next := attempts + 1
	c.store.SetReconnectAttempts(next)
	c.metrics.ReconnectsScheduled.Inc()
	c.log.Info("reconnecting",
		slog.Duration("delay", delay),
		slog.Int("attempt", int(next)),
		slog.Int("max_attempts", int(c.policy.MaxAttempts)),
	)
	c.stopReconnect()
	c.reconnectTimer = c.sched.AfterFunc(delay, func() {
		c.post(c.open)
	})
}

func (c *Client) stopPing() {
	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
}

func (c *Client) stopReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// write sends raw on the current channel. It must run on the loop.
func (c *Client) write(raw []byte, kind string) error {
	err := events.ErrNotConnected
	if c.current != nil {
		err = c.current.Send(raw)
	}
	switch {
	case errors.Is(err, events.ErrNotConnected):
		c.metrics.SendFailures.WithLabelValues("not_connected").Inc()
	case errors.Is(err, events.ErrSendBufferFull):
		c.metrics.SendFailures.WithLabelValues("buffer_full").Inc()
	case err == nil:
		c.metrics.FramesSent.WithLabelValues(kind).Inc()
	}
	return err
}

func (c *Client) writeFrame(frame any, kind string) error {
	raw, err := events.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", kind, err)
	}
	return c.write(raw, kind)
}

func (c *Client) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopPing()
	c.stopReconnect()
	if ch := c.current; ch != nil {
		c.current = nil
		ch.Close()
	}
	c.store.Disconnected()
	c.metrics.Connected.Set(0)
	c.cancel()
	c.log.Info("realtime client closed")
}
