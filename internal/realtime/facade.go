package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"grid-dashboard/internal/bus"
	"grid-dashboard/internal/events"
	"grid-dashboard/internal/state"
)

// State returns the connection flags. It does not wait for the event loop.
func (c *Client) State() state.Connection { return c.store.Connection() }

func (c *Client) Snapshot() state.Snapshot { return c.store.Snapshot() }

// GridStatus returns the latest status for symbol (case-insensitive).
func (c *Client) GridStatus(symbol string) (state.GridStatus, bool) {
	return c.store.GridStatus(symbol)
}

// GridEvents returns the event log most-recent-first; an empty symbol returns everything.
func (c *Client) GridEvents(symbol string) []events.GridEvent {
	return c.store.GridEvents(symbol)
}

// Send forwards a command frame verbatim. Frames sent while disconnected or
// while the outbound queue is full are dropped, recorded as the last error and
// reported as events.ErrNotConnected or events.ErrSendBufferFull.
func (c *Client) Send(frame any) error {
	raw, err := events.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	kind := frameKind(frame)
	var sendErr error
	if err := c.do(func() {
		if c.closed {
			sendErr = events.ErrClientClosed
			return
		}
		sendErr = c.write(raw, kind)
		switch {
		case errors.Is(sendErr, events.ErrNotConnected):
			sendErr = fmt.Errorf("cannot send message: %w", sendErr)
			c.log.Warn("ws not connected, message dropped", slog.String("type", kind))
			c.store.SetError(sendErr.Error())
		case errors.Is(sendErr, events.ErrSendBufferFull):
			sendErr = fmt.Errorf("cannot send message: %w", sendErr)
			c.log.Warn("ws send buffer full, message dropped", slog.String("type", kind))
			c.store.SetError(sendErr.Error())
		}
	}); err != nil {
		return err
	}
	return sendErr
}

// frameKind labels a frame for metrics without letting arbitrary types through.
func frameKind(frame any) string {
	switch f := frame.(type) {
	case events.Frame:
		return string(f.Type)
	case *events.Frame:
		return string(f.Type)
	case events.SubscribeFrame:
		return string(events.TypeSubscribe)
	}
	return "raw"
}

func (c *Client) TriggerBuy(symbol string) error {
	return c.trigger(events.TypeTriggerBuy, symbol)
}

func (c *Client) TriggerSell(symbol string) error {
	return c.trigger(events.TypeTriggerSell, symbol)
}

func (c *Client) trigger(kind events.Type, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("symbol is required")
	}
	return c.Send(events.Frame{Type: kind, Data: events.SymbolCommand{Symbol: symbol}})
}

// Subscribe replaces the subscription intent. When the channel is open the
// subscribe frame goes out immediately; otherwise events.ErrNotConnected is
// returned as a warning and the intent is asserted on the next open.
func (c *Client) Subscribe(symbols []string) error {
	var sendErr error
	if err := c.do(func() {
		if c.closed {
			sendErr = events.ErrClientClosed
			return
		}
		syms := c.subs.set(symbols)
		frame, _ := c.subs.frame()
		sendErr = c.writeFrame(frame, string(events.TypeSubscribe))
		switch {
		case errors.Is(sendErr, events.ErrNotConnected):
			c.log.Warn("cannot subscribe now, will subscribe on connect",
				slog.String("symbols", strings.Join(syms, ",")))
		case sendErr == nil:
			c.log.Info("subscribed to grid events", slog.String("symbols", strings.Join(syms, ",")))
		}
	}); err != nil {
		return err
	}
	return sendErr
}

// Subscriptions returns the current subscription intent.
func (c *Client) Subscriptions() []string {
	var out []string
	if err := c.do(func() { out = c.subs.list() }); err != nil {
		return nil
	}
	return out
}

func (c *Client) ClearGridEvents() error {
	return c.do(func() {
		if c.closed {
			return
		}
		c.store.ClearGridEvents()
		c.log.Info("grid events cleared")
	})
}

// Reconnect resets the retry budget and replaces the current channel. The old
// channel's close is caller-initiated, so it never schedules a retry of its own.
func (c *Client) Reconnect() error {
	return c.do(func() {
		if c.closed {
			return
		}
		c.log.Info("manual reconnect requested")
		c.stopPing()
		c.stopReconnect()
		c.store.SetReconnectAttempts(0)
		if old := c.current; old != nil {
			c.current = nil
			old.Close()
			c.store.Disconnected()
			c.metrics.Connected.Set(0)
		}
		c.open()
	})
}

// SubscribeMessages delivers every classified inbound message except keepalives and acks.
func (c *Client) SubscribeMessages(buffer int) *bus.Subscription[events.Message] {
	return c.messages.Subscribe(buffer)
}

func (c *Client) UnsubscribeMessages(sub *bus.Subscription[events.Message]) {
	c.messages.Unsubscribe(sub)
}

// SubscribeState delivers a snapshot after every store transition.
func (c *Client) SubscribeState(buffer int) *bus.Subscription[state.Snapshot] {
	return c.store.Subscribe(buffer)
}

func (c *Client) UnsubscribeState(sub *bus.Subscription[state.Snapshot]) {
	c.store.Unsubscribe(sub)
}

// Close tears the client down: timers stop, the channel closes as
// caller-initiated and no further transitions happen. Idempotent.
func (c *Client) Close() error {
	c.startOnce.Do(func() { close(c.stopped) })
	err := c.do(c.teardown)
	if errors.Is(err, events.ErrClientClosed) {
		err = nil
	}
	<-c.stopped
	c.messages.Close()
	c.store.Close()
	return err
}
