package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"grid-dashboard/internal/events"
)

const (
	writeWait        = 10 * time.Second
	defaultReadLimit = 1 << 20
	defaultSendQueue = 64
)

// ReadyState mirrors the lifecycle of one physical socket.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// WebsocketDialer opens real sockets with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Header           http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if wd.HandshakeTimeout <= 0 {
		wd.HandshakeTimeout = 10 * time.Second
	}
	ws, _, err := wd.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	ws.SetReadLimit(limit)
	return ws, nil
}

// CloseInfo describes how a channel ended. ByCaller is set only when Close was called.
type CloseInfo struct {
	Code     int
	Reason   string
	WasClean bool
	ByCaller bool
}

// Listener receives the channel's signals. Calls for one channel arrive in
// order from the channel's reader goroutine, except write failures which
// come from the writer.
type Listener interface {
	ChannelOpened(ch *Channel)
	ChannelMessage(ch *Channel, raw []byte)
	ChannelClosed(ch *Channel, info CloseInfo)
	ChannelError(ch *Channel, err error)
}

// Channel owns exactly one physical socket. It knows nothing about frame contents.
type Channel struct {
	id       string
	url      string
	dialer   Dialer
	listener Listener
	log      *slog.Logger

	state atomic.Int32

	mu       sync.Mutex
	conn     Conn
	byCaller bool
	cancel   context.CancelFunc

	out      chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func newChannel(url string, dialer Dialer, listener Listener, queue int, logger *slog.Logger) *Channel {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	id := uuid.NewString()
	ch := &Channel{
		id:       id,
		url:      url,
		dialer:   dialer,
		listener: listener,
		log:      logger.With(slog.String("channel", id)),
		out:      make(chan []byte, queue),
		done:     make(chan struct{}),
	}
	ch.state.Store(int32(Connecting))
	return ch
}

func (c *Channel) State() ReadyState { return ReadyState(c.state.Load()) }

// ID identifies this socket in logs; every reopen gets a fresh one.
func (c *Channel) ID() string { return c.id }

func (c *Channel) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(ctx, cancel)
}

func (c *Channel) run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	c.log.Debug("dialing", slog.String("url", c.url))
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.log.Debug("dial failed", slog.String("err", err.Error()))
		c.state.Store(int32(Closed))
		byCaller := c.closedByCaller()
		if !byCaller {
			c.listener.ChannelError(c, &events.TransportError{Op: "dial", Err: err})
		}
		c.listener.ChannelClosed(c, CloseInfo{
			Code:     websocket.CloseAbnormalClosure,
			Reason:   err.Error(),
			ByCaller: byCaller,
		})
		return
	}

	c.mu.Lock()
	if c.byCaller {
		c.mu.Unlock()
		_ = conn.Close()
		c.state.Store(int32(Closed))
		c.listener.ChannelClosed(c, CloseInfo{Code: websocket.CloseNormalClosure, WasClean: true, ByCaller: true})
		return
	}
	c.conn = conn
	c.state.Store(int32(Open))
	c.mu.Unlock()

	go c.writePump(conn)
	c.listener.ChannelOpened(c)

	info := c.readPump(conn)
	c.log.Debug("read loop ended", slog.Int("code", info.Code))
	c.stopWriter()
	_ = conn.Close()
	c.state.Store(int32(Closed))
	info.ByCaller = c.closedByCaller()
	c.listener.ChannelClosed(c, info)
}

func (c *Channel) readPump(conn Conn) CloseInfo {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return CloseInfo{
					Code:     ce.Code,
					Reason:   ce.Text,
					WasClean: ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway,
				}
			}
			if !c.closedByCaller() {
				c.listener.ChannelError(c, &events.TransportError{Op: "read", Err: err})
			}
			return CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
		}
		c.listener.ChannelMessage(c, data)
	}
}

// writePump is the only goroutine that writes data frames to conn.
func (c *Channel) writePump(conn Conn) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			if d, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
				_ = d.SetWriteDeadline(time.Now().Add(writeWait))
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !c.closedByCaller() {
					c.listener.ChannelError(c, &events.TransportError{Op: "write", Err: err})
				}
				// unblocks the reader so the close is reported
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Channel) stopWriter() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Send queues frame for the writer. It fails with events.ErrNotConnected unless
// the channel is Open; nothing is buffered for a later channel.
func (c *Channel) Send(frame []byte) error {
	if c.State() != Open {
		return events.ErrNotConnected
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return events.ErrSendBufferFull
	}
}

// Close ends the channel on the caller's behalf. The resulting ChannelClosed
// carries ByCaller. Safe to call more than once and from any goroutine.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.byCaller {
		c.mu.Unlock()
		return
	}
	c.byCaller = true
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(Open), int32(Closing)) {
		c.state.CompareAndSwap(int32(Connecting), int32(Closing))
	}
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return
	}
	if wc, ok := conn.(interface {
		WriteControl(messageType int, data []byte, deadline time.Time) error
	}); ok {
		_ = wc.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}
	c.stopWriter()
	_ = conn.Close()
}

func (c *Channel) closedByCaller() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byCaller
}
