package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testPingInterval = time.Hour

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is an in-memory socket. Frames pushed with deliver are returned by
// ReadMessage; everything written is recorded.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once
	stall  chan struct{} // when set, writes block until it is closed

	mu      sync.Mutex
	err     error
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (f *fakeConn) deliver(frame string) { f.in <- []byte(frame) }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		f.mu.Lock()
		defer f.mu.Unlock()
		return 0, nil, f.err
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	if f.stall != nil {
		select {
		case <-f.stall:
		case <-f.closed:
		}
	}
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	f.written = append(f.written, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.shut(net.ErrClosed)
	return nil
}

// peerClose simulates the backend closing the socket.
func (f *fakeConn) peerClose(code int) {
	f.shut(&websocket.CloseError{Code: code, Text: "peer gone"})
}

func (f *fakeConn) shut(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.closed)
	})
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.written))
	for i, b := range f.written {
		out[i] = string(b)
	}
	return out
}

func (f *fakeConn) count(frame string) int {
	n := 0
	for _, w := range f.frames() {
		if w == frame {
			n++
		}
	}
	return n
}

// fakeDialer hands out fresh fakeConns, or fails while fail is set.
type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	gate  chan struct{}
	stall chan struct{}
	conns []*fakeConn
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.calls++
	gate := d.gate
	fail := d.fail
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.mu.Lock()
	conn.stall = d.stall
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) fire() {
	t.s.mu.Lock()
	if t.stopped || t.fired {
		t.s.mu.Unlock()
		return
	}
	t.fired = true
	t.s.mu.Unlock()
	t.f()
}

// fakeScheduler records every timer instead of running it.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// reconnects returns the reconnect timers, leaving out keepalive probes.
func (s *fakeScheduler) reconnects() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if t.d != testPingInterval {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeScheduler) pings() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if t.d == testPingInterval {
			out = append(out, t)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func timeout() <-chan time.Time { return time.After(3 * time.Second) }

func newTestClient(t *testing.T, d Dialer, s Scheduler, symbols []string) *Client {
	t.Helper()
	c := NewClient(Options{
		URL: "ws://backend.test/ws",
		Policy: Policy{
			BaseDelay:    5 * time.Second,
			MaxAttempts:  5,
			PingInterval: testPingInterval,
		},
		Symbols:   symbols,
		Dialer:    d,
		Scheduler: s,
	}, discardLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// startConnected starts c and waits for the first fake socket to open.
func startConnected(t *testing.T, c *Client, d *fakeDialer) *fakeConn {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "connected", func() bool { return c.State().Connected })
	return d.conn(0)
}
