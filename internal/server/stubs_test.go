package server

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"grid-dashboard/internal/bus"
	"grid-dashboard/internal/events"
	"grid-dashboard/internal/restapi"
	"grid-dashboard/internal/state"
)

type stubRealtime struct {
	mu         sync.Mutex
	conn       state.Connection
	statuses   map[string]state.GridStatus
	gridEvents []events.GridEvent
	sent       []string
	sendErr    error
	subs       []string
	subErr     error
	triggers   []string
	reconnects int
	cleared    int

	msgs   *bus.Bus[events.Message]
	states *bus.Bus[state.Snapshot]
}

func newStubRealtime() *stubRealtime {
	return &stubRealtime{
		statuses: map[string]state.GridStatus{},
		msgs:     bus.New[events.Message](),
		states:   bus.New[state.Snapshot](),
	}
}

func (r *stubRealtime) State() state.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

func (r *stubRealtime) Snapshot() state.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return state.Snapshot{Connection: r.conn, GridEvents: r.gridEvents}
}

func (r *stubRealtime) GridStatus(symbol string) (state.GridStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.statuses[strings.ToUpper(symbol)]
	return st, ok
}

func (r *stubRealtime) GridEvents(symbol string) []events.GridEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []events.GridEvent{}
	for _, e := range r.gridEvents {
		if symbol == "" || e.Symbol == strings.ToUpper(symbol) {
			out = append(out, e)
		}
	}
	return out
}

func (r *stubRealtime) Send(frame any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	b, err := events.Encode(frame)
	if err != nil {
		return err
	}
	r.sent = append(r.sent, string(b))
	return nil
}

func (r *stubRealtime) Subscribe(symbols []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = symbols
	return r.subErr
}

func (r *stubRealtime) Subscriptions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs
}

func (r *stubRealtime) ClearGridEvents() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	r.gridEvents = nil
	return nil
}

func (r *stubRealtime) Reconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
	return nil
}

func (r *stubRealtime) TriggerBuy(symbol string) error  { return r.trigger("buy", symbol) }
func (r *stubRealtime) TriggerSell(symbol string) error { return r.trigger("sell", symbol) }

func (r *stubRealtime) trigger(side, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.triggers = append(r.triggers, side+":"+symbol)
	return nil
}

func (r *stubRealtime) SubscribeMessages(buffer int) *bus.Subscription[events.Message] {
	return r.msgs.Subscribe(buffer)
}

func (r *stubRealtime) UnsubscribeMessages(sub *bus.Subscription[events.Message]) {
	r.msgs.Unsubscribe(sub)
}

func (r *stubRealtime) SubscribeState(buffer int) *bus.Subscription[state.Snapshot] {
	return r.states.Subscribe(buffer)
}

func (r *stubRealtime) UnsubscribeState(sub *bus.Subscription[state.Snapshot]) {
	r.states.Unsubscribe(sub)
}

type stubBackend struct {
	price    decimal.Decimal
	priceErr error
	candles  []restapi.Candle
	interval string
	candErr  error
	levels   []restapi.GridLevel
	gridErr  error
	saved    []restapi.GridLevel
	started  []string
	stopped  []string
	logs     []restapi.LogItem
	archive  restapi.Archive
	queries  []restapi.ArchiveQuery
	monitor  map[string]bool
}

func (b *stubBackend) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return b.price, b.priceErr
}

func (b *stubBackend) Candles(ctx context.Context, symbol, interval string) ([]restapi.Candle, error) {
	b.interval = interval
	return b.candles, b.candErr
}

func (b *stubBackend) Grid(ctx context.Context, symbol string) ([]restapi.GridLevel, error) {
	return b.levels, b.gridErr
}

func (b *stubBackend) SaveGrid(ctx context.Context, symbol string, levels []restapi.GridLevel) error {
	b.saved = levels
	return nil
}

func (b *stubBackend) StartGrid(ctx context.Context, symbol string) error {
	b.started = append(b.started, symbol)
	return nil
}

func (b *stubBackend) StopGrid(ctx context.Context, symbol string) error {
	b.stopped = append(b.stopped, symbol)
	return nil
}

func (b *stubBackend) Logs(ctx context.Context, symbol string) ([]restapi.LogItem, error) {
	return b.logs, nil
}

func (b *stubBackend) ExportLogs(ctx context.Context, symbol string) ([]byte, string, error) {
	return []byte("action,price\nBUY,100\n"), "text/csv", nil
}

func (b *stubBackend) Archive(ctx context.Context, q restapi.ArchiveQuery) (restapi.Archive, error) {
	b.queries = append(b.queries, q)
	return b.archive, nil
}

func (b *stubBackend) DeleteArchive(ctx context.Context, q restapi.ArchiveQuery) error {
	b.queries = append(b.queries, q)
	return nil
}

func (b *stubBackend) Monitoring(ctx context.Context) ([]string, error) {
	out := []string{}
	for s, on := range b.monitor {
		if on {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *stubBackend) SetMonitoring(ctx context.Context, symbol string, active bool) error {
	if symbol == "BROKEN" {
		return errors.New("connection refused")
	}
	if b.monitor == nil {
		b.monitor = map[string]bool{}
	}
	b.monitor[symbol] = active
	return nil
}
