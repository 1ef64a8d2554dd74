// Package state holds the realtime client's single authoritative snapshot.
// It is changed only through the named transitions on Store; every
// transition publishes the resulting Snapshot to subscribers.
package state

import (
	"encoding/json"
	"maps"
	"strings"
	"sync"
	"time"

	"grid-dashboard/internal/bus"
	"grid-dashboard/internal/events"
)

// DefaultEventLogCapacity bounds the grid event history.
const DefaultEventLogCapacity = 100

type Connection struct {
	Connected         bool   `json:"isConnected"`
	Authenticated     bool   `json:"isAuthenticated"`
	ReconnectAttempts uint   `json:"reconnectAttempts"`
	LastError         string `json:"lastError,omitempty"`
}

// GridStatus is the durable per-symbol summary built from that symbol's events.
// Fields accumulates every payload key seen so far; later events overwrite
// same-named keys.
type GridStatus struct {
	LastEvent  events.GridEvent
	LastUpdate string
	Fields     map[string]any
}

func (g GridStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Fields)+2)
	maps.Copy(out, g.Fields)
	out["lastEvent"] = g.LastEvent
	out["lastUpdate"] = g.LastUpdate
	return json.Marshal(out)
}

// Snapshot is a detached copy of the store. Event payloads are shared and read-only.
type Snapshot struct {
	Connection
	Latest          map[string]any        `json:"latest,omitempty"`
	Settings        map[string]any        `json:"settings,omitempty"`
	LastBuyPrice    map[string]any        `json:"lastBuyPrice,omitempty"`
	LastTradeResult *events.TradeResult   `json:"-"`
	LastOther       *events.Other         `json:"-"`
	GridEvents      []events.GridEvent    `json:"gridEvents"`
	GridStatuses    map[string]GridStatus `json:"gridStatuses"`
	LastGridEvent   *events.GridEvent     `json:"lastGridEvent,omitempty"`
}

type Store struct {
	mu       sync.RWMutex
	capacity int
	now      func() time.Time

	conn         Connection
	latest       map[string]any
	settings     map[string]any
	lastBuyPrice map[string]any
	lastTrade    *events.TradeResult
	lastOther    *events.Other
	log          []events.GridEvent
	statuses     map[string]GridStatus
	lastGrid     *events.GridEvent

	snapshots *bus.Bus[Snapshot]
}

// NewStore returns an empty store. The event log never holds more than
// DefaultEventLogCapacity events; a non-positive capacity means that maximum.
func NewStore(capacity int) *Store {
	if capacity <= 0 || capacity > DefaultEventLogCapacity {
		capacity = DefaultEventLogCapacity
	}
	return &Store{
		capacity:  capacity,
		now:       time.Now,
		log:       make([]events.GridEvent, 0, capacity+1),
		statuses:  make(map[string]GridStatus),
		snapshots: bus.New[Snapshot](),
	}
}

// SetClock replaces the time source used for status timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Capacity() int { return s.capacity }

// apply runs fn under the write lock and publishes the resulting snapshot.
func (s *Store) apply(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if changed {
		s.snapshots.Publish(snap)
	}
}

// Connected marks a successful open: the retry budget and last error are reset.
func (s *Store) Connected() {
	s.apply(func() bool {
		s.conn.Connected = true
		s.conn.ReconnectAttempts = 0
		s.conn.LastError = ""
		return true
	})
}

// Disconnected clears the connection flag and, with it, authentication.
func (s *Store) Disconnected() {
	s.apply(func() bool {
		s.conn.Connected = false
		s.conn.Authenticated = false
		return true
	})
}

// SetAuthenticated records a server-asserted auth result. A positive result
// is ignored while disconnected.
func (s *Store) SetAuthenticated(ok bool) {
	s.apply(func() bool {
		if ok && !s.conn.Connected {
			return false
		}
		s.conn.Authenticated = ok
		return true
	})
}

func (s *Store) SetLatest(fields map[string]any) {
	s.apply(func() bool {
		s.latest = fields
		return true
	})
}

func (s *Store) SetSettings(fields map[string]any) {
	s.apply(func() bool {
		s.settings = fields
		return true
	})
}

func (s *Store) SetLastBuyPrice(fields map[string]any) {
	s.apply(func() bool {
		s.lastBuyPrice = fields
		return true
	})
}

func (s *Store) RecordTradeResult(r events.TradeResult) {
	s.apply(func() bool {
		s.lastTrade = &r
		return true
	})
}

// RecordOther keeps an unrecognized frame without touching typed state.
func (s *Store) RecordOther(o events.Other) {
	s.apply(func() bool {
		s.lastOther = &o
		return true
	})
}

func (s *Store) SetReconnectAttempts(n uint) {
	s.apply(func() bool {
		s.conn.ReconnectAttempts = n
		return true
	})
}

func (s *Store) SetError(msg string) {
	s.apply(func() bool {
		s.conn.LastError = msg
		return true
	})
}

// AppendGridEvent prepends e to the log, evicting the oldest entry past
// capacity, and merges the event into its symbol's status.
func (s *Store) AppendGridEvent(e events.GridEvent) {
	s.apply(func() bool {
		s.log = append(s.log, events.GridEvent{})
		copy(s.log[1:], s.log)
		s.log[0] = e
		if len(s.log) > s.capacity {
			clear(s.log[s.capacity:])
			s.log = s.log[:s.capacity]
		}

		prev := s.statuses[e.Symbol]
		fields := maps.Clone(prev.Fields)
		if fields == nil {
			fields = make(map[string]any, len(e.Payload))
		}
		maps.Copy(fields, e.Payload)
		s.statuses[e.Symbol] = GridStatus{
			LastEvent:  e,
			LastUpdate: s.now().UTC().Format(events.ISOTime),
			Fields:     fields,
		}
		s.lastGrid = &e
		return true
	})
}

// ClearGridEvents empties the log and the most-recent pointer. Statuses are kept.
func (s *Store) ClearGridEvents() {
	s.apply(func() bool {
		clear(s.log)
		s.log = s.log[:0]
		s.lastGrid = nil
		return true
	})
}

func (s *Store) Connection() Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Store) ReconnectAttempts() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.ReconnectAttempts
}

// GridStatus returns the status for symbol, matched case-insensitively.
func (s *Store) GridStatus(symbol string) (GridStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return GridStatus{}, false
	}
	st.Fields = maps.Clone(st.Fields)
	return st, true
}

// GridEvents returns the log most-recent-first, filtered to symbol unless it is empty.
func (s *Store) GridEvents(symbol string) []events.GridEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := make([]events.GridEvent, 0, len(s.log))
	for _, e := range s.log {
		if symbol == "" || e.Symbol == symbol {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Connection:      s.conn,
		Latest:          s.latest,
		Settings:        s.settings,
		LastBuyPrice:    s.lastBuyPrice,
		LastTradeResult: s.lastTrade,
		LastOther:       s.lastOther,
		GridEvents:      append([]events.GridEvent(nil), s.log...),
		GridStatuses:    make(map[string]GridStatus, len(s.statuses)),
	}
	if snap.GridEvents == nil {
		snap.GridEvents = []events.GridEvent{}
	}
	for sym, st := range s.statuses {
		st.Fields = maps.Clone(st.Fields)
		snap.GridStatuses[sym] = st
	}
	if s.lastGrid != nil {
		e := *s.lastGrid
		snap.LastGridEvent = &e
	}
	return snap
}

// Subscribe returns a handle receiving every snapshot published after a transition.
// Slow subscribers miss intermediate snapshots.
func (s *Store) Subscribe(buffer int) *bus.Subscription[Snapshot] {
	return s.snapshots.Subscribe(buffer)
}

func (s *Store) Unsubscribe(sub *bus.Subscription[Snapshot]) {
	s.snapshots.Unsubscribe(sub)
}

// Close releases every snapshot subscriber.
func (s *Store) Close() { s.snapshots.Close() }
