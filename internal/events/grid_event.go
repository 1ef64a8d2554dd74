package events

import (
	"fmt"
	"strings"
	"time"
)

// GridEvent is one domain notification about a symbol's grid. Values are
// immutable once built; Payload must be treated as read-only.
type GridEvent struct {
	Kind      Type           `json:"type"`
	Symbol    string         `json:"symbol"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"data"`
}

// NewGridEvent fills the defaults for fields the frame left out.
func NewGridEvent(kind Type, symbol, message, timestamp string, data any, now time.Time) GridEvent {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = UnknownSymbol
	}
	if message == "" {
		message = fmt.Sprintf("Grid event: %s", kind)
	}
	if timestamp == "" {
		timestamp = now.UTC().Format(ISOTime)
	}
	return GridEvent{
		Kind:      kind,
		Symbol:    symbol,
		Message:   message,
		Timestamp: timestamp,
		Payload:   payloadOf(data),
	}
}

func payloadOf(data any) map[string]any {
	switch d := data.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	default:
		// arrays and scalars keep their value under a fixed key
		return map[string]any{"value": d}
	}
}

// Details is the typed view of a grid event's payload.
type Details interface {
	isDetails()
}

type GridStarted struct {
	LevelsCount int
	Monitoring  bool
}

type GridStopped struct{}

type GridLevelTriggered struct {
	LevelIndex int
	Side       string
	Status     string
}

type GridSettingsUpdated struct {
	LevelsCount int
}

type GridDefaultCreated struct {
	LevelsCount int
}

type GridStatusRequested struct {
	IsActive    bool
	HasLiveGrid bool
}

type TestEvent struct{}

// UnknownDetails carries the raw payload of a grid-* kind this client does not model.
type UnknownDetails struct {
	Payload map[string]any
}

func (GridStarted) isDetails()         {}
func (GridStopped) isDetails()         {}
func (GridLevelTriggered) isDetails()  {}
func (GridSettingsUpdated) isDetails() {}
func (GridDefaultCreated) isDetails()  {}
func (GridStatusRequested) isDetails() {}
func (TestEvent) isDetails()           {}
func (UnknownDetails) isDetails()      {}

// Details decodes the payload according to the event kind.
func (e GridEvent) Details() Details {
	p := e.Payload
	switch e.Kind {
	case TypeGridStarted:
		mon, ok := boolField(p, "monitoring")
		if !ok {
			mon = true
		}
		return GridStarted{LevelsCount: levelsCount(p), Monitoring: mon}
	case TypeGridStopped:
		return GridStopped{}
	case TypeGridLevelTriggered:
		idx, _ := intField(p, "level_index")
		status := stringField(p, "status")
		if status == "" {
			status = "triggered"
		}
		return GridLevelTriggered{
			LevelIndex: idx,
			Side:       strings.ToUpper(stringField(p, "side")),
			Status:     status,
		}
	case TypeGridSettingsUpdated:
		return GridSettingsUpdated{LevelsCount: levelsCount(p)}
	case TypeGridDefaultCreated:
		return GridDefaultCreated{LevelsCount: levelsCount(p)}
	case TypeGridStatusRequested:
		active, _ := boolField(p, "is_active")
		live, _ := boolField(p, "has_live_grid")
		return GridStatusRequested{IsActive: active, HasLiveGrid: live}
	case TypeTestEvent:
		return TestEvent{}
	}
	return UnknownDetails{Payload: p}
}

// levelsCount prefers an explicit levels_count and falls back to len(levels).
func levelsCount(p map[string]any) int {
	if n, ok := intField(p, "levels_count"); ok {
		return n
	}
	if levels, ok := p["levels"].([]any); ok {
		return len(levels)
	}
	return 0
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func boolField(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
