package events

import (
	"encoding/json"
	"strings"
)

// Type is the "type" tag carried by every JSON frame on the backend socket.
type Type string

const (
	// Protocol control
	TypePing      Type = "ping"
	TypePong      Type = "pong"
	TypeWelcome   Type = "welcome"
	TypeSubscribe Type = "subscribe"

	// Domain events pushed by the grid watcher
	TypeGridStarted         Type = "grid-started"
	TypeGridStopped         Type = "grid-stopped"
	TypeGridLevelTriggered  Type = "grid-level-triggered"
	TypeGridSettingsUpdated Type = "grid-settings-updated"
	TypeGridDefaultCreated  Type = "grid-default-created"
	TypeGridStatusRequested Type = "grid-status-requested"
	TypeTestEvent           Type = "test-event"

	// Result messages
	TypeLatest              Type = "latest"
	TypeSettingUpdateResult Type = "setting-update-result"
	TypeLastBuyPriceResult  Type = "symbol-update-last-buy-price-result"
	TypeTriggerBuyResult    Type = "symbol-trigger-buy-result"
	TypeTriggerSellResult   Type = "symbol-trigger-sell-result"
	TypeManualTradeResult   Type = "manual-trade-result"
	TypeAuthResult          Type = "auth-result"

	// Operator commands
	TypeTriggerBuy  Type = "symbol-trigger-buy"
	TypeTriggerSell Type = "symbol-trigger-sell"
)

// GridChannel is the backend channel name grid events are published on.
const GridChannel = "grid-trade"

// UnknownSymbol stands in for a grid event that arrived without a symbol.
const UnknownSymbol = "UNKNOWN"

// ISOTime matches the millisecond ISO-8601 form the dashboard uses for client-side timestamps.
const ISOTime = "2006-01-02T15:04:05.000Z07:00"

// IsGridEvent reports whether frames of this type are domain events.
func (t Type) IsGridEvent() bool {
	return strings.HasPrefix(string(t), "grid-") || t == TypeTestEvent
}

// Frame is a generic outbound command: {type, data}.
type Frame struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// SubscribeFrame asks the backend for grid events on the given symbols.
type SubscribeFrame struct {
	Type    Type     `json:"type"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

// NewSubscribeFrame builds the grid-trade subscription for symbols. A nil
// slice is sent as an empty list.
func NewSubscribeFrame(symbols []string) SubscribeFrame {
	if symbols == nil {
		symbols = []string{}
	}
	return SubscribeFrame{Type: TypeSubscribe, Channel: GridChannel, Symbols: symbols}
}

// SymbolCommand is the data block of trigger-buy / trigger-sell commands.
type SymbolCommand struct {
	Symbol string `json:"symbol"`
}

func PingFrame() []byte { return []byte(`{"type":"ping"}`) }
func PongFrame() []byte { return []byte(`{"type":"pong"}`) }

// Encode marshals an outbound frame. Raw byte slices and json.RawMessage are passed through untouched.
func Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}
