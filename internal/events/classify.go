package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is a classified inbound frame. The concrete type tells the caller
// which handling path the frame belongs to.
type Message interface {
	MessageType() Type
}

// Keepalive is a liveness probe from the backend; the client answers with a pong.
type Keepalive struct{}

// Ack is a protocol acknowledgement (pong, welcome) that carries no state.
type Ack struct {
	Type Type
}

// GridEventMessage wraps a domain event.
type GridEventMessage struct {
	Event GridEvent
}

// Latest is the backend's broadcast snapshot, kept as an opaque passthrough.
type Latest struct {
	Fields map[string]any
}

type SettingUpdateResult struct {
	Result bool
	Fields map[string]any
}

type LastBuyPriceResult struct {
	Symbol string
	Result bool
	Fields map[string]any
}

// TradeResult answers a trigger-buy, trigger-sell or manual trade command.
type TradeResult struct {
	Kind    Type
	Symbol  string
	Result  bool
	Message string
	Fields  map[string]any
}

type AuthResult struct {
	Authenticated bool
}

// Other is any frame whose type the client does not understand yet.
type Other struct {
	Type   Type
	Fields map[string]any
}

func (Keepalive) MessageType() Type           { return TypePing }
func (m Ack) MessageType() Type               { return m.Type }
func (m GridEventMessage) MessageType() Type  { return m.Event.Kind }
func (Latest) MessageType() Type              { return TypeLatest }
func (SettingUpdateResult) MessageType() Type { return TypeSettingUpdateResult }
func (LastBuyPriceResult) MessageType() Type  { return TypeLastBuyPriceResult }
func (m TradeResult) MessageType() Type       { return m.Kind }
func (AuthResult) MessageType() Type          { return TypeAuthResult }
func (m Other) MessageType() Type             { return m.Type }

// Classify decodes one raw frame and assigns it to exactly one handling path.
// Decode failures wrap ErrMessageParse; the caller drops the frame.
func Classify(raw []byte, now time.Time) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == string(TypePing) {
		return Keepalive{}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMessageParse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: frame is not an object", ErrMessageParse)
	}

	t := Type(stringField(fields, "type"))
	switch {
	case t == TypePing:
		return Keepalive{}, nil
	case t == TypePong || t == TypeWelcome:
		return Ack{Type: t}, nil
	case t.IsGridEvent():
		return GridEventMessage{Event: NewGridEvent(
			t,
			stringField(fields, "symbol"),
			stringField(fields, "message"),
			stringField(fields, "timestamp"),
			fields["data"],
			now,
		)}, nil
	}

	result, _ := boolField(fields, "result")
	switch t {
	case TypeLatest:
		return Latest{Fields: fields}, nil
	case TypeSettingUpdateResult:
		return SettingUpdateResult{Result: result, Fields: fields}, nil
	case TypeLastBuyPriceResult:
		return LastBuyPriceResult{Symbol: symbolOf(fields), Result: result, Fields: fields}, nil
	case TypeTriggerBuyResult, TypeTriggerSellResult, TypeManualTradeResult:
		return TradeResult{
			Kind:    t,
			Symbol:  symbolOf(fields),
			Result:  result,
			Message: stringField(fields, "message"),
			Fields:  fields,
		}, nil
	case TypeAuthResult:
		return AuthResult{Authenticated: result}, nil
	}
	return Other{Type: t, Fields: fields}, nil
}

// symbolOf looks for a symbol at the top level first, then inside data.
func symbolOf(fields map[string]any) string {
	if s := stringField(fields, "symbol"); s != "" {
		return strings.ToUpper(s)
	}
	if data, ok := fields["data"].(map[string]any); ok {
		return strings.ToUpper(stringField(data, "symbol"))
	}
	return ""
}
