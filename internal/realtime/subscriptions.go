package realtime

import (
	"strings"

	"grid-dashboard/internal/events"
)

// subscriptions is the symbol set the client wants grid events for. It is
// owned by the event loop and survives reconnects.
type subscriptions struct {
	symbols  []string
	declared bool
}

// normalizeSymbols trims and uppercases, dropping empties and duplicates while keeping order.
func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (s *subscriptions) set(symbols []string) []string {
	s.symbols = normalizeSymbols(symbols)
	s.declared = true
	return s.list()
}

func (s *subscriptions) list() []string {
	return append([]string(nil), s.symbols...)
}

// frame returns the subscribe command to send on open. ok is false until
// some intent has been declared.
func (s *subscriptions) frame() (frame events.SubscribeFrame, ok bool) {
	if !s.declared {
		return events.SubscribeFrame{}, false
	}
	return events.NewSubscribeFrame(s.list()), true
}
