package state

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"grid-dashboard/internal/events"
)

var propertySymbols = []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "SOLUSDT"}

// appendAll feeds one event per symbol index and checks the head of the log after each.
func appendAll(s *Store, picks []int) (events.GridEvent, bool) {
	var last events.GridEvent
	for i, p := range picks {
		last = gridEvent(events.TypeGridLevelTriggered, propertySymbols[p], map[string]any{
			"level_index": float64(i),
			"seq":         fmt.Sprintf("%d", i),
		})
		s.AppendGridEvent(last)
		log := s.GridEvents("")
		if len(log) > s.Capacity() || !reflect.DeepEqual(log[0], last) {
			return last, false
		}
	}
	return last, true
}

func TestEventLogBoundedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 300

	properties := gopter.NewProperties(parameters)

	properties.Property("log never exceeds capacity and head is the newest event", prop.ForAll(
		func(picks []int) bool {
			s := newTestStore(DefaultEventLogCapacity)
			if _, ok := appendAll(s, picks); !ok {
				return false
			}
			want := len(picks)
			if want > DefaultEventLogCapacity {
				want = DefaultEventLogCapacity
			}
			return len(s.GridEvents("")) == want
		},
		gen.SliceOf(gen.IntRange(0, len(propertySymbols)-1)),
	))

	properties.Property("log keeps arrival order", prop.ForAll(
		func(picks []int) bool {
			s := newTestStore(10)
			appendAll(s, picks)
			log := s.GridEvents("")
			for i := range log {
				want := fmt.Sprintf("%d", len(picks)-1-i)
				if log[i].Payload["seq"] != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(propertySymbols)-1)),
	))

	properties.TestingRun(t)
}

func TestGridStatusProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("status tracks the symbol's last event and leaves others alone", prop.ForAll(
		func(picks []int, next int) bool {
			s := newTestStore(0)
			appendAll(s, picks)
			before := s.Snapshot().GridStatuses

			e := gridEvent(events.TypeGridStopped, propertySymbols[next], map[string]any{"final": true})
			s.AppendGridEvent(e)
			after := s.Snapshot().GridStatuses

			if !reflect.DeepEqual(after[e.Symbol].LastEvent, e) {
				return false
			}
			for sym, st := range before {
				if sym == e.Symbol {
					continue
				}
				if !reflect.DeepEqual(after[sym], st) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(propertySymbols)-1)),
		gen.IntRange(0, len(propertySymbols)-1),
	))

	properties.Property("clearing the log leaves statuses untouched", prop.ForAll(
		func(picks []int) bool {
			s := newTestStore(0)
			appendAll(s, picks)
			before := s.Snapshot().GridStatuses
			s.ClearGridEvents()
			snap := s.Snapshot()
			return len(snap.GridEvents) == 0 && snap.LastGridEvent == nil &&
				reflect.DeepEqual(before, snap.GridStatuses)
		},
		gen.SliceOf(gen.IntRange(0, len(propertySymbols)-1)),
	))

	properties.TestingRun(t)
}
