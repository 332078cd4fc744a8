package aggregator

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/calendararchive/calendar-server/internal/domain"
)

func eventsFrom(titles []string, personal bool) []domain.Event {
	out := make([]domain.Event, 0, len(titles))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range titles {
		ev := domain.Event{
			ID:         fmt.Sprintf("gev-%d", i),
			Title:      title,
			Date:       base.AddDate(0, 0, i),
			IsPersonal: personal,
		}
		if personal {
			ev.ID = fmt.Sprintf("pev-%d", i)
			ev.UserID = "usr-1"
		}
		out = append(out, ev)
	}
	return out
}

func titles() gopter.Gen {
	return gen.SliceOf(gen.AlphaString())
}

func TestProperty_MergeIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("applying the same global snapshot twice equals applying it once", prop.ForAll(
		func(initialGlobal, initialPersonal, snapshot []string) bool {
			start := State{}.
				ApplyGlobal(eventsFrom(initialGlobal, false)).
				ApplyPersonal(eventsFrom(initialPersonal, true))
			g := eventsFrom(snapshot, false)

			once := start.ApplyGlobal(g)
			twice := start.ApplyGlobal(g).ApplyGlobal(g)
			return reflect.DeepEqual(once.Events(), twice.Events())
		},
		titles(), titles(), titles(),
	))

	properties.Property("applying the same personal snapshot twice equals applying it once", prop.ForAll(
		func(initialGlobal, snapshot []string) bool {
			start := State{}.ApplyGlobal(eventsFrom(initialGlobal, false))
			p := eventsFrom(snapshot, true)

			return reflect.DeepEqual(start.ApplyPersonal(p).Events(), start.ApplyPersonal(p).ApplyPersonal(p).Events())
		},
		titles(), titles(),
	))

	properties.TestingRun(t)
}

func TestProperty_MergeCommutativity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("global and personal snapshots commute", prop.ForAll(
		func(initialGlobal, initialPersonal, globalSnap, personalSnap []string) bool {
			start := State{}.
				ApplyGlobal(eventsFrom(initialGlobal, false)).
				ApplyPersonal(eventsFrom(initialPersonal, true))
			g := eventsFrom(globalSnap, false)
			p := eventsFrom(personalSnap, true)

			globalFirst := start.ApplyGlobal(g).ApplyPersonal(p)
			personalFirst := start.ApplyPersonal(p).ApplyGlobal(g)
			return reflect.DeepEqual(globalFirst.Events(), personalFirst.Events())
		},
		titles(), titles(), titles(), titles(),
	))

	properties.TestingRun(t)
}

func TestProperty_ProvenanceIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a global snapshot never alters personal entries", prop.ForAll(
		func(initialGlobal, initialPersonal, snapshot []string) bool {
			start := State{}.
				ApplyGlobal(eventsFrom(initialGlobal, false)).
				ApplyPersonal(eventsFrom(initialPersonal, true))

			after := start.ApplyGlobal(eventsFrom(snapshot, false))
			return reflect.DeepEqual(start.Personal(), after.Personal())
		},
		titles(), titles(), titles(),
	))

	properties.Property("a personal snapshot never alters global entries", prop.ForAll(
		func(initialGlobal, initialPersonal, snapshot []string) bool {
			start := State{}.
				ApplyGlobal(eventsFrom(initialGlobal, false)).
				ApplyPersonal(eventsFrom(initialPersonal, true))

			after := start.ApplyPersonal(eventsFrom(snapshot, true))
			return reflect.DeepEqual(start.Global(), after.Global())
		},
		titles(), titles(), titles(),
	))

	properties.Property("the view is exactly global followed by personal", prop.ForAll(
		func(g, p []string) bool {
			st := State{}.ApplyGlobal(eventsFrom(g, false)).ApplyPersonal(eventsFrom(p, true))
			events := st.Events()
			if len(events) != len(g)+len(p) || st.Len() != len(events) {
				return false
			}
			for i, ev := range events {
				if ev.IsPersonal != (i >= len(g)) {
					return false
				}
			}
			return true
		},
		titles(), titles(),
	))

	properties.TestingRun(t)
}
