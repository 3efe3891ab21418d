package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesOnlyItsType(t *testing.T) {
	bus := NewEventBus()
	completed := make(chan Event, 4)
	bus.Subscribe(EventBacktestCompleted, func(e Event) { completed <- e })

	bus.PublishBacktestStarted("BTCUSDT", "1h", 100)
	bus.PublishBacktestCompleted("abc", "BTCUSDT", 3, 10400, 4)

	e := receive(t, completed)
	assert.Equal(t, EventBacktestCompleted, e.Type)
	assert.Equal(t, "abc", e.Data["id"])
	assert.Equal(t, 3, e.Data["trades"])
	assert.False(t, e.Timestamp.IsZero())

	select {
	case extra := <-completed:
		t.Fatalf("unexpected event %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()
	all := make(chan Event, 4)
	bus.SubscribeAll(func(e Event) { all <- e })

	bus.PublishBacktestFailed("ETHUSDT", errors.New("empty input"))
	bus.PublishSignal("ETHUSDT", "liquidity_sweep", "buy", 100, 95)

	seen := map[EventType]Event{}
	for range 2 {
		e := receive(t, all)
		seen[e.Type] = e
	}
	require.Contains(t, seen, EventBacktestFailed)
	require.Contains(t, seen, EventSignalGenerated)
	assert.Equal(t, "empty input", seen[EventBacktestFailed].Data["error"])
	assert.Equal(t, 95.0, seen[EventSignalGenerated].Data["stop_loss"])
}

func TestPublishKeepsExplicitTimestamp(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.SubscribeAll(func(e Event) { got <- e })

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bus.Publish(Event{Type: EventBacktestStarted, Timestamp: ts})
	assert.Equal(t, ts, receive(t, got).Timestamp)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.PublishBacktestStarted("BTCUSDT", "1h", 1) })
}
