// Package events fans backtest lifecycle notifications out to subscribers
// such as the websocket hub.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBacktestStarted   EventType = "BACKTEST_STARTED"
	EventBacktestCompleted EventType = "BACKTEST_COMPLETED"
	EventBacktestFailed    EventType = "BACKTEST_FAILED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	now         func() time.Time
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
		now:         time.Now,
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs on its own
// goroutine so a slow one cannot block the publisher.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now().UTC()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishBacktestStarted announces a run over the given bars
func (eb *EventBus) PublishBacktestStarted(symbol, interval string, bars int) {
	eb.Publish(Event{
		Type: EventBacktestStarted,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"interval": interval,
			"bars":     bars,
		},
	})
}

// PublishBacktestCompleted announces a finished run
func (eb *EventBus) PublishBacktestCompleted(id, symbol string, trades int, finalBalance, profitLossPercent float64) {
	eb.Publish(Event{
		Type: EventBacktestCompleted,
		Data: map[string]interface{}{
			"id":                  id,
			"symbol":              symbol,
			"trades":              trades,
			"final_balance":       finalBalance,
			"profit_loss_percent": profitLossPercent,
		},
	})
}

// PublishBacktestFailed announces a run that returned an error
func (eb *EventBus) PublishBacktestFailed(symbol string, err error) {
	eb.Publish(Event{
		Type: EventBacktestFailed,
		Data: map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		},
	})
}

// PublishSignal announces a live trade signal
func (eb *EventBus) PublishSignal(symbol, patternType, signal string, price, stopLoss float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"pattern":   patternType,
			"signal":    signal,
			"price":     price,
			"stop_loss": stopLoss,
		},
	})
}
