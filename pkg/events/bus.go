package events

import (
	"sync"
	"time"

	"github.com/code-100-precent/calltrack/pkg/logger"
	"go.uber.org/zap"
)

// Call lifecycle event types
const (
	CallStarted   = "call.started"
	CallConnected = "call.connected"
	CallEnded     = "call.ended"
	CallVoicemail = "call.voicemail"
	CallRecording = "call.recording"
)

// Event system event
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

// EventHandler handles one event; errors are logged, never returned to the publisher
type EventHandler func(event Event) error

// DefaultQueueSize events buffered per subscriber before new ones are dropped
const DefaultQueueSize = 1024

type subscription struct {
	eventType string
	handler   EventHandler
	queue     chan Event
}

// EventBus in-process fan-out. Each subscriber runs on its own goroutine and sees
// events in Publish order; a subscriber whose queue is full misses the event.
type EventBus struct {
	subs      []*subscription
	queueSize int
	closed    bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

var globalEventBus *EventBus
var once sync.Once

func NewEventBus() *EventBus {
	return &EventBus{queueSize: DefaultQueueSize}
}

// GetEventBus returns the process-wide bus
func GetEventBus() *EventBus {
	once.Do(func() {
		globalEventBus = NewEventBus()
	})
	return globalEventBus
}

// Subscribe registers handler for eventType; "*" receives every event
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		logger.Warn("Subscribe on closed event bus", zap.String("eventType", eventType))
		return
	}
	size := bus.queueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	sub := &subscription{eventType: eventType, handler: handler, queue: make(chan Event, size)}
	bus.subs = append(bus.subs, sub)
	bus.wg.Add(1)
	go bus.drain(sub)
	logger.Info("Event handler subscribed", zap.String("eventType", eventType))
}

func (bus *EventBus) drain(sub *subscription) {
	defer bus.wg.Done()
	for event := range sub.queue {
		if err := sub.handler(event); err != nil {
			logger.Error("Event handler failed",
				zap.String("eventType", event.Type),
				zap.Error(err))
		}
	}
}

// Publish queues event for every matching subscriber without waiting on handlers
func (bus *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.RLock()
	defer bus.mu.RUnlock()
	if bus.closed {
		logger.Debug("Event bus closed, event dropped", zap.String("eventType", event.Type))
		return
	}

	delivered := 0
	for _, sub := range bus.subs {
		if sub.eventType != event.Type && sub.eventType != "*" {
			continue
		}
		select {
		case sub.queue <- event:
			delivered++
		default:
			logger.Warn("Event handler queue full, event dropped",
				zap.String("eventType", event.Type),
				zap.String("subscription", sub.eventType))
		}
	}
	if delivered == 0 {
		logger.Debug("No handlers for event", zap.String("eventType", event.Type))
	}
}

// Close stops accepting events and waits until every queued event is handled
func (bus *EventBus) Close() {
	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return
	}
	bus.closed = true
	for _, sub := range bus.subs {
		close(sub.queue)
	}
	bus.mu.Unlock()
	bus.wg.Wait()
}
