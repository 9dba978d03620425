// Package bus provides the in-process pub/sub channel connecting the
// interview flow, speech manager, and orchestrator.
package bus

import (
	"sync"
)

// EventType names a category of bus event
type EventType string

// Event types for the interview engine
const (
	// Interview flow events
	EventTypeInterviewStarted EventType = "interview.started"
	EventTypeQuestionsReady   EventType = "interview.questions_ready"
	EventTypeQuestionAsked    EventType = "interview.question_asked"
	EventTypeAnswerRecorded   EventType = "interview.answer_recorded"
	EventTypeSummaryReady     EventType = "interview.summary_ready"
	EventTypeStateChanged     EventType = "interview.state_changed"

	// Speech events
	EventTypeSpeakingStarted  EventType = "speech.speaking_started"
	EventTypeSpeakingStopped  EventType = "speech.speaking_stopped"
	EventTypeListeningStarted EventType = "speech.listening_started"
	EventTypeListeningStopped EventType = "speech.listening_stopped"
	EventTypeTranscript       EventType = "speech.transcript"
	EventTypeInterimResult    EventType = "speech.interim_result"

	// Viseme timeline events
	EventTypeTimelinePublished EventType = "viseme.timeline_published"
	EventTypeTimelineCleared   EventType = "viseme.timeline_cleared"

	// Avatar events
	EventTypeEmotionChanged EventType = "avatar.emotion_changed"

	// Persistence events
	EventTypeSessionSaved      EventType = "session.saved"
	EventTypeSessionSaveFailed EventType = "session.save_failed"
)

// Event carries a type tag and an untyped payload
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler receives published events
type Handler func(Event)

// EventBus fans events out to type-keyed subscriber lists
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple registers the same handler for several event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, eventType := range eventTypes {
		b.Subscribe(eventType, handler)
	}
}

// snapshot copies the handler list for eventType so publishing never holds
// the lock while handlers run.
func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.handlers[eventType]...)
}

// Publish delivers an event to every subscribed handler without blocking
// the publisher; each handler runs in its own goroutine.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync delivers an event and returns once every handler has run.
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear drops every subscription, e.g. between tests
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
