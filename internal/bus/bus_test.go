package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPublish_DeliversToSubscribers(t *testing.T) {
	b := NewEventBus()

	var delivered atomic.Int32
	b.Subscribe(EventTypeQuestionAsked, func(e Event) {
		if e.Data["text"] == "Question 1?" {
			delivered.Add(1)
		}
	})
	b.Subscribe(EventTypeQuestionAsked, func(Event) { delivered.Add(1) })
	b.Subscribe(EventTypeSummaryReady, func(Event) {
		t.Error("unrelated event type must not be delivered")
	})

	b.Publish(Event{Type: EventTypeQuestionAsked, Data: map[string]any{"text": "Question 1?"}})

	waitFor(t, func() bool { return delivered.Load() == 2 }, "handlers never ran")
}

func TestPublishSync_WaitsForHandlers(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var order []string
	b.Subscribe(EventTypeStateChanged, func(Event) {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, "handler")
		mu.Unlock()
	})

	b.PublishSync(Event{Type: EventTypeStateChanged})
	mu.Lock()
	order = append(order, "publisher")
	mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "handler" {
		t.Errorf("PublishSync returned before the handler finished: %v", order)
	}
}

func TestSubscribeMultiple_CoversEachType(t *testing.T) {
	b := NewEventBus()

	var seen atomic.Int32
	b.SubscribeMultiple([]EventType{EventTypeSessionSaved, EventTypeSessionSaveFailed}, func(Event) {
		seen.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeSessionSaved})
	b.PublishSync(Event{Type: EventTypeSessionSaveFailed})

	if seen.Load() != 2 {
		t.Errorf("expected both event types delivered, got %d", seen.Load())
	}
}

func TestClear_RemovesHandlers(t *testing.T) {
	b := NewEventBus()

	b.Subscribe(EventTypeTranscript, func(Event) {
		t.Error("cleared handler must not run")
	})
	b.Clear()

	b.PublishSync(Event{Type: EventTypeTranscript})
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	b := NewEventBus()
	b.Publish(Event{Type: EventTypeEmotionChanged})
	b.PublishSync(Event{Type: EventTypeEmotionChanged})
}
