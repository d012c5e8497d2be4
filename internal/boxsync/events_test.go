package boxsync

import (
	"testing"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.Subscribe(EventServiceChange, func(Event) { order = append(order, 1) })
	bus.Subscribe(EventServiceChange, func(Event) { order = append(order, 2) })
	bus.Subscribe(EventServiceStateChange, func(Event) { order = append(order, 99) })
	bus.Subscribe(EventServiceChange, func(Event) { order = append(order, 3) })

	bus.Dispatch(Event{Type: EventServiceChange})

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	id := bus.Subscribe(EventServiceStateChange, func(Event) { calls++ })

	bus.Dispatch(Event{Type: EventServiceStateChange})
	bus.Unsubscribe(id)
	bus.Dispatch(Event{Type: EventServiceStateChange})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.Len() != 0 {
		t.Errorf("Len() = %d, want 0", bus.Len())
	}

	// Unknown ids are ignored.
	bus.Unsubscribe(12345)
}

func TestBus_ChangesDuringDispatchApplyToNextPass(t *testing.T) {
	bus := NewBus()
	var lateCalls, secondCalls int

	var secondID SubscriptionID
	bus.Subscribe(EventServiceChange, func(Event) {
		// Added during dispatch: must not see this pass.
		bus.Subscribe(EventServiceChange, func(Event) { lateCalls++ })
		// Removed during dispatch: still sees this pass.
		bus.Unsubscribe(secondID)
	})
	secondID = bus.Subscribe(EventServiceChange, func(Event) { secondCalls++ })

	bus.Dispatch(Event{Type: EventServiceChange})
	if lateCalls != 0 {
		t.Errorf("subscriber added during dispatch was called %d times", lateCalls)
	}
	if secondCalls != 1 {
		t.Errorf("subscriber removed during dispatch was called %d times, want 1", secondCalls)
	}

	bus.Dispatch(Event{Type: EventServiceChange})
	if lateCalls != 1 {
		t.Errorf("late subscriber calls = %d, want 1", lateCalls)
	}
	if secondCalls != 1 {
		t.Errorf("removed subscriber calls = %d, want 1", secondCalls)
	}
}

func TestBus_Reset(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(EventServiceChange, func(Event) { t.Error("handler called after Reset") })
	bus.Reset()
	bus.Dispatch(Event{Type: EventServiceChange})
}

// errorLogger counts Error calls.
type errorLogger struct {
	noopLogger
	errors []string
}

func (l *errorLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus()
	logger := &errorLogger{}
	bus.SetLogger(logger)

	calls := 0
	bus.Subscribe(EventServiceStateChange, func(Event) { calls++ })
	bus.Subscribe(EventServiceStateChange, func(Event) { panic("boom") })
	bus.Subscribe(EventServiceStateChange, func(Event) { calls++ })

	bus.Dispatch(Event{Type: EventServiceStateChange})

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (handlers around the panicking one still run)", calls)
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged %d errors, want 1", len(logger.errors))
	}
}
