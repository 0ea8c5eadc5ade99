package events

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("NewBus returned nil")
	}
	if bus.handlers == nil {
		t.Error("handlers map not initialized")
	}
	if bus.allHandlers == nil {
		t.Error("allHandlers map not initialized")
	}
}

func TestSubscribe(t *testing.T) {
	bus := NewBus()

	id := bus.Subscribe(TypeStepStatus, func(e Event) {})

	if id == "" {
		t.Error("Subscribe returned empty ID")
	}
	if !bus.HasSubscribers(TypeStepStatus) {
		t.Error("HasSubscribers returned false after Subscribe")
	}
}

func TestSubscribeMultiple(t *testing.T) {
	bus := NewBus()

	id1 := bus.Subscribe(TypeStepStatus, func(e Event) {})
	id2 := bus.Subscribe(TypeStepStatus, func(e Event) {})

	if id1 == id2 {
		t.Error("Subscribe returned duplicate IDs")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()

	id := bus.SubscribeAll(func(e Event) {})

	if id == "" {
		t.Error("SubscribeAll returned empty ID")
	}
	if !bus.HasSubscribers(TypeStepStatus) {
		t.Error("HasSubscribers returned false for TypeStepStatus after SubscribeAll")
	}
	if !bus.HasSubscribers(TypeRunFailed) {
		t.Error("HasSubscribers returned false for TypeRunFailed after SubscribeAll")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	id := bus.Subscribe(TypeStepStatus, func(e Event) {})
	bus.Unsubscribe(id)

	if bus.HasSubscribers(TypeStepStatus) {
		t.Error("HasSubscribers returned true after Unsubscribe")
	}
}

func TestUnsubscribeAll(t *testing.T) {
	bus := NewBus()

	id := bus.SubscribeAll(func(e Event) {})
	bus.Unsubscribe(id)

	if bus.HasSubscribers(TypeStepStatus) {
		t.Error("HasSubscribers returned true after Unsubscribe of all-handler")
	}
}

func TestUnsubscribeNonexistent(t *testing.T) {
	bus := NewBus()
	// Must not panic
	bus.Unsubscribe("nonexistent")
}

func TestPublish(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe(TypeStepStatus, func(e Event) {
		got = e
	})

	bus.Publish(StepStatusEvent{RequestID: "req-1", StepOrder: 2, State: StepRunning})

	if got.Type != TypeStepStatus {
		t.Errorf("event type = %q, want %q", got.Type, TypeStepStatus)
	}
	if got.RequestID != "req-1" {
		t.Errorf("request id = %q, want %q", got.RequestID, "req-1")
	}
	if got.Data["step_order"] != 2 {
		t.Errorf("step_order = %v, want 2", got.Data["step_order"])
	}
}

func TestPublishToMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	var count atomic.Int32
	bus.Subscribe(TypeStepStatus, func(e Event) { count.Add(1) })
	bus.Subscribe(TypeStepStatus, func(e Event) { count.Add(1) })
	bus.Subscribe(TypeStepStatus, func(e Event) { count.Add(1) })

	bus.Publish(StepStatusEvent{RequestID: "r", StepOrder: 1, State: StepComplete})

	if count.Load() != 3 {
		t.Errorf("handler count = %d, want 3", count.Load())
	}
}

func TestPublishDoesNotReachOtherTypes(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(TypeRunFailed, func(e Event) {
		called = true
	})

	bus.Publish(StepStatusEvent{RequestID: "r", StepOrder: 1, State: StepRunning})

	if called {
		t.Error("handler for different type should not be called")
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus()

	var count atomic.Int32
	bus.SubscribeAll(func(e Event) {
		count.Add(1)
	})

	bus.Publish(StepStatusEvent{RequestID: "r", StepOrder: 1, State: StepRunning})
	bus.Publish(RunFailedEvent{RequestID: "r", Kind: "agent", Error: "boom"})

	if count.Load() != 2 {
		t.Errorf("all-handler count = %d, want 2", count.Load())
	}
}

func TestClear(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeStepStatus, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})
	bus.Clear()

	if bus.HasSubscribers(TypeStepStatus) {
		t.Error("HasSubscribers returned true after Clear")
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := bus.Subscribe(TypeProgress, func(e Event) {})
			bus.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			bus.Publish(ProgressEvent{RequestID: "r", Message: "m"})
		}()
	}
	wg.Wait()
}

func TestRunStreamsRoutesByRequestID(t *testing.T) {
	bus := NewBus()
	rs := NewRunStreams(bus)
	defer rs.Close()

	ch := rs.Attach("req-1")

	bus.Publish(ProgressEvent{RequestID: "req-1", Message: "step one"})
	bus.Publish(ProgressEvent{RequestID: "req-2", Message: "other request"})

	select {
	case e := <-ch:
		if e.Data["message"] != "step one" {
			t.Errorf("message = %v, want %q", e.Data["message"], "step one")
		}
	default:
		t.Fatal("expected an event on the attached stream")
	}

	select {
	case e := <-ch:
		t.Errorf("unexpected second event: %+v", e)
	default:
	}
}

func TestRunStreamsDropWithoutListener(t *testing.T) {
	bus := NewBus()
	rs := NewRunStreams(bus)
	defer rs.Close()

	// No listener attached: publish must not block or panic.
	bus.Publish(ProgressEvent{RequestID: "ghost", Message: "dropped"})
}

func TestRunStreamsDetachClosesChannel(t *testing.T) {
	bus := NewBus()
	rs := NewRunStreams(bus)
	defer rs.Close()

	ch := rs.Attach("req-1")
	rs.Detach("req-1")

	if _, open := <-ch; open {
		t.Error("channel should be closed after Detach")
	}
}

func TestRunStreamsAttachReplacesListener(t *testing.T) {
	bus := NewBus()
	rs := NewRunStreams(bus)
	defer rs.Close()

	old := rs.Attach("req-1")
	fresh := rs.Attach("req-1")

	if _, open := <-old; open {
		t.Error("old channel should be closed once replaced")
	}

	bus.Publish(ProgressEvent{RequestID: "req-1", Message: "to fresh"})
	select {
	case e := <-fresh:
		if e.Data["message"] != "to fresh" {
			t.Errorf("message = %v, want %q", e.Data["message"], "to fresh")
		}
	default:
		t.Fatal("fresh channel should receive the event")
	}
}

func TestRunStreamsConcurrentDetachDoesNotPanic(t *testing.T) {
	bus := NewBus()
	rs := NewRunStreams(bus)
	defer rs.Close()

	// Publishing races against listeners detaching mid-run, exactly
	// what an SSE client disconnect causes. The router must never send
	// on a channel that Detach or an Attach replacement has closed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bus.Publish(ProgressEvent{RequestID: "req-1", Message: "tick"})
		}
	}()

	for i := 0; i < 1000; i++ {
		ch := rs.Attach("req-1")
		// Drain a little so the buffer stays in play.
		select {
		case <-ch:
		default:
		}
		rs.Detach("req-1")
	}
	<-done
}
