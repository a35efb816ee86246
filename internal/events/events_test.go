package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLoopDispatchesInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []Tag

	loop := NewLoop(nil, 8, func(e Event) bool {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Tag)
		return e.Tag == Stop
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	loop.Post(Event{Tag: OpenCamera})
	loop.Post(Event{Tag: SetAutoFocus})
	loop.Post(Event{Tag: Stop})

	select {
	case <-loop.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after Stop event")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 3 {
		t.Fatalf("expected at least 3 dispatched events (timer ticks included), got %v", seen)
	}
	var posted []Tag
	for _, tag := range seen {
		if tag != TimerTick {
			posted = append(posted, tag)
		}
	}
	want := []Tag{OpenCamera, SetAutoFocus, Stop}
	if len(posted) != len(want) {
		t.Fatalf("expected posted events %v, got %v", want, posted)
	}
	for i := range want {
		if posted[i] != want[i] {
			t.Fatalf("expected posted events dispatched in order %v, got %v", want, posted)
		}
	}
	foundOpen, foundStop := false, false
	for _, tag := range seen {
		if tag == OpenCamera {
			foundOpen = true
		}
		if tag == Stop {
			foundStop = true
		}
	}
	if !foundOpen || !foundStop {
		t.Fatalf("expected OpenCamera and Stop in %v", seen)
	}
}

func TestPostAfterCloseDoesNotBlock(t *testing.T) {
	loop := NewLoop(nil, 1, func(Event) bool { return false })
	loop.Close()
	done := make(chan struct{})
	go func() {
		loop.Post(Event{Tag: OpenCamera})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked after Close")
	}
}
