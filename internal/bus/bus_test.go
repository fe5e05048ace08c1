package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(quietLogger())
	defer b.Close()

	sub := b.Subscribe("a", "b")
	b.Publish("a", 1)
	b.Publish("c", 2)
	b.Publish("b", 3)

	for _, want := range []int{1, 3} {
		select {
		case got := <-sub:
			if got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %d", want)
		}
	}

	b.Unsubscribe(sub)
}

func TestConsumeSurvivesPanickingHandler(t *testing.T) {
	b := New(quietLogger())
	defer b.Close()

	sub := b.Subscribe("t")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan int, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Consume(ctx, quietLogger(), sub, func(msg any) {
			n := msg.(int)
			if n == 1 {
				panic("boom")
			}
			seen <- n
		})
	}()

	b.Publish("t", 1)
	b.Publish("t", 2)

	select {
	case got := <-seen:
		if got != 2 {
			t.Fatalf("got %d, want 2", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("handler stopped after panic")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Consume did not return after cancel")
	}
}
