package eventbus

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestPublishSubscribeDeliversInOrder(t *testing.T) {
	d := New()
	defer d.Close()

	var mu sync.Mutex
	var got []int

	d.Subscribe("nums", func(sender string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(int))
	})

	for i := 0; i < 5; i++ {
		d.Publish("nums", "test", i)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("delivery order mismatch at %d: got %d, want %d", i, v, i)
		}
	}
}

func TestSubscribeTwiceDeliversTwice(t *testing.T) {
	d := New()
	defer d.Close()

	var mu sync.Mutex
	count := 0
	cb := func(sender string, payload any) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	d.Subscribe("topic", cb)
	d.Subscribe("topic", cb)

	d.Publish("topic", "s", nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

func TestUnknownTopicIsSilentlyDropped(t *testing.T) {
	d := New()
	defer d.Close()
	// Publishing to a topic with no subscribers must not panic or block.
	d.Publish("nobody-listens", "s", "payload")
	// Give the worker a moment to process; absence of a panic is the assertion.
	time.Sleep(10 * time.Millisecond)
}

func TestCallbackPanicDoesNotHaltWorkerOrOtherSubscribers(t *testing.T) {
	d := New()
	defer d.Close()

	var mu sync.Mutex
	secondRan := false

	d.Subscribe("topic", func(sender string, payload any) {
		panic("boom")
	})
	d.Subscribe("topic", func(sender string, payload any) {
		mu.Lock()
		secondRan = true
		mu.Unlock()
	})

	d.Publish("topic", "s", nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondRan
	})

	// The worker must still be alive for later events.
	var laterRan bool
	d.Subscribe("topic2", func(sender string, payload any) {
		mu.Lock()
		laterRan = true
		mu.Unlock()
	})
	d.Publish("topic2", "s", nil)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return laterRan
	})
}

func TestPublishFromCallbackIsQueuedNotInline(t *testing.T) {
	d := New()
	defer d.Close()

	var mu sync.Mutex
	var order []string

	d.Subscribe("a", func(sender string, payload any) {
		mu.Lock()
		order = append(order, "a-start")
		mu.Unlock()
		d.Publish("b", "a", nil)
		mu.Lock()
		order = append(order, "a-end")
		mu.Unlock()
	})
	d.Subscribe("b", func(sender string, payload any) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
	})

	d.Publish("a", "test", nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	// "a-end" must be observed before "b": the nested publish from within the
	// "a" callback is appended to the queue, not delivered inline.
	want := []string{"a-start", "a-end", "b"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFlushWaitsForCascadedPublishes(t *testing.T) {
	d := New()
	defer d.Close()

	var mu sync.Mutex
	var order []string

	d.Subscribe("a", func(sender string, payload any) {
		d.Publish("b", "a", nil)
	})
	d.Subscribe("b", func(sender string, payload any) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		d.Publish("c", "b", nil)
	})
	d.Subscribe("c", func(sender string, payload any) {
		mu.Lock()
		order = append(order, "c")
		mu.Unlock()
	})

	d.Publish("a", "test", nil)
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "b" || order[1] != "c" {
		t.Fatalf("order = %v, want [b c] fully drained after Flush", order)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	d := New()
	defer d.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			d.Publish("flood", "test", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish appears to block")
	}
}
