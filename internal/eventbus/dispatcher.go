// Package eventbus implements the typed-topic publish/subscribe dispatcher
// that every other component in the backtest pipeline communicates through.
//
// The dispatcher is a single cooperative worker draining one FIFO queue:
// publishers never block, every subscriber of a topic observes events in
// publication order, and a callback publishing a new event always enqueues
// behind everything already pending rather than being delivered inline.
// That non-reentrancy is load-bearing — it is what lets the
// bar -> order -> fill pipeline mutate shared portfolio state without
// nested-mutation races, even though the whole engine is effectively
// single-threaded.
package eventbus

import (
	"context"
	"sync"

	"jax-backtest-engine/internal/observability"
)

// Callback is invoked for every event published on a topic it is subscribed
// to, receiving the sender identifier and the event payload.
type Callback func(sender string, payload any)

type subscription struct {
	id uint64
	cb Callback
}

type envelope struct {
	topic   string
	sender  string
	payload any
}

// Dispatcher is the process-wide event bus. The zero value is not valid;
// use New. Callers normally obtain the one instance for a run from
// internal/engine.Engine rather than constructing their own, but Dispatcher
// itself holds no global state — an explicit aggregate, not a singleton
// (design note §9).
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextSubID   uint64

	qmu     sync.Mutex
	qcond   *sync.Cond
	queue   []envelope
	closed  bool
	pending int // queued + currently-delivering envelopes; Flush waits for this to hit 0

	wg sync.WaitGroup
}

// New creates a Dispatcher and starts its single delivery worker.
func New() *Dispatcher {
	d := &Dispatcher{
		subscribers: make(map[string][]subscription),
	}
	d.qcond = sync.NewCond(&d.qmu)
	d.wg.Add(1)
	go d.worker()
	return d
}

// Subscribe registers callback for topic, appending it to that topic's
// delivery list. Subscribing the same callback twice produces two
// deliveries per event. Safe to call concurrently with Publish.
func (d *Dispatcher) Subscribe(topic string, cb Callback) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSubID++
	id := d.nextSubID
	d.subscribers[topic] = append(d.subscribers[topic], subscription{id: id, cb: cb})
	return id
}

// Unsubscribe removes the subscription with the given id from topic, if
// present. No-op for unknown topic/id pairs.
func (d *Dispatcher) Unsubscribe(topic string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[topic]
	for i, s := range subs {
		if s.id == id {
			d.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish enqueues one delivery for topic and returns immediately. Delivery
// to subscribers happens asynchronously on the dispatcher's worker. A topic
// with no subscribers silently drops the event.
func (d *Dispatcher) Publish(topic string, sender string, payload any) {
	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		return
	}
	d.queue = append(d.queue, envelope{topic: topic, sender: sender, payload: payload})
	d.pending++
	d.qcond.Signal()
	d.qmu.Unlock()
}

// Flush blocks until every event enqueued so far (including any published
// by callbacks as a consequence of delivering them) has been fully
// delivered. The backtest main loop calls this after each Advance() so
// that one bar's entire strategy -> risk -> order -> broker -> portfolio
// cascade completes before the next bar is published, matching spec.md
// §5's ordering guarantee even though delivery itself runs on a separate
// worker goroutine. Must not be called from within a callback (the worker
// can never observe pending==0 while blocked delivering to the caller).
func (d *Dispatcher) Flush() {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	for d.pending > 0 && !d.closed {
		d.qcond.Wait()
	}
}

// QueueLength returns the number of envelopes currently queued or being
// delivered. Intended for periodic sampling into a gauge, not for
// synchronization.
func (d *Dispatcher) QueueLength() int {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return d.pending
}

// Close stops accepting new events and waits for the worker to drain and
// exit. Intended for orderly shutdown at the end of a backtest run.
func (d *Dispatcher) Close() {
	d.qmu.Lock()
	d.closed = true
	d.qcond.Broadcast()
	d.qmu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		env, ok := d.dequeue()
		if !ok {
			return
		}
		d.deliver(env)
		d.qmu.Lock()
		d.pending--
		d.qcond.Broadcast()
		d.qmu.Unlock()
	}
}

func (d *Dispatcher) dequeue() (envelope, bool) {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.qcond.Wait()
	}
	if len(d.queue) == 0 {
		return envelope{}, false
	}
	env := d.queue[0]
	d.queue = d.queue[1:]
	return env, true
}

func (d *Dispatcher) deliver(env envelope) {
	d.mu.RLock()
	subs := make([]subscription, len(d.subscribers[env.topic]))
	copy(subs, d.subscribers[env.topic])
	d.mu.RUnlock()

	for _, s := range subs {
		d.invoke(s, env)
	}
}

func (d *Dispatcher) invoke(s subscription, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogEvent(context.Background(), "error", "dispatcher_callback_panic", map[string]any{
				"topic":           env.topic,
				"subscription_id": s.id,
				"panic":           r,
			})
		}
	}()
	s.cb(env.sender, env.payload)
}
