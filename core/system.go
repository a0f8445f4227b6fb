package core

import (
	"runtime"
	"sync"
)

// System runs one feedback loop: a State, a Reducer, and the
// Feedbacks that react to the Steps the Reducer produces.
//
// All Events, from Submit() and from running effects alike, go
// through one FIFO and are reduced strictly one at a time on the
// System's Executor.  Each resulting Step is delivered first to
// subscribers and then to each Feedback, in order, completely,
// before the next Event is touched.
//
// A System owns its effect runs; the runs hold only a submission
// handle back.  So the System lives exactly as long as somebody
// outside holds it: when the last reference is dropped, a finalizer
// disposes it, and anything its effects are still producing is
// discarded.  Call Dispose() to shut down deterministically instead
// of waiting for the collector.
type System[S, E any] struct {
	eng *engine[S, E]
}

// engine is the part of a System reachable from its own effect
// goroutines.  It deliberately has no reference to the outer handle.
type engine[S, E any] struct {
	reduce Reducer[S, E]
	box    *inbox[E]

	sync.Mutex
	state    S
	last     Step[S, E]
	loops    []*loop[S, E]
	subs     []*subscriber[S]
	disposed bool
}

// NewSystem creates a System with the given initial State, Executor,
// Reducer, and Feedbacks, in that Feedback order.
//
// The leading Step (initial State, no Event) is published to the
// Feedbacks via the Executor.  Events submitted before that first
// scheduled tick has run are buffered, not lost, and are reduced
// right after it.
func NewSystem[S, E any](initial S, exec Executor, reduce Reducer[S, E], feedbacks ...Feedback[S, E]) *System[S, E] {
	eng := &engine[S, E]{
		reduce: reduce,
		state:  initial,
		last:   Step[S, E]{State: initial},
	}
	eng.box = &inbox[E]{
		exec: exec,
		step: eng.apply,

		// Marking the drain live before boot is what buffers
		// pre-start submissions: they queue behind the leading
		// Step instead of racing it.
		draining: true,
	}
	for _, fb := range feedbacks {
		eng.loops = append(eng.loops, newLoop(fb, eng.box))
	}

	sys := &System[S, E]{eng: eng}
	runtime.SetFinalizer(sys, func(sys *System[S, E]) {
		sys.eng.dispose()
	})

	exec.Schedule(eng.boot)
	return sys
}

// Submit hands an Event to the System.  Submit never blocks beyond
// the enqueue and is callable from any goroutine and any context,
// including from inside a subscriber callback or an Imperative
// Feedback while a Step is still being delivered.  Submitting to a
// disposed System is a silent no-op.
func (sys *System[S, E]) Submit(event E) {
	sys.eng.box.submit(event)
	runtime.KeepAlive(sys)
}

// Subscribe registers fn to receive States.  fn gets the current
// State synchronously, before Subscribe returns and regardless of
// whether the Executor has run anything yet, and after that every
// published State in order.
//
// The returned function cancels the subscription.  Cancellation
// stops delivery and nothing else; Feedback effects belong to the
// System, not to its subscribers.
func (sys *System[S, E]) Subscribe(fn func(S)) (cancel func()) {
	cancel = sys.eng.subscribe(fn)
	runtime.KeepAlive(sys)
	return cancel
}

// State returns the current State.
func (sys *System[S, E]) State() S {
	state := sys.eng.currentState()
	runtime.KeepAlive(sys)
	return state
}

// Attach adds a Feedback after construction.  The Feedback first
// observes the current Step, not history, and then every subsequent
// Step.  The returned function detaches it and cancels its live
// runs.
func (sys *System[S, E]) Attach(fb Feedback[S, E]) (detach func()) {
	eng := sys.eng
	l := newLoop(fb, eng.box)

	// Registration rides the inbox so it lands between Steps: the
	// new loop can't miss a Step or see one twice.
	eng.box.control(func() {
		eng.Lock()
		if eng.disposed {
			eng.Unlock()
			return
		}
		eng.loops = append(eng.loops, l)
		first := eng.last
		eng.Unlock()
		l.observe(first)
	})
	runtime.KeepAlive(sys)
	return func() {
		eng.detach(l)
	}
}

// Dispose shuts the System down: every live effect run is canceled
// authoritatively, subscribers are dropped, queued Events are
// discarded, and later Submits do nothing.  Dispose is idempotent
// and callable from anywhere, including from inside a delivery.
func (sys *System[S, E]) Dispose() {
	runtime.SetFinalizer(sys, nil)
	sys.eng.dispose()
}

// boot publishes the leading Step to the Feedbacks and then drains
// whatever was submitted before this first scheduled tick.
func (eng *engine[S, E]) boot() {
	eng.Lock()
	if eng.disposed {
		eng.Unlock()
		return
	}
	first := eng.last
	loops := snapshot(eng.loops)
	eng.Unlock()

	for _, l := range loops {
		l.observe(first)
	}
	eng.box.drain()
}

// apply reduces one Event and publishes the resulting Step:
// subscribers first, then each Feedback, in registration order.
// Runs on the Executor via the inbox drain, so there is never more
// than one application in flight.
func (eng *engine[S, E]) apply(event E) {
	eng.Lock()
	if eng.disposed {
		eng.Unlock()
		return
	}
	next := eng.reduce(eng.state, event)
	step := Step[S, E]{State: next, Event: &event}
	eng.state = next
	eng.last = step
	subs := snapshot(eng.subs)
	loops := snapshot(eng.loops)
	for _, sub := range subs {
		// Order is fixed here, under the lock; delivery happens
		// below, outside it.
		sub.enqueue(next)
	}
	eng.Unlock()

	for _, sub := range subs {
		sub.pump()
	}
	for _, l := range loops {
		l.observe(step)
	}
}

func (eng *engine[S, E]) subscribe(fn func(S)) func() {
	sub := &subscriber[S]{fn: fn}
	eng.Lock()
	if eng.disposed {
		state := eng.state
		eng.Unlock()
		// A late subscriber still gets the last word.
		fn(state)
		return func() {}
	}
	sub.enqueue(eng.state)
	eng.subs = append(eng.subs, sub)
	eng.Unlock()

	sub.pump()
	return func() {
		eng.unsubscribe(sub)
	}
}

func (eng *engine[S, E]) unsubscribe(sub *subscriber[S]) {
	eng.Lock()
	for i, s := range eng.subs {
		if s == sub {
			eng.subs = append(eng.subs[:i], eng.subs[i+1:]...)
			break
		}
	}
	eng.Unlock()
	sub.close()
}

func (eng *engine[S, E]) detach(l *loop[S, E]) {
	eng.Lock()
	for i, el := range eng.loops {
		if el == l {
			eng.loops = append(eng.loops[:i], eng.loops[i+1:]...)
			break
		}
	}
	eng.Unlock()
	l.dispose()
}

func (eng *engine[S, E]) currentState() S {
	eng.Lock()
	state := eng.state
	eng.Unlock()
	return state
}

func (eng *engine[S, E]) dispose() {
	eng.Lock()
	if eng.disposed {
		eng.Unlock()
		return
	}
	eng.disposed = true
	subs := eng.subs
	loops := eng.loops
	eng.subs = nil
	eng.loops = nil
	eng.Unlock()

	eng.box.close()
	for _, sub := range subs {
		sub.close()
	}
	for _, l := range loops {
		l.dispose()
	}
}

func snapshot[X any](xs []X) []X {
	ys := make([]X, len(xs))
	copy(ys, xs)
	return ys
}
