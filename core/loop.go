package core

import (
	"context"
	"sync"
)

// run is one live invocation of a Feedback's effect.
type run struct {
	sync.Mutex
	canceled bool
	cancel   context.CancelFunc
}

// kill makes cancellation authoritative: after kill returns, no
// event from this run will reach the Reducer, including events
// already sitting in the inbox.
func (r *run) kill() {
	r.Lock()
	r.canceled = true
	r.Unlock()
	r.cancel()
}

// release frees the run's context without revoking events the run
// already emitted.  Used when an effect returns on its own.
func (r *run) release() {
	r.cancel()
}

func (r *run) dead() bool {
	r.Lock()
	d := r.canceled
	r.Unlock()
	return d
}

// loop interprets one Feedback against the Step sequence, starting
// and canceling effect runs per the Feedback's Kind.
type loop[S, E any] struct {
	fb  Feedback[S, E]
	box *inbox[E]

	sync.Mutex
	disposed bool
	current  *run          // live run, for the switch-latest kinds
	live     map[*run]bool // every live run, for disposal
	prev     interface{}   // previous evaluation, for skipping kinds
	prevOK   bool
	evaled   bool
}

func newLoop[S, E any](fb Feedback[S, E], box *inbox[E]) *loop[S, E] {
	return &loop[S, E]{
		fb:   fb,
		box:  box,
		live: make(map[*run]bool),
	}
}

// observe applies the Feedback's policy to one Step.  Called in Step
// order, on the System's dispatch path.
func (l *loop[S, E]) observe(step Step[S, E]) {
	switch l.fb.kind {
	case KindImperative:
		l.Lock()
		disposed := l.disposed
		l.Unlock()
		if !disposed {
			l.fb.imper(step, l.box.submit)
		}
		return
	case KindFeed:
		// The feed's one run begins with the first Step it sees,
		// which is the leading Step unless the Feedback was
		// Attach()ed later.
		l.Lock()
		if !l.disposed && !l.evaled {
			l.evaled = true
			l.current = l.spawn(nil)
		}
		l.Unlock()
		return
	}

	if l.fb.eventsOnly && nil == step.Event {
		return
	}

	trigger, ok := l.fb.extract(step)

	l.Lock()
	defer l.Unlock()
	if l.disposed {
		return
	}

	switch l.fb.kind {
	case KindWithLatest:
		if ok {
			l.restart(trigger)
		}
	case KindMerging:
		if ok {
			l.spawn(trigger)
		}
	case KindLensing, KindExtracting:
		if !ok {
			if l.current != nil {
				l.current.kill()
				delete(l.live, l.current)
				l.current = nil
			}
			return
		}
		l.restart(trigger)
	case KindSkippingRepeated:
		start := ok && (!l.evaled || !l.prevOK || !l.fb.same(l.prev, trigger))
		l.prev, l.prevOK, l.evaled = trigger, ok, true
		if start {
			l.restart(trigger)
		}
	case KindEdgeTriggered:
		start := ok && !l.prevOK
		l.prevOK = ok
		if start {
			l.restart(trigger)
		}
	}
}

// spawn starts one effect run on its own goroutine.  Caller holds
// l's lock.
func (l *loop[S, E]) spawn(trigger interface{}) *run {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}
	l.live[r] = true

	// The goroutine captures the inbox, not the System, so a
	// still-running effect doesn't keep a dropped System alive.
	box := l.box
	effect := l.fb.effect
	out := func(event E) {
		box.accept(event, r)
	}
	go func() {
		effect(ctx, trigger, out)
		l.finish(r)
	}()
	return r
}

// restart is switch-latest: kill the previous run, if any, and start
// a new one.  Caller holds l's lock.
func (l *loop[S, E]) restart(trigger interface{}) {
	if l.current != nil {
		l.current.kill()
		delete(l.live, l.current)
	}
	l.current = l.spawn(trigger)
}

// finish retires a run whose effect returned on its own.  The run's
// context is released, but events it emitted before returning remain
// deliverable.  The Feedback stays eligible: the next qualifying
// trigger starts a fresh run.
func (l *loop[S, E]) finish(r *run) {
	r.release()
	l.Lock()
	delete(l.live, r)
	if l.current == r {
		l.current = nil
	}
	l.Unlock()
}

// dispose kills every live run.  Idempotent.
func (l *loop[S, E]) dispose() {
	l.Lock()
	if l.disposed {
		l.Unlock()
		return
	}
	l.disposed = true
	runs := make([]*run, 0, len(l.live))
	for r := range l.live {
		runs = append(runs, r)
	}
	l.live = nil
	l.current = nil
	l.Unlock()

	for _, r := range runs {
		r.kill()
	}
}
