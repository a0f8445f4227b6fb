package core

import (
	"sync"
)

// entry is one queued submission: an Event, the run that emitted it
// (nil for external submissions), or a control function to execute
// between Steps.
type entry[E any] struct {
	event E
	from  *run
	ctrl  func()
}

// inbox is the Event FIFO and trampoline a System drains on its
// Executor.  Effect goroutines hold the inbox, never the System
// itself, so an abandoned producer cannot keep a disposed System
// alive.
type inbox[E any] struct {
	sync.Mutex
	queue    []entry[E]
	draining bool
	disposed bool
	exec     Executor
	step     func(E)
}

// submit accepts an external Event.  Callable from anywhere,
// including from inside Step delivery; a no-op once the inbox is
// closed.
func (in *inbox[E]) submit(event E) {
	in.push(entry[E]{event: event})
}

// accept accepts an Event emitted by an effect run.  The Event is
// dropped now if the run was already killed, or at dispatch time if
// the kill lands while the Event is still queued.  Either way no
// Event from a killed run reaches the Reducer.
func (in *inbox[E]) accept(event E, from *run) {
	in.push(entry[E]{event: event, from: from})
}

// control queues f to run on the Executor between Steps, in FIFO
// order with the Events around it.
func (in *inbox[E]) control(f func()) {
	in.push(entry[E]{ctrl: f})
}

func (in *inbox[E]) push(ent entry[E]) {
	in.Lock()
	if in.disposed {
		in.Unlock()
		return
	}
	if ent.from != nil && ent.from.dead() {
		in.Unlock()
		return
	}
	in.queue = append(in.queue, ent)
	if in.draining {
		// A drain pass is live and will get to this entry; that
		// pass bounds our stack depth, too.
		in.Unlock()
		return
	}
	in.draining = true
	exec := in.exec
	in.Unlock()
	exec.Schedule(in.drain)
}

// drain is the trampoline: it dispatches queued entries one at a
// time until the queue is empty.  Reentrant submissions made during
// dispatch land in the queue and are handled by this same pass, so
// dispatch never recurses and a Step is fully delivered before the
// next one begins.
func (in *inbox[E]) drain() {
	for {
		in.Lock()
		if in.disposed || 0 == len(in.queue) {
			in.queue = nil
			in.draining = false
			in.Unlock()
			return
		}
		ent := in.queue[0]
		in.queue = in.queue[1:]
		step := in.step
		in.Unlock()

		if ent.ctrl != nil {
			ent.ctrl()
			continue
		}
		if ent.from != nil && ent.from.dead() {
			continue
		}
		step(ent.event)
	}
}

// close shuts the inbox: pending entries are dropped, and later
// submissions are silent no-ops.
func (in *inbox[E]) close() {
	in.Lock()
	in.disposed = true
	in.queue = nil
	in.step = nil
	in.exec = nil
	in.Unlock()
}
