package core

import (
	"sync"
	"time"
)

// Virtual is an Executor with a manually advanced clock.  Nothing
// runs until the clock is pumped: Run executes the work scheduled
// for the current instant, Advance moves the clock and executes
// delayed work as its time arrives, and RunAll drains everything.
//
// Virtual exists so tests can steer time deterministically instead
// of sleeping.  Scheduling is safe from any goroutine (effects
// submit from their own), but only one goroutine should pump.
type Virtual struct {
	sync.Mutex
	now  time.Time
	seq  int
	work []virtualEntry
}

type virtualEntry struct {
	due time.Time
	seq int
	f   func()
}

// NewVirtual creates a Virtual clock starting at the zero instant of
// the Unix epoch.
func NewVirtual() *Virtual {
	return &Virtual{now: time.Unix(0, 0).UTC()}
}

func (v *Virtual) Schedule(f func()) {
	v.add(0, f)
}

func (v *Virtual) ScheduleAfter(d time.Duration, f func()) {
	v.add(d, f)
}

// Now reports the current virtual time.
func (v *Virtual) Now() time.Time {
	v.Lock()
	now := v.now
	v.Unlock()
	return now
}

// Pending reports how much scheduled work has not yet run.
func (v *Virtual) Pending() int {
	v.Lock()
	n := len(v.work)
	v.Unlock()
	return n
}

// Run executes everything scheduled for the current instant,
// including work that that work schedules.
func (v *Virtual) Run() {
	for {
		e, ok := v.pop(v.Now(), true)
		if !ok {
			return
		}
		e.f()
	}
}

// Advance moves the clock forward by d, executing everything that
// comes due on the way, in due order, ties in submission order.
func (v *Virtual) Advance(d time.Duration) {
	v.Lock()
	horizon := v.now.Add(d)
	v.Unlock()

	for {
		e, ok := v.pop(horizon, true)
		if !ok {
			break
		}
		e.f()
	}

	v.Lock()
	if v.now.Before(horizon) {
		v.now = horizon
	}
	v.Unlock()
}

// RunAll executes scheduled work, advancing the clock as far as
// needed, until none remains.  Work that always reschedules itself
// will keep RunAll from returning.
func (v *Virtual) RunAll() {
	for {
		e, ok := v.pop(time.Time{}, false)
		if !ok {
			return
		}
		e.f()
	}
}

func (v *Virtual) add(d time.Duration, f func()) {
	v.Lock()
	v.seq++
	v.work = append(v.work, virtualEntry{
		due: v.now.Add(d),
		seq: v.seq,
		f:   f,
	})
	v.Unlock()
}

// pop removes and returns the earliest entry, due order then
// submission order, that is due at or before horizon (if limited),
// advancing the clock to the entry's due time.
func (v *Virtual) pop(horizon time.Time, limited bool) (virtualEntry, bool) {
	v.Lock()
	defer v.Unlock()

	best := -1
	for i, e := range v.work {
		if limited && e.due.After(horizon) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := v.work[best]
		if e.due.Before(b.due) || (e.due.Equal(b.due) && e.seq < b.seq) {
			best = i
		}
	}
	if best < 0 {
		return virtualEntry{}, false
	}

	e := v.work[best]
	v.work = append(v.work[:best], v.work[best+1:]...)
	if v.now.Before(e.due) {
		v.now = e.due
	}
	return e, true
}
