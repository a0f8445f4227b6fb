/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *      http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

// TimerEntry represents a pending timer.
type TimerEntry struct {
	// Id can be used to cancel the timer.
	Id string `json:"id"`

	// Msg is what the timer emits when it fires.
	Msg interface{} `json:"message"`

	// At is the time when the timer should fire next.
	At time.Time `json:"at"`

	// Cron is the cron expression for a recurring timer (if any).
	Cron string `json:"cron,omitempty"`

	// Ctl is used to cancel the timer's goroutine.
	Ctl chan bool `json:"-"`

	t *Timers

	sched *cronexpr.Expression
}

// Timers is a simple timers service that emits messages as timers
// fire.
//
// A timer with a Cron expression re-arms itself after each firing.
type Timers struct {
	sync.Mutex

	// Map goes from timer ids to their entries.
	Map map[string]*TimerEntry

	// Emitter is the function that processes a fired timer.
	Emitter func(ctx context.Context, te *TimerEntry)

	// Verbose turns on some logging.
	Verbose bool
}

// NewTimers makes a Timers with the given emitter.
func NewTimers(emitter func(ctx context.Context, te *TimerEntry)) *Timers {
	return &Timers{
		Map:     make(map[string]*TimerEntry),
		Emitter: emitter,
	}
}

func (t *Timers) logf(format string, args ...interface{}) {
	if !t.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Add creates a new timer that'll fire once after the given duration.
//
// Adding a timer with an id that's already in use replaces the old
// timer.
func (t *Timers) Add(ctx context.Context, id string, msg interface{}, d time.Duration) error {
	te := &TimerEntry{
		Id:  id,
		Msg: msg,
		At:  time.Now().UTC().Add(d),
		Ctl: make(chan bool),
		t:   t,
	}
	return t.add(ctx, te)
}

// AddCron creates a recurring timer driven by the given cron
// expression.
func (t *Timers) AddCron(ctx context.Context, id string, expr string, msg interface{}) error {
	sched, err := cronexpr.Parse(expr)
	if err != nil {
		return err
	}
	next := sched.Next(time.Now())
	if next.IsZero() {
		return fmt.Errorf("cron '%s' has no future firings", expr)
	}
	te := &TimerEntry{
		Id:    id,
		Msg:   msg,
		At:    next,
		Cron:  expr,
		Ctl:   make(chan bool),
		t:     t,
		sched: sched,
	}
	return t.add(ctx, te)
}

func (t *Timers) add(ctx context.Context, te *TimerEntry) error {
	t.logf("Timers add %s at %s", te.Id, te.At.Format(time.RFC3339Nano))
	t.Lock()
	if old, have := t.Map[te.Id]; have {
		close(old.Ctl)
	}
	t.Map[te.Id] = te
	t.Unlock()
	go te.run(ctx)
	return nil
}

// Cancel cancels the timer with the given id (if any).
func (t *Timers) Cancel(ctx context.Context, id string) error {
	t.logf("Timers cancel %s", id)
	t.Lock()
	te, have := t.Map[id]
	if have {
		close(te.Ctl)
		delete(t.Map, id)
	}
	t.Unlock()
	if !have {
		return fmt.Errorf("timer '%s' does not exist", id)
	}
	return nil
}

// Pending returns the number of timers currently armed.
func (t *Timers) Pending() int {
	t.Lock()
	n := len(t.Map)
	t.Unlock()
	return n
}

// Shutdown cancels all timers.
func (t *Timers) Shutdown() {
	t.Lock()
	for id, te := range t.Map {
		close(te.Ctl)
		delete(t.Map, id)
	}
	t.Unlock()
}

// forget removes the entry if it's still the one in the map.
func (t *Timers) forget(te *TimerEntry) {
	t.Lock()
	if cur, have := t.Map[te.Id]; have && cur == te {
		delete(t.Map, te.Id)
	}
	t.Unlock()
}

// run waits for the timer to fire (or be canceled).  A cron timer
// loops; a plain timer returns after its one firing.
func (te *TimerEntry) run(ctx context.Context) {
	for {
		d := time.Until(te.At)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			te.t.logf("Timers firing %s", te.Id)
			te.t.Emitter(ctx, te)
			if te.sched == nil {
				te.t.forget(te)
				return
			}
			next := te.sched.Next(time.Now())
			if next.IsZero() {
				te.t.forget(te)
				return
			}
			te.At = next
		case <-te.Ctl:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			te.t.forget(te)
			return
		}
	}
}
