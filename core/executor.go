/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"sync"
	"time"
)

// Executor sequences the work a System does: Reducer applications
// and Step delivery.  Work given to Schedule runs in submission
// order.
//
// A System serializes its own stepping, so an Executor doesn't make
// it correct; the Executor decides where and when the serialized
// work runs.  Immediate runs it on the submitting goroutine, Queued
// on a worker of its own, and Virtual whenever a test pumps the
// clock.
type Executor interface {
	// Schedule arranges for f to run as soon as possible.
	Schedule(f func())

	// ScheduleAfter arranges for f to run once d has elapsed.
	ScheduleAfter(d time.Duration, f func())
}

// Immediate is an Executor that runs scheduled work synchronously on
// the calling goroutine.  Delayed work runs on a timer goroutine.
//
// With an Immediate Executor, Submit returns only after the System
// has gone quiet again, which makes single-goroutine code direct and
// simple.
type Immediate struct{}

func (x Immediate) Schedule(f func()) {
	f()
}

func (x Immediate) ScheduleAfter(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Queued is a single-worker Executor: one goroutine drains an
// unbounded queue in submission order.  Schedule never blocks the
// caller.
//
// A Queued owns its goroutine until Stop is called.  Scheduling on a
// stopped Queued is a configuration error and panics; delayed work
// that comes due after Stop is quietly dropped, since the race
// between a timer and Stop is not the caller's fault.
type Queued struct {
	sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewQueued creates a Queued Executor and starts its worker.
func NewQueued() *Queued {
	q := &Queued{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *Queued) Schedule(f func()) {
	q.Lock()
	if q.stopped {
		q.Unlock()
		panic("Schedule on a stopped Queued executor")
	}
	q.queue = append(q.queue, f)
	q.Unlock()
	q.kick()
}

func (q *Queued) ScheduleAfter(d time.Duration, f func()) {
	q.Lock()
	if q.stopped {
		q.Unlock()
		panic("ScheduleAfter on a stopped Queued executor")
	}
	q.Unlock()

	time.AfterFunc(d, func() {
		q.Lock()
		if q.stopped {
			q.Unlock()
			return
		}
		q.queue = append(q.queue, f)
		q.Unlock()
		q.kick()
	})
}

// Stop lets the worker drain what's already queued and then shuts it
// down, waiting for it to exit.  Idempotent.  Don't call Stop from
// work running on q; that work would be waiting for itself.
func (q *Queued) Stop() {
	q.Lock()
	q.stopped = true
	q.Unlock()
	q.kick()
	<-q.done
}

func (q *Queued) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queued) work() {
	for {
		q.Lock()
		if 0 == len(q.queue) {
			if q.stopped {
				q.Unlock()
				close(q.done)
				return
			}
			q.Unlock()
			<-q.wake
			continue
		}
		f := q.queue[0]
		q.queue = q.queue[1:]
		q.Unlock()
		f()
	}
}
