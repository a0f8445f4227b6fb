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
)

// subscriber delivers States to one callback, in order, one call at
// a time, no matter which goroutines enqueue or pump.
//
// enqueue order is fixed by the caller (the System enqueues while
// holding its own lock); pump just plays the queue out.  Having a
// queue here, instead of calling back under a lock, is what lets a
// callback re-enter the System (Submit, State, even its own cancel)
// without deadlocking.
type subscriber[S any] struct {
	sync.Mutex
	pending []S
	busy    bool
	fn      func(S)
}

// enqueue queues one State for delivery.
func (sub *subscriber[S]) enqueue(state S) {
	sub.Lock()
	if sub.fn != nil {
		sub.pending = append(sub.pending, state)
	}
	sub.Unlock()
}

// pump delivers queued States.  If another goroutine is already
// pumping, that pump picks up the new work and this call returns.
func (sub *subscriber[S]) pump() {
	sub.Lock()
	if sub.busy {
		sub.Unlock()
		return
	}
	sub.busy = true
	for sub.fn != nil && 0 < len(sub.pending) {
		state := sub.pending[0]
		sub.pending = sub.pending[1:]
		fn := sub.fn
		sub.Unlock()
		fn(state)
		sub.Lock()
	}
	sub.pending = nil
	sub.busy = false
	sub.Unlock()
}

// close stops delivery, dropping anything still queued.
func (sub *subscriber[S]) close() {
	sub.Lock()
	sub.fn = nil
	sub.pending = nil
	sub.Unlock()
}
