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

package core

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

// tally counts effect lifecycle activity across goroutines.
type tally struct {
	sync.Mutex
	spawned []string
	killed  int
}

func (y *tally) spawn(trigger string) {
	y.Lock()
	y.spawned = append(y.spawned, trigger)
	y.Unlock()
}

func (y *tally) kill() {
	y.Lock()
	y.killed++
	y.Unlock()
}

func (y *tally) counts() (int, int) {
	y.Lock()
	defer y.Unlock()
	return len(y.spawned), y.killed
}

func (y *tally) triggers() []string {
	y.Lock()
	defer y.Unlock()
	triggers := make([]string, len(y.spawned))
	copy(triggers, y.spawned)
	return triggers
}

// blocker is an effect that records its trigger and then waits for
// cancellation.
func (y *tally) blocker() func(context.Context, string, func(string)) {
	return func(ctx context.Context, trigger string, out func(string)) {
		y.spawn(trigger)
		<-ctx.Done()
		y.kill()
	}
}

func (y *tally) waitCounts(t *testing.T, spawned, killed int) {
	t.Helper()
	waitFor(t, "effect lifecycle counts", func() bool {
		s, k := y.counts()
		return s == spawned && k == killed
	})
}

func TestLensingSwitchLatest(t *testing.T) {
	var (
		mu        sync.Mutex
		states    []string
		disposals = map[string]int{}
		gates     = map[string]chan bool{
			"a": make(chan bool),
			"b": make(chan bool),
			"c": make(chan bool),
		}
	)

	keys := map[string]bool{"a": true, "b": true, "c": true}

	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		Lensing(
			func(state string) (string, bool) {
				return state, keys[state]
			},
			func(ctx context.Context, key string, out func(string)) {
				go func() {
					<-ctx.Done()
					mu.Lock()
					disposals[key]++
					mu.Unlock()
				}()
				select {
				case <-gates[key]:
				case <-ctx.Done():
					return
				}
				out("1-" + key)
				out("2-" + key)
				out("3-" + key)
			}))
	defer sys.Dispose()

	sys.Subscribe(func(state string) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	sys.Submit("a")
	sys.Submit("b")
	sys.Submit("c")

	// c's run gets to emit.  Its first event drives the lens
	// absent, which cancels the run, so the rest of its output
	// must be dropped even though it was already emitted.
	close(gates["c"])

	waitFor(t, "each run to be disposed once", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return disposals["a"] == 1 && disposals["b"] == 1 && disposals["c"] == 1
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"", "a", "b", "c", "1-c"}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states %v, wanted %v", states, want)
	}
}

func TestMergingIndependence(t *testing.T) {
	var (
		seen      record[string]
		mu        sync.Mutex
		disposals = map[string]int{}
		gates     = map[string]chan bool{
			"A": make(chan bool),
			"B": make(chan bool),
		}
	)

	keys := map[string]bool{"A": true, "B": true}

	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		MergingState(
			func(state string) (string, bool) {
				return state, keys[state]
			},
			func(ctx context.Context, key string, out func(string)) {
				go func() {
					<-ctx.Done()
					mu.Lock()
					disposals[key]++
					mu.Unlock()
				}()
				<-gates[key]
				out(key + "1")
				out(key + "2")
				out(key + "3")
			}))

	sys.Subscribe(seen.add)

	sys.Submit("A")
	sys.Submit("B")

	released := func(key string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return disposals[key] == 1
		}
	}

	close(gates["A"])
	waitFor(t, "A's run", released("A"))
	close(gates["B"])
	waitFor(t, "B's run", released("B"))

	want := []string{"", "A", "B", "A1", "A2", "A3", "B1", "B2", "B3"}
	if got := seen.snap(); !reflect.DeepEqual(got, want) {
		t.Fatalf("states %v, wanted %v", got, want)
	}

	// Disposing now has no runs left to release.
	sys.Dispose()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if disposals["A"] != 1 || disposals["B"] != 1 {
		t.Fatalf("disposals %v", disposals)
	}
}

func TestWithLatestRestartsOnRepeat(t *testing.T) {
	var y tally
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		WithLatestState(
			func(state string) (string, bool) {
				if state == "skip" {
					return "", false
				}
				return "t", true
			},
			y.blocker()))

	// The leading step's evaluation was present, so one run is
	// already going.
	y.waitCounts(t, 1, 0)

	sys.Submit("x")
	y.waitCounts(t, 2, 1)

	// Same trigger value again: still a restart.
	sys.Submit("x")
	y.waitCounts(t, 3, 2)

	// Absent: ignored, the run stays up.
	sys.Submit("skip")
	time.Sleep(20 * time.Millisecond)
	y.waitCounts(t, 3, 2)

	sys.Dispose()
	y.waitCounts(t, 3, 3)
}

func TestWithLatestPassesLatestTrigger(t *testing.T) {
	var y tally
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		WithLatestState(
			func(state string) (string, bool) {
				return state, state != ""
			},
			y.blocker()))
	defer sys.Dispose()

	sys.Submit("first")
	y.waitCounts(t, 1, 0)
	sys.Submit("second")
	y.waitCounts(t, 2, 1)

	if got := y.triggers(); got[len(got)-1] != "second" {
		t.Fatalf("triggers %v", got)
	}
}

func TestSkippingRepeated(t *testing.T) {
	var y tally
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		SkippingRepeated(
			func(state string) (string, bool) {
				if state == "" || state == "off" {
					return "", false
				}
				return state, true
			},
			y.blocker()))

	sys.Submit("x")
	y.waitCounts(t, 1, 0)

	// Repeat: no change in the evaluation, so no restart.
	sys.Submit("x")
	time.Sleep(20 * time.Millisecond)
	y.waitCounts(t, 1, 0)

	sys.Submit("y")
	y.waitCounts(t, 2, 1)

	// Absent is a change of evaluation but not a cancellation.
	sys.Submit("off")
	time.Sleep(20 * time.Millisecond)
	y.waitCounts(t, 2, 1)

	// Present again after absent: a change, so a restart.
	sys.Submit("y")
	y.waitCounts(t, 3, 2)

	sys.Dispose()
	y.waitCounts(t, 3, 3)

	if want := []string{"x", "y", "y"}; !reflect.DeepEqual(y.triggers(), want) {
		t.Fatalf("triggers %v, wanted %v", y.triggers(), want)
	}
}

func TestFirstValueAfterNil(t *testing.T) {
	var y tally
	on := map[string]bool{"on": true, "go": true}
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		FirstValueAfterNil(
			func(state string) (string, bool) {
				return state, on[state]
			},
			y.blocker()))

	sys.Submit("on")
	y.waitCounts(t, 1, 0)

	// Present to present is not an edge, even with a new value.
	sys.Submit("go")
	time.Sleep(20 * time.Millisecond)
	y.waitCounts(t, 1, 0)

	// Absent re-arms without touching the running effect.
	sys.Submit("off")
	time.Sleep(20 * time.Millisecond)
	y.waitCounts(t, 1, 0)

	sys.Submit("go")
	y.waitCounts(t, 2, 1)

	sys.Dispose()
	y.waitCounts(t, 2, 2)

	if want := []string{"on", "go"}; !reflect.DeepEqual(y.triggers(), want) {
		t.Fatalf("triggers %v, wanted %v", y.triggers(), want)
	}
}

func TestWhenBecomesTrue(t *testing.T) {
	var mu sync.Mutex
	var spawned, killed int
	sys := NewSystem(0, Immediate{},
		func(state, event int) int {
			return state + event
		},
		WhenBecomesTrue(
			func(state int) bool {
				return 3 <= state
			},
			func(ctx context.Context, _ struct{}, out func(int)) {
				mu.Lock()
				spawned++
				mu.Unlock()
				<-ctx.Done()
				mu.Lock()
				killed++
				mu.Unlock()
			}))

	counts := func(s, k int) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return spawned == s && killed == k
		}
	}

	sys.Submit(3)
	waitFor(t, "the rising edge", counts(1, 0))

	sys.Submit(1)
	time.Sleep(20 * time.Millisecond)
	waitFor(t, "no spurious restart", counts(1, 0))

	sys.Submit(-4)
	sys.Submit(5)
	waitFor(t, "the second edge", counts(2, 1))

	sys.Dispose()
	waitFor(t, "disposal", counts(2, 2))
}

func TestExtractingCancelsOnAbsent(t *testing.T) {
	var y tally
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		Extracting[string, string, string](
			func(event string) (string, bool) {
				if strings.HasPrefix(event, "job:") {
					return strings.TrimPrefix(event, "job:"), true
				}
				return "", false
			},
			y.blocker()))

	sys.Submit("job:a")
	y.waitCounts(t, 1, 0)

	sys.Submit("job:b")
	y.waitCounts(t, 2, 1)

	// Absent here means cancel.
	sys.Submit("cancel")
	y.waitCounts(t, 2, 2)

	// Nothing left to cancel.
	sys.Submit("cancel")
	time.Sleep(20 * time.Millisecond)
	y.waitCounts(t, 2, 2)

	sys.Dispose()
	y.waitCounts(t, 2, 2)

	if want := []string{"a", "b"}; !reflect.DeepEqual(y.triggers(), want) {
		t.Fatalf("triggers %v, wanted %v", y.triggers(), want)
	}
}

func TestMergingEvents(t *testing.T) {
	var y tally
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		MergingEvents[string, string, string](
			func(event string) (string, bool) {
				return event, event == "go"
			},
			y.blocker()))

	sys.Submit("go")
	sys.Submit("go")
	y.waitCounts(t, 2, 0)

	sys.Dispose()
	y.waitCounts(t, 2, 2)
}

func TestFeedSourceCompletion(t *testing.T) {
	events := make(chan string, 1)
	events <- "x"
	close(events)

	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		Feed[string, string](events))
	defer sys.Dispose()

	waitFor(t, "the fed event", func() bool {
		return sys.State() == "x"
	})

	// The source ran dry.  The system itself is unaffected.
	sys.Submit("y")
	if got := sys.State(); got != "y" {
		t.Fatalf("got %q", got)
	}
}

func TestCompletedEffectRestarts(t *testing.T) {
	var mu sync.Mutex
	var runs int
	sys := NewSystem("", Immediate{},
		func(state, event string) string {
			return event
		},
		WithLatestState(
			func(state string) (string, bool) {
				return state, state == "go"
			},
			func(ctx context.Context, _ string, out func(string)) {
				mu.Lock()
				runs++
				mu.Unlock()
				out("done")
			}))
	defer sys.Dispose()

	ran := func(n int) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return runs == n && sys.State() == "done"
		}
	}

	sys.Submit("go")
	waitFor(t, "the first run", ran(1))

	// A run that returned on its own is still eligible to start
	// again on the next trigger.
	sys.Submit("go")
	waitFor(t, "the second run", ran(2))
}

func TestCompletionKeepsQueuedEvents(t *testing.T) {
	q := NewQueued()
	defer q.Stop()

	var seen record[string]
	sys := NewSystem("", q,
		func(state, event string) string {
			return event
		},
		WithLatestState(
			func(state string) (string, bool) {
				return state, state == "go"
			},
			func(ctx context.Context, _ string, out func(string)) {
				// Return right after emitting.  The run is
				// over, but its events were not cancelled and
				// must still arrive.
				out("t1")
				out("t2")
			}))
	defer sys.Dispose()

	sys.Subscribe(seen.add)
	sys.Submit("go")

	waitFor(t, "the trailing events", func() bool {
		return sys.State() == "t2"
	})

	want := []string{"", "go", "t1", "t2"}
	if got := seen.snap(); !reflect.DeepEqual(got, want) {
		t.Fatalf("states %v, wanted %v", got, want)
	}
}
