package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Step is one beat of a System: an Event and the State that resulted
// from reducing it.
//
// The first Step a System publishes has a nil Event.  That Step
// reports the initial State, before anything has happened.  Every
// later Step carries the Event that produced its State, and the
// sequence of Steps is strictly ordered: the State in a Step is
// exactly the Reducer applied to the previous Step's State and this
// Step's Event.
type Step[S, E any] struct {
	// State is the current State as of this Step.
	State S

	// Event is what produced State, or nil for the leading Step.
	Event *E
}

func (s Step[S, E]) String() string {
	bs, err := json.Marshal(&s)
	if err != nil {
		return fmt.Sprintf("%#v", s)
	}
	return string(bs)
}

// Reducer computes the next State from the current State and one
// Event.
//
// A Reducer must be pure: deterministic, side-effect-free,
// non-blocking, and total.  It is the only code that makes new
// States.  Failure is not an option here; model trouble as ordinary
// State or Event data and let a Feedback deal with it.
type Reducer[S, E any] func(S, E) S

// Effect is a side-effecting process run on behalf of a Feedback.
//
// An Effect gets its own goroutine.  It reports findings by calling
// out, possibly many times, possibly never, and it should return
// promptly once ctx is canceled.  Events passed to out by a canceled
// run are discarded; they never reach the Reducer, even if they were
// already queued when the cancellation landed.
type Effect[T, E any] func(ctx context.Context, trigger T, out func(E))
