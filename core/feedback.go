package core

import (
	"context"
)

//go:generate stringer -type=Kind
//go:generate jsonenums -type=Kind

// Kind is a Feedback's lifecycle policy: when an effect run starts
// and what happens to the previous run when one does.
type Kind int

const (
	// KindFeed runs its effect for the life of the System.
	KindFeed Kind = iota

	// KindWithLatest restarts on every present trigger, canceling
	// the previous run.  An absent trigger changes nothing.
	KindWithLatest

	// KindMerging starts a new concurrent run on every present
	// trigger and never cancels the old ones.
	KindMerging

	// KindLensing restarts on every present trigger and cancels
	// the current run as soon as the trigger goes absent.
	KindLensing

	// KindExtracting is KindLensing over the Event projection.
	KindExtracting

	// KindSkippingRepeated restarts only when the trigger differs
	// from its previous evaluation.  An absent trigger leaves the
	// current run alone.
	KindSkippingRepeated

	// KindEdgeTriggered starts only on an absent-to-present
	// transition.  Staying present is a no-op, and going absent
	// re-arms the edge without canceling anything.
	KindEdgeTriggered

	// KindImperative is the manual escape hatch: a callback sees
	// every raw Step and decides, synchronously, what to submit.
	KindImperative
)

// Feedback is a declarative side-effect process attached to a
// System.  Build Feedbacks with the factory functions in this
// package; the zero Feedback is useless.
//
// A Feedback is a value describing a projection of the Step sequence,
// an extraction from that projection to an optional trigger, an
// Effect to run, and a Kind governing the effect's lifecycle.  One
// engine inside the System interprets that description; there is no
// dispatch beyond the Kind.
type Feedback[S, E any] struct {
	name string
	kind Kind

	// eventsOnly restricts evaluation to Steps that carry an
	// Event, which excludes the leading snapshot Step.
	eventsOnly bool

	// extract projects a Step to an optional trigger.
	extract func(Step[S, E]) (interface{}, bool)

	// same reports trigger equality, for KindSkippingRepeated.
	same func(a, b interface{}) bool

	// effect runs on a goroutine of its own for each started run.
	effect func(context.Context, interface{}, func(E))

	// imper is the callback for KindImperative.
	imper func(Step[S, E], func(E))
}

// Kind returns the Feedback's lifecycle policy.
func (f Feedback[S, E]) Kind() Kind {
	return f.kind
}

// Name returns the Feedback's name, which is the factory name unless
// Named() gave it a better one.
func (f Feedback[S, E]) Name() string {
	return f.name
}

// Named returns a copy of f carrying the given name.  The name
// appears in logs and diagnostic output and has no other effect.
func (f Feedback[S, E]) Named(name string) Feedback[S, E] {
	f.name = name
	return f
}

func (f Feedback[S, E]) String() string {
	return f.name
}
