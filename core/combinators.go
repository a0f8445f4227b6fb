package core

import (
	"context"
)

// Feed attaches a pre-existing external Event source.  Every value
// received from events is submitted to the System, starting with the
// System itself and lasting until disposal.  Closing events ends the
// feed without affecting the System.
//
// After disposal the feed keeps receiving so that a blocked producer
// is not stranded, but everything received is discarded.
func Feed[S, E any](events <-chan E) Feedback[S, E] {
	return Feedback[S, E]{
		name: "feed",
		kind: KindFeed,
		effect: func(ctx context.Context, _ interface{}, out func(E)) {
			for event := range events {
				out(event)
			}
		},
	}
}

// FeedFunc is Feed for a producer written as an Effect.  The run
// starts with the System and its context is canceled at disposal.
func FeedFunc[S, E any](effect Effect[struct{}, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name: "feedFunc",
		kind: KindFeed,
		effect: func(ctx context.Context, _ interface{}, out func(E)) {
			effect(ctx, struct{}{}, out)
		},
	}
}

// WithLatestState reacts to the State projection of the Step
// sequence.  Every present extraction starts a fresh effect run with
// that trigger and cancels the previous run, even when the extracted
// value repeats.  An absent extraction is ignored: whatever is
// running keeps running.
func WithLatestState[S, E, T any](extract func(S) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:    "withLatestState",
		kind:    KindWithLatest,
		extract: stateExtraction[S, E](extract),
		effect:  eraseEffect(effect),
	}
}

// WithLatestEvents is WithLatestState over the Event projection.
// Steps without an Event (the leading snapshot) are not evaluated at
// all.
func WithLatestEvents[S, E, T any](extract func(E) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:       "withLatestEvents",
		kind:       KindWithLatest,
		eventsOnly: true,
		extract:    eventExtraction[S, E](extract),
		effect:     eraseEffect(effect),
	}
}

// MergingState starts a new effect run on every present extraction
// from the State projection and cancels nothing: earlier runs keep
// going concurrently, each ending on its own or at disposal.  An
// absent extraction is ignored.
func MergingState[S, E, T any](extract func(S) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:    "mergingState",
		kind:    KindMerging,
		extract: stateExtraction[S, E](extract),
		effect:  eraseEffect(effect),
	}
}

// MergingEvents is MergingState over the Event projection.
func MergingEvents[S, E, T any](extract func(E) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:       "mergingEvents",
		kind:       KindMerging,
		eventsOnly: true,
		extract:    eventExtraction[S, E](extract),
		effect:     eraseEffect(effect),
	}
}

// Lensing focuses on the part of the State that extract exposes.
// While the extraction is present, every evaluation restarts the
// effect with the latest trigger; the moment it goes absent, the
// current run is canceled immediately.
func Lensing[S, E, T any](extract func(S) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:    "lensing",
		kind:    KindLensing,
		extract: stateExtraction[S, E](extract),
		effect:  eraseEffect(effect),
	}
}

// Extracting is Lensing over Event payloads: a present extraction
// restarts the effect, an absent one cancels it.  Steps without an
// Event are not evaluated.
func Extracting[S, E, T any](extract func(E) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:       "extracting",
		kind:       KindExtracting,
		eventsOnly: true,
		extract:    eventExtraction[S, E](extract),
		effect:     eraseEffect(effect),
	}
}

// SkippingRepeated starts its effect only when the extraction
// differs from its previous evaluation; repeating the same present
// value, or staying absent, is a no-op.  Going absent never cancels
// the current run.  A start is switch-latest: it cancels whatever
// was running.
func SkippingRepeated[S, E any, T comparable](extract func(S) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:    "skippingRepeated",
		kind:    KindSkippingRepeated,
		extract: stateExtraction[S, E](extract),
		same: func(a, b interface{}) bool {
			av, aok := a.(T)
			bv, bok := b.(T)
			return aok && bok && av == bv
		},
		effect: eraseEffect(effect),
	}
}

// FirstValueAfterNil starts its effect only on an absent-to-present
// transition of the extraction.  Further present evaluations, even
// with different values, are no-ops; going absent re-arms the edge
// without canceling the run already started.  A start cancels any
// run still alive from the previous edge.
func FirstValueAfterNil[S, E, T any](extract func(S) (T, bool), effect Effect[T, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name:    "firstValueAfterNil",
		kind:    KindEdgeTriggered,
		extract: stateExtraction[S, E](extract),
		effect:  eraseEffect(effect),
	}
}

// WhenBecomesTrue is FirstValueAfterNil for a boolean predicate: the
// effect starts when pred goes from false to true.
func WhenBecomesTrue[S, E any](pred func(S) bool, effect Effect[struct{}, E]) Feedback[S, E] {
	return Feedback[S, E]{
		name: "whenBecomesTrue",
		kind: KindEdgeTriggered,
		extract: func(step Step[S, E]) (interface{}, bool) {
			if !pred(step.State) {
				return nil, false
			}
			return struct{}{}, true
		},
		effect: eraseEffect(effect),
	}
}

// Imperative invokes fn synchronously with every raw Step, paired
// with a submit function.  What to submit, and when, is entirely up
// to fn; nothing is started or canceled for it.  Submissions made
// inside fn are queued and reduced after the current Step finishes
// delivery.
func Imperative[S, E any](fn func(step Step[S, E], submit func(E))) Feedback[S, E] {
	return Feedback[S, E]{
		name:  "imperative",
		kind:  KindImperative,
		imper: fn,
	}
}

func stateExtraction[S, E, T any](extract func(S) (T, bool)) func(Step[S, E]) (interface{}, bool) {
	return func(step Step[S, E]) (interface{}, bool) {
		t, ok := extract(step.State)
		if !ok {
			return nil, false
		}
		return t, true
	}
}

func eventExtraction[S, E, T any](extract func(E) (T, bool)) func(Step[S, E]) (interface{}, bool) {
	return func(step Step[S, E]) (interface{}, bool) {
		if nil == step.Event {
			return nil, false
		}
		t, ok := extract(*step.Event)
		if !ok {
			return nil, false
		}
		return t, true
	}
}

func eraseEffect[T, E any](effect Effect[T, E]) func(context.Context, interface{}, func(E)) {
	return func(ctx context.Context, trigger interface{}, out func(E)) {
		t, _ := trigger.(T)
		effect(ctx, t, out)
	}
}
