// Package script defines dynamic feedback systems in YAML with
// JavaScript bodies.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"time"

	"github.com/Comcast/ouro/core"
	"github.com/Comcast/ouro/util"

	"github.com/jsccast/yaml"
)

// Kinds are the feedback kinds a Def can use.
var Kinds = []string{
	"feed",
	"withLatestState",
	"withLatestEvents",
	"mergingState",
	"mergingEvents",
	"lensing",
	"extracting",
	"skippingRepeated",
	"firstValueAfterNil",
	"whenBecomesTrue",
	"imperative",
}

// FeedbackDef defines one feedback in a Def.
//
// The extract source sees _.state (for state-projecting kinds) or
// _.event (for event-projecting kinds) and returns the trigger, with
// null meaning no trigger.  For "whenBecomesTrue", the extract source
// is the predicate.  The effect source sees _.trigger and calls
// _.out() to emit events ("imperative" effects see _.state and
// _.event instead).
type FeedbackDef struct {
	// Kind is one of Kinds.
	Kind string `json:"kind" yaml:"kind"`

	// Doc is optional document for this feedback.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Extract is the JavaScript source for the trigger projection.
	Extract string `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Effect is the JavaScript source for the effect.
	Effect string `json:"effect,omitempty" yaml:"effect,omitempty"`

	// Delay, when not zero, re-runs the effect source at that
	// interval until the run is canceled.  An effect source runs
	// to completion, so this property is how a scripted effect
	// can act like a ticker.
	Delay string `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Def defines a dynamic feedback system.
//
// Example (see DemoSource for the whole thing):
//
//	name: double
//	state: {}
//	reducer: |
//	  return _.event;
//	feedbacks:
//	- kind: extracting
//	  extract: |
//	    ...
//	  effect: |
//	    ...
type Def struct {
	// Name is the name of this system definition.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Doc is optional documentation.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// State is the initial state.
	State interface{} `json:"state" yaml:"state"`

	// Reducer is the JavaScript source for the reducer, which
	// sees _.state and _.event and returns the next state.  With
	// no reducer, the event just becomes the state.
	Reducer string `json:"reducer,omitempty" yaml:"reducer,omitempty"`

	// Feedbacks are this system's feedbacks, in order.
	Feedbacks []*FeedbackDef `json:"feedbacks,omitempty" yaml:"feedbacks,omitempty"`
}

// ParseDef parses and validates YAML representing a Def.
//
// Note that this package uses the YAML parser fork at
// https://github.com/jsccast/yaml, which returns
// map[string]interface{} rather than map[interface{}]interface{}, so
// a parsed Def.State survives a trip through encoding/json.
func ParseDef(bs []byte) (*Def, error) {
	var def Def
	if err := yaml.Unmarshal(bs, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDef reads a Def from a YAML file.
func LoadDef(filename string) (*Def, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseDef(bs)
}

// Validate checks that every feedback has a known kind and the
// sources that kind requires.
func (d *Def) Validate() error {
	for _, fd := range d.Feedbacks {
		known := false
		for _, kind := range Kinds {
			if fd.Kind == kind {
				known = true
				break
			}
		}
		if !known {
			return &BadKind{Def: fd}
		}
		if fd.Effect == "" {
			return &MissingSource{Def: fd, What: "effect"}
		}
		switch fd.Kind {
		case "feed", "imperative":
			if fd.Extract != "" {
				return &StraySource{Def: fd, What: "extract"}
			}
		default:
			if fd.Extract == "" {
				return &MissingSource{Def: fd, What: "extract"}
			}
		}
		if fd.Delay != "" {
			if _, err := time.ParseDuration(fd.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build compiles the Def's sources and returns the initial state,
// the reducer, and the feedbacks for a core system.
//
// The given ctx bounds every script execution the built parts make:
// cancel it and in-flight scripts are interrupted.  A reducer or
// extract script that fails is logged; a failed reducer leaves the
// state as it was, and a failed extract counts as no trigger.
func (d *Def) Build(ctx context.Context) (interface{}, core.Reducer[interface{}, interface{}], []core.Feedback[interface{}, interface{}], error) {
	initial, err := util.Canonicalize(d.State)
	if err != nil {
		return nil, nil, nil, err
	}

	name := d.Name
	if name == "" {
		name = "anonymous"
	}

	var reduce core.Reducer[interface{}, interface{}]
	if d.Reducer == "" {
		reduce = func(_, event interface{}) interface{} {
			return event
		}
	} else {
		p, err := Compile(name+".reducer", d.Reducer)
		if err != nil {
			return nil, nil, nil, err
		}
		reduce = func(state, event interface{}) interface{} {
			env := map[string]interface{}{
				"state": state,
				"event": event,
			}
			next, err := p.Exec(ctx, env, nil)
			if err != nil {
				log.Printf("script %s reducer error %s", name, err)
				return state
			}
			return next
		}
	}

	fbs := make([]core.Feedback[interface{}, interface{}], 0, len(d.Feedbacks))
	for i, fd := range d.Feedbacks {
		fb, err := d.feedback(ctx, name, i, fd)
		if err != nil {
			return nil, nil, nil, err
		}
		fbs = append(fbs, fb)
	}

	return initial, reduce, fbs, nil
}

// System builds the core system for this Def on the given executor.
func (d *Def) System(ctx context.Context, exec core.Executor) (*core.System[interface{}, interface{}], error) {
	initial, reduce, fbs, err := d.Build(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewSystem(initial, exec, reduce, fbs...), nil
}

func (d *Def) feedback(ctx context.Context, name string, i int, fd *FeedbackDef) (core.Feedback[interface{}, interface{}], error) {
	var zero core.Feedback[interface{}, interface{}]

	scriptName := fmt.Sprintf("%s.%d.%s", name, i, fd.Kind)

	var effectProg, extractProg *Program
	var err error
	if effectProg, err = Compile(scriptName+".effect", fd.Effect); err != nil {
		return zero, err
	}
	if fd.Extract != "" {
		if extractProg, err = Compile(scriptName+".extract", fd.Extract); err != nil {
			return zero, err
		}
	}

	var delay time.Duration
	if fd.Delay != "" {
		if delay, err = time.ParseDuration(fd.Delay); err != nil {
			return zero, err
		}
	}

	// The extract runs on the system's executor with either the
	// state or the event as its environment.
	extract := func(role string, x interface{}) (interface{}, bool) {
		env := map[string]interface{}{
			role: x,
		}
		v, err := extractProg.Exec(ctx, env, nil)
		if err != nil {
			log.Printf("script %s extract error %s", scriptName, err)
			return nil, false
		}
		if v == nil {
			return nil, false
		}
		return v, true
	}
	overState := func(state interface{}) (interface{}, bool) {
		return extract("state", state)
	}
	overEvent := func(event interface{}) (interface{}, bool) {
		return extract("event", event)
	}

	// The effect runs on a goroutine of its own, so its script is
	// interrupted when the run is canceled.
	effect := func(rctx context.Context, trigger interface{}, out func(interface{})) {
		for {
			env := map[string]interface{}{
				"trigger": trigger,
			}
			if _, err := effectProg.Exec(rctx, env, func(x interface{}) {
				out(x)
			}); err != nil {
				if err != Interrupted {
					log.Printf("script %s effect error %s", scriptName, err)
				}
				return
			}
			if delay <= 0 {
				return
			}
			timer := time.NewTimer(delay)
			select {
			case <-rctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}

	switch fd.Kind {
	case "feed":
		return core.FeedFunc[interface{}, interface{}](func(rctx context.Context, _ struct{}, out func(interface{})) {
			effect(rctx, nil, out)
		}), nil
	case "withLatestState":
		return core.WithLatestState[interface{}, interface{}, interface{}](overState, effect), nil
	case "withLatestEvents":
		return core.WithLatestEvents[interface{}, interface{}, interface{}](overEvent, effect), nil
	case "mergingState":
		return core.MergingState[interface{}, interface{}, interface{}](overState, effect), nil
	case "mergingEvents":
		return core.MergingEvents[interface{}, interface{}, interface{}](overEvent, effect), nil
	case "lensing":
		return core.Lensing[interface{}, interface{}, interface{}](overState, effect), nil
	case "extracting":
		return core.Extracting[interface{}, interface{}, interface{}](overEvent, effect), nil
	case "skippingRepeated":
		// Triggers here are dynamic values, which aren't
		// reliably comparable, so the repeat check compares
		// canonical JSON.
		return core.SkippingRepeated[interface{}, interface{}, string](
			func(state interface{}) (string, bool) {
				v, ok := overState(state)
				if !ok {
					return "", false
				}
				js, err := json.Marshal(&v)
				if err != nil {
					log.Printf("script %s trigger error %s", scriptName, err)
					return "", false
				}
				return string(js), true
			},
			func(rctx context.Context, js string, out func(interface{})) {
				var trigger interface{}
				if err := json.Unmarshal([]byte(js), &trigger); err != nil {
					return
				}
				effect(rctx, trigger, out)
			}), nil
	case "firstValueAfterNil":
		return core.FirstValueAfterNil[interface{}, interface{}, interface{}](overState, effect), nil
	case "whenBecomesTrue":
		pred := func(state interface{}) bool {
			v, ok := overState(state)
			return ok && truthy(v)
		}
		return core.WhenBecomesTrue[interface{}, interface{}](pred, func(rctx context.Context, _ struct{}, out func(interface{})) {
			effect(rctx, true, out)
		}), nil
	case "imperative":
		return core.Imperative[interface{}, interface{}](func(step core.Step[interface{}, interface{}], submit func(interface{})) {
			env := map[string]interface{}{
				"state": step.State,
			}
			if step.Event != nil {
				env["event"] = *step.Event
			}
			if _, err := effectProg.Exec(ctx, env, func(x interface{}) {
				submit(x)
			}); err != nil {
				log.Printf("script %s effect error %s", scriptName, err)
			}
		}), nil
	}

	return zero, &BadKind{Def: fd}
}

func truthy(x interface{}) bool {
	switch vv := x.(type) {
	case nil:
		return false
	case bool:
		return vv
	default:
		return true
	}
}
