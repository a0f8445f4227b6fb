/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package expect is a tool for testing system definitions.
//
// You construct a Session, which has inputs and expected outputs.
// Then run the session against a live cell to see if the expected
// outputs actually appeared.
//
// The session talks to the cell in-process via a Harness, which is
// just a sio.Couplings over plain channels.  Updates that match
// nothing in the current output set are discarded.
//
// This package also has support for delays, timeouts, and other
// time-driven behavior.
//
// See ../../cmd/ouroexpect for command-line use.
package expect

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"reflect"
	"time"

	"github.com/Comcast/ouro/sio"
	"github.com/Comcast/ouro/util"

	"github.com/jsccast/yaml"
)

// Output is a specification for an update that's expected.
//
// At least one of Event and State must be given.  An update matches
// when every given part equals the update's part (compared as
// canonical JSON).
type Output struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Event, if given, must equal the update's event.
	Event interface{} `json:"event,omitempty" yaml:"event,omitempty"`

	// State, if given, must equal the update's state.
	State interface{} `json:"state,omitempty" yaml:"state,omitempty"`

	// Inverted means that a matching update isn't desired!
	Inverted bool `json:"inverted,omitempty" yaml:"inverted,omitempty"`

	// happened is written during a run.
	happened bool
}

func (o *Output) matches(u *sio.Update) bool {
	if o.Event == nil && o.State == nil {
		return false
	}
	if o.Event != nil {
		if u.Event == nil || !canonEqual(o.Event, u.Event) {
			return false
		}
	}
	if o.State != nil {
		if !canonEqual(o.State, u.State) {
			return false
		}
	}
	return true
}

func canonEqual(a, b interface{}) bool {
	x, err := util.Canonicalize(a)
	if err != nil {
		return false
	}
	y, err := util.Canonicalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}

// IO is a package of input messages and required output update
// specifications.
type IO struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// WaitBefore is the time to wait before sending the first
	// message.
	WaitBefore time.Duration `json:"waitBefore,omitempty" yaml:"waitBefore,omitempty"`

	// WaitBetween is the time to wait between sending messages.
	WaitBetween time.Duration `json:"waitBetween,omitempty" yaml:"waitBetween,omitempty"`

	// Inputs are the messages to send.
	Inputs []interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// WaitAfter is the time to wait after sending the last
	// message.  Inverted outputs can still trip during this
	// window.
	WaitAfter time.Duration `json:"waitAfter,omitempty" yaml:"waitAfter,omitempty"`

	// OutputSet is the set (not a list) of outputs to verify.
	OutputSet []*Output `json:"outputSet,omitempty" yaml:"outputSet,omitempty"`

	// Timeout is the optional timeout for this set.
	// Session.DefaultTimeout is the default value.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Session is mostly a sequence of IOs.
type Session struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// IOs is the sequence of IOs that this session will run.
	IOs []*IO `json:"ios" yaml:"ios"`

	// DefaultTimeout is the default timeout for each IO.  Zero
	// means ten seconds.
	DefaultTimeout time.Duration `json:"defaultTimeout,omitempty" yaml:"defaultTimeout,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// ParseSession parses and checks YAML representing a Session.
func ParseSession(bs []byte) (*Session, error) {
	var s Session
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return nil, err
	}
	for i, iop := range s.IOs {
		for _, o := range iop.OutputSet {
			if o.Event == nil && o.State == nil {
				return nil, fmt.Errorf("an output in IO %d needs an event or a state", i)
			}
		}
	}
	return &s, nil
}

// LoadSession reads a Session from a YAML file.
func LoadSession(filename string) (*Session, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseSession(bs)
}

// Harness is a sio.Couplings over plain channels, for driving a cell
// from a Session.
type Harness struct {
	In   chan interface{}
	Out  chan *sio.Update
	Done chan bool
}

func NewHarness() *Harness {
	return &Harness{
		In:   make(chan interface{}),
		Out:  make(chan *sio.Update, 1024),
		Done: make(chan bool),
	}
}

func (h *Harness) Start(ctx context.Context) error {
	return nil
}

func (h *Harness) Stop(ctx context.Context) error {
	return nil
}

func (h *Harness) IO(ctx context.Context) (chan interface{}, chan *sio.Update, chan bool, error) {
	return h.In, h.Out, h.Done, nil
}

// Unhappy occurs when an IO times out with unmatched outputs.
type Unhappy struct {
	IO *IO
}

func (e *Unhappy) Error() string {
	acc := "timeout with unmatched outputs:"
	for _, o := range e.IO.OutputSet {
		if o.happened || o.Inverted {
			continue
		}
		acc += " " + sio.JShort(o)
	}
	return acc
}

// Surprise occurs when an update matches an Inverted output.
type Surprise struct {
	Output *Output
	Update *sio.Update
}

func (e *Surprise) Error() string {
	return "unwanted update " + sio.JShort(e.Update)
}

// Run processes all the IOs in the Session, sending inputs to the
// harness and watching its updates.
//
// The cell on the other side of the harness should already be
// Loop()ing.
func (s *Session) Run(ctx context.Context, h *Harness) error {
	for _, iop := range s.IOs {
		if err := s.runIO(ctx, h, iop); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) runIO(ctx context.Context, h *Harness, iop *IO) error {
	timeout := iop.Timeout
	if timeout == 0 {
		timeout = s.DefaultTimeout
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	need := 0
	for _, o := range iop.OutputSet {
		o.happened = false
		if !o.Inverted {
			need++
		}
	}

	sent := make(chan error, 1)
	go func() {
		s.pause("waitBefore", iop.WaitBefore)
		for i, input := range iop.Inputs {
			if 0 < i {
				s.pause("waitBetween", iop.WaitBetween)
			}
			if s.Verbose {
				log.Printf("expect sending %s", sio.JS(input))
			}
			select {
			case <-ctx.Done():
				sent <- ctx.Err()
				return
			case h.In <- input:
			}
		}
		s.pause("waitAfter", iop.WaitAfter)
		sent <- nil
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	sending := true
	for sending || 0 < need {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return &Unhappy{IO: iop}
		case err := <-sent:
			if err != nil {
				return err
			}
			sending = false
		case u := <-h.Out:
			if s.Verbose {
				log.Printf("expect saw %s", sio.JS(u))
			}
			for _, o := range iop.OutputSet {
				if o.happened {
					continue
				}
				if !o.matches(u) {
					continue
				}
				if o.Inverted {
					return &Surprise{Output: o, Update: u}
				}
				o.happened = true
				need--
			}
		}
	}

	return nil
}

func (s *Session) pause(why string, d time.Duration) {
	if 0 < d {
		if s.Verbose {
			log.Printf("pause %s %s", why, d)
		}
		time.Sleep(d)
	}
}
