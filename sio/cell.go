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
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Comcast/ouro/core"
	"github.com/Comcast/ouro/util"
)

// CellConf provides some basic Cell parameters.
type CellConf struct {
	// Id identifies the cell in logs and journal sessions.
	Id string

	// Initial is the cell's initial state.
	Initial interface{}

	// Reduce folds an event into the state.  When nil, the last
	// event simply becomes the state.
	Reduce core.Reducer[interface{}, interface{}]

	// Feedbacks are attached to the cell's system, in order.
	Feedbacks []core.Feedback[interface{}, interface{}]

	// Journal, if given, gets every update the cell publishes.
	Journal *Journal

	// HaltOnInputEOF makes Loop return when the couplings close
	// their done channel.
	HaltOnInputEOF bool
}

// Cell runs one dynamic system with I/O coupled via two channels (in
// and out), plus Timers and an optional Journal.
type Cell struct {
	Conf *CellConf

	// Verbose turns on logging.
	Verbose bool

	sys    *core.System[interface{}, interface{}]
	exec   *core.Queued
	timers *Timers

	// in receives all in-bound messages.
	in chan interface{}

	// out receives all out-bound updates.
	out chan *Update

	// done is closed by Couplings when its input is closed.
	done chan bool

	// queue buffers updates between step delivery and the out
	// coupling, so a slow consumer never stalls the system.
	queue *updateQueue

	// seq counts published steps.  Touched only on the cell's
	// executor.
	seq int64
}

// NewCell makes a cell with the given configuration and couplings.
//
// The coupling's IO() method is called to obtain the cell's in/out
// channels, the journal (if any) is opened, and the cell's system
// starts on an executor of its own.  Call Loop to start pumping
// input.
func NewCell(ctx context.Context, conf *CellConf, couplings Couplings) (*Cell, error) {
	in, out, done, err := couplings.IO(ctx)
	if err != nil {
		return nil, err
	}
	if conf == nil {
		conf = &CellConf{}
	}

	reduce := conf.Reduce
	if reduce == nil {
		// The cell of last resort: the event becomes the state.
		reduce = func(_, event interface{}) interface{} {
			return event
		}
	}

	c := &Cell{
		Conf:  conf,
		in:    in,
		out:   out,
		done:  done,
		queue: newUpdateQueue(),
		exec:  core.NewQueued(),
	}

	c.timers = NewTimers(func(ctx context.Context, te *TimerEntry) {
		c.Submit(te.Msg)
	})

	if conf.Journal != nil {
		if err := conf.Journal.Open(ctx); err != nil {
			c.exec.Stop()
			return nil, err
		}
	}

	// The tap sees every step, the leading one included.  It runs
	// during delivery, so it only enqueues; forward() does the
	// blocking sends.
	tap := core.Imperative[interface{}, interface{}](func(step core.Step[interface{}, interface{}], _ func(interface{})) {
		u := &Update{
			Seq:   c.seq,
			At:    time.Now().UTC(),
			State: step.State,
		}
		c.seq++
		if step.Event != nil {
			u.Event = *step.Event
		}
		c.queue.push(u)
	})

	feedbacks := append([]core.Feedback[interface{}, interface{}]{}, conf.Feedbacks...)
	feedbacks = append(feedbacks, tap)

	c.sys = core.NewSystem(conf.Initial, c.exec, reduce, feedbacks...)

	go c.forward(ctx)

	return c, nil
}

// Submit hands an event to the cell's system.
func (c *Cell) Submit(event interface{}) {
	c.sys.Submit(event)
}

// State returns the cell's current state.
func (c *Cell) State() interface{} {
	return c.sys.State()
}

// Timers exposes the cell's timers.
func (c *Cell) Timers() *Timers {
	return c.timers
}

// Logf logs if c.Verbose.
func (c *Cell) Logf(format string, args ...interface{}) {
	if !c.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Errorf emits an error update and writes a log line with "ERROR"
// prepended.
func (c *Cell) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Println("ERROR " + msg)
	c.queue.push(&Update{
		At:  time.Now().UTC(),
		Err: msg,
	})
}

// Loop starts the input processing loop in the current goroutine.
//
// Each message that arrives via the input coupling either controls
// the cell (see control) or is submitted to the system as an event.
// The loop halts when ctx.Done().
func (c *Cell) Loop(ctx context.Context) error {
	c.Logf("Cell.Loop starting")
	c.timers.Verbose = c.Verbose
	done := c.done
LOOP:
	for {
		select {
		case <-done:
			if c.Conf.HaltOnInputEOF {
				c.Logf("Cell.Loop shutting down (done)")
				break LOOP
			}
			// Input is gone, but timers can still fire.
			done = nil
		case <-ctx.Done():
			c.Logf("Cell.Loop shutting down (ctx.Done)")
			break LOOP
		case msg := <-c.in:
			if msg == nil {
				break LOOP
			}
			handled, err := c.control(ctx, msg)
			if err != nil {
				c.Errorf("Cell.Loop control %s", err)
				continue
			}
			if handled {
				continue
			}
			c.Submit(msg)
		}
	}

	c.Logf("Cell.Loop done")
	return nil
}

// control interprets cell-control messages, which currently are the
// timer operations:
//
//	{"timers":{"add":{"id":"t0","in":"3s","message":{...}}}}
//	{"timers":{"add":{"id":"c0","cron":"* * * * *","message":{...}}}}
//	{"timers":{"cancel":{"id":"t0"}}}
//
// Anything else is an event for the system.
func (c *Cell) control(ctx context.Context, msg interface{}) (bool, error) {
	m, is := msg.(map[string]interface{})
	if !is {
		return false, nil
	}
	x, have := m["timers"]
	if !have {
		return false, nil
	}
	spec, is := x.(map[string]interface{})
	if !is {
		return true, fmt.Errorf("bad timers control %s", JS(x))
	}

	if x, have := spec["add"]; have {
		var add struct {
			Id      string      `json:"id"`
			In      string      `json:"in"`
			Cron    string      `json:"cron"`
			Message interface{} `json:"message"`
		}
		if err := revive(x, &add); err != nil {
			return true, err
		}
		if add.Id == "" {
			add.Id = util.Gensym(8)
		}
		if add.Cron != "" {
			return true, c.timers.AddCron(ctx, add.Id, add.Cron, add.Message)
		}
		d, err := time.ParseDuration(add.In)
		if err != nil {
			return true, err
		}
		return true, c.timers.Add(ctx, add.Id, add.Message, d)
	}

	if x, have := spec["cancel"]; have {
		var cancel struct {
			Id string `json:"id"`
		}
		if err := revive(x, &cancel); err != nil {
			return true, err
		}
		return true, c.timers.Cancel(ctx, cancel.Id)
	}

	return true, fmt.Errorf("bad timers control %s", JS(spec))
}

// forward plays queued updates out to the coupling (and the journal,
// if any).
func (c *Cell) forward(ctx context.Context) {
	for {
		u, ok := c.queue.next()
		if !ok {
			return
		}
		if c.Conf.Journal != nil && u.Err == "" {
			if err := c.Conf.Journal.Record(ctx, u); err != nil {
				c.Logf("Cell journal error %s", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case c.out <- u:
		}
	}
}

// Shutdown disposes the cell: its system, timers, executor, and
// journal.  The out coupling sees no further updates.
func (c *Cell) Shutdown(ctx context.Context) {
	c.Logf("Cell.Shutdown")
	c.sys.Dispose()
	c.timers.Shutdown()
	c.exec.Stop()
	c.queue.close()
	if c.Conf.Journal != nil {
		if err := c.Conf.Journal.Close(ctx); err != nil {
			c.Logf("Cell journal close error %s", err)
		}
	}
}

// revive repackages a dynamic value into the given struct.
func revive(x interface{}, dst interface{}) error {
	js, err := json.Marshal(&x)
	if err != nil {
		return err
	}
	return json.Unmarshal(js, dst)
}

// updateQueue is an unbounded FIFO between the step tap, which must
// never block, and the out coupling, which may.
type updateQueue struct {
	sync.Mutex
	pending []*Update
	wake    chan struct{}
	closed  bool
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		wake: make(chan struct{}, 1),
	}
}

func (q *updateQueue) push(u *Update) {
	q.Lock()
	if q.closed {
		q.Unlock()
		return
	}
	q.pending = append(q.pending, u)
	q.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next blocks until an update is available or the queue is closed.
// A closed queue still yields whatever was pending.
func (q *updateQueue) next() (*Update, bool) {
	for {
		q.Lock()
		if 0 < len(q.pending) {
			u := q.pending[0]
			q.pending = q.pending[1:]
			q.Unlock()
			return u, true
		}
		closed := q.closed
		q.Unlock()
		if closed {
			return nil, false
		}
		<-q.wake
	}
}

func (q *updateQueue) close() {
	q.Lock()
	q.closed = true
	q.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
