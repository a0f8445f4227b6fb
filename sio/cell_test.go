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
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Comcast/ouro/util/testutil"
)

// chanCouplings is a Couplings backed by plain channels, for tests.
type chanCouplings struct {
	in   chan interface{}
	out  chan *Update
	done chan bool
}

func newChanCouplings() *chanCouplings {
	return &chanCouplings{
		in:   make(chan interface{}),
		out:  make(chan *Update, 1024),
		done: make(chan bool),
	}
}

func (c *chanCouplings) Start(ctx context.Context) error {
	return nil
}

func (c *chanCouplings) Stop(ctx context.Context) error {
	return nil
}

func (c *chanCouplings) IO(ctx context.Context) (chan interface{}, chan *Update, chan bool, error) {
	return c.in, c.out, c.done, nil
}

func readUpdate(t *testing.T, out chan *Update) *Update {
	t.Helper()
	select {
	case u := <-out:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for an update")
		return nil
	}
}

// readUntil reads updates until pred likes one.
func readUntil(t *testing.T, out chan *Update, pred func(*Update) bool) *Update {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-out:
			if pred(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timeout waiting for an update")
			return nil
		}
	}
}

func TestCellLeadingUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{
		Id:      "genesis",
		Initial: "void",
	}, cc)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown(ctx)

	u := readUpdate(t, cc.out)
	if u.Seq != 0 {
		t.Fatalf("leading seq %d", u.Seq)
	}
	if u.Event != nil {
		t.Fatalf("leading event %s", JS(u.Event))
	}
	if u.State != "void" {
		t.Fatalf("leading state %s", JS(u.State))
	}
}

func TestCellLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{
		Initial: []interface{}{},
		Reduce: func(state, event interface{}) interface{} {
			acc, _ := state.([]interface{})
			return append(acc, event)
		},
	}, cc)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown(ctx)
	go c.Loop(ctx)

	cc.in <- testutil.Dwimjs(`{"n":1}`)
	cc.in <- testutil.Dwimjs(`{"n":2}`)

	u := readUntil(t, cc.out, func(u *Update) bool {
		return u.Seq == 2
	})

	want := testutil.Dwimjs(`[{"n":1},{"n":2}]`)
	if !reflect.DeepEqual(u.State, want) {
		t.Fatalf("got %s, wanted %s", JS(u.State), JS(want))
	}
	if !reflect.DeepEqual(u.Event, testutil.Dwimjs(`{"n":2}`)) {
		t.Fatalf("got event %s", JS(u.Event))
	}
}

func TestCellTimersControl(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{}, cc)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown(ctx)
	go c.Loop(ctx)

	cc.in <- testutil.Dwimjs(`{"timers":{"add":{"id":"t0","in":"10ms","message":{"tick":true}}}}`)

	u := readUntil(t, cc.out, func(u *Update) bool {
		return reflect.DeepEqual(u.Event, testutil.Dwimjs(`{"tick":true}`))
	})
	if !reflect.DeepEqual(u.State, testutil.Dwimjs(`{"tick":true}`)) {
		t.Fatalf("got state %s", JS(u.State))
	}

	// Canceling a timer that doesn't exist is an error, which
	// should come back as an Err update.
	cc.in <- testutil.Dwimjs(`{"timers":{"cancel":{"id":"never"}}}`)
	readUntil(t, cc.out, func(u *Update) bool {
		return u.Err != ""
	})
}

func TestCellBadControl(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{}, cc)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown(ctx)
	go c.Loop(ctx)

	cc.in <- testutil.Dwimjs(`{"timers":{"launch":{"id":"t0"}}}`)
	readUntil(t, cc.out, func(u *Update) bool {
		return u.Err != ""
	})
}

func TestCellHaltOnInputEOF(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{
		HaltOnInputEOF: true,
	}, cc)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown(ctx)

	looped := make(chan bool)
	go func() {
		c.Loop(ctx)
		close(looped)
	}()

	close(cc.done)

	select {
	case <-looped:
	case <-time.After(5 * time.Second):
		t.Fatal("Loop didn't halt on input EOF")
	}
}

func TestCellInputEOFKeepsTimers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{}, cc)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown(ctx)
	go c.Loop(ctx)

	close(cc.done)

	// The input is gone, but the cell should still be running.
	if err := c.Timers().Add(ctx, "t0", "tick", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	readUntil(t, cc.out, func(u *Update) bool {
		return reflect.DeepEqual(u.Event, "tick")
	})
}

func TestCellJournal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filename := filepath.Join(t.TempDir(), "cell.db")

	cc := newChanCouplings()
	c, err := NewCell(ctx, &CellConf{
		Id:      "scribe",
		Initial: "",
		Journal: &Journal{
			Filename: filename,
			CellId:   "scribe",
		},
	}, cc)
	if err != nil {
		t.Fatal(err)
	}
	go c.Loop(ctx)

	session := c.Conf.Journal.Session()
	if session == "" {
		t.Fatal("no journal session")
	}

	cc.in <- "one"
	cc.in <- "two"

	// An update's journal record is written before the update is
	// forwarded, so reading seq 2 here means all three records
	// are on disk.
	readUntil(t, cc.out, func(u *Update) bool {
		return u.Seq == 2
	})

	c.Shutdown(ctx)

	j := &Journal{
		Filename: filename,
	}
	if err := j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer j.Close(ctx)

	var states []interface{}
	err = j.Scan(ctx, session, func(u *Update) error {
		states = append(states, u.State)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{"", "one", "two"}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("got %s, wanted %s", JS(states), JS(want))
	}

	infos, err := j.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d sessions", len(infos))
	}
	for _, info := range infos {
		if info.Id == session && info.Updates != 3 {
			t.Fatalf("session %s has %d updates", info.Id, info.Updates)
		}
	}
}
