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
	"bytes"
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/ouro/util/testutil"
)

// syncBuffer is a locked bytes.Buffer, since Stdio writes from its
// own goroutine.
type syncBuffer struct {
	sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.Lock()
	defer b.Unlock()
	return b.buf.String()
}

func waitOutput(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(b.String(), want) {
		if deadline.Before(time.Now()) {
			t.Fatalf("never saw %q in %q", want, b.String())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStdioInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := `
# A comment, then a blank line, then messages.

{"likes":"tacos"}
this is not JSON
{"wants":"chips"}
`

	b := &syncBuffer{}
	s := &Stdio{
		In:       strings.NewReader(input),
		Out:      b,
		InputEOF: make(chan bool),
	}
	in, _, done, err := s.IO(ctx)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{`{"likes":"tacos"}`, `{"wants":"chips"}`} {
		select {
		case msg := <-in:
			if !reflect.DeepEqual(msg, testutil.Dwimjs(want)) {
				t.Fatalf("got %s, wanted %s", JS(msg), want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("done never closed")
	}
	select {
	case <-s.InputEOF:
	case <-time.After(5 * time.Second):
		t.Fatal("InputEOF never closed")
	}

	// The non-JSON line should have been reported, not forwarded.
	waitOutput(t, b, "parse:")
}

func TestStdioQuit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Stdio{
		In:  strings.NewReader("quit\n{\"never\":\"seen\"}\n"),
		Out: &syncBuffer{},
	}
	_, _, done, err := s.IO(ctx)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("done never closed")
	}
}

func TestStdioOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	b := &syncBuffer{}
	s := &Stdio{
		In:   strings.NewReader(""),
		Out:  b,
		Tags: true,
		WG:   &wg,
	}
	_, out, _, err := s.IO(ctx)
	if err != nil {
		t.Fatal(err)
	}

	out <- &Update{
		Seq:   0,
		State: map[string]interface{}{"likes": "tacos"},
	}
	waitOutput(t, b, `state {"likes":"tacos"}`)

	out <- &Update{
		Err: "something bad",
	}
	waitOutput(t, b, "error something bad")

	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestStdioPrintUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &syncBuffer{}
	s := &Stdio{
		In:           strings.NewReader(""),
		Out:          b,
		PrintUpdates: true,
	}
	_, out, _, err := s.IO(ctx)
	if err != nil {
		t.Fatal(err)
	}

	out <- &Update{
		Seq:   3,
		State: "here",
	}
	waitOutput(t, b, `"seq":3`)
	waitOutput(t, b, `"state":"here"`)
}

func TestStdioShellExpand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Stdio{
		In:          strings.NewReader(`{"said":"<<printf hello>>"}` + "\n"),
		Out:         &syncBuffer{},
		ShellExpand: true,
	}
	in, _, _, err := s.IO(ctx)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-in:
		want := testutil.Dwimjs(`{"said":"hello"}`)
		if !reflect.DeepEqual(msg, want) {
			t.Fatalf("got %s", JS(msg))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for input")
	}
}
