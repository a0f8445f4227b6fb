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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Comcast/ouro/util"
)

// Stdio is a Couplings based on (say) stdin and stdout.
type Stdio struct {
	// In is the reader that provides in-bound messages, one JSON
	// value per line.
	In io.Reader

	// Out is where out-bound updates go.
	Out io.Writer

	// ShellExpand enables shell expressions in input lines via
	// '<<EXPR>>' syntax.
	ShellExpand bool

	// Timestamps, when true, prepends a timestamp to every line
	// written.
	Timestamps bool

	// EchoInput, when true, writes input lines to Out.
	EchoInput bool

	// Tags, when true, prepends each output line with what the
	// line represents.
	Tags bool

	// PadTags right-pads tags to a uniform width.
	PadTags bool

	// PrintUpdates, when true, writes whole updates rather than
	// just their states.
	PrintUpdates bool

	// InputEOF, if given, is closed when In is exhausted.
	InputEOF chan bool

	// WG, if given, is used to wait for pending writes during
	// Stop.
	WG *sync.WaitGroup

	mu  sync.Mutex
	in  chan interface{}
	out chan *Update
}

// NewStdio makes a Stdio on os.Stdin and os.Stdout.
func NewStdio(shellExpand bool) *Stdio {
	return &Stdio{
		In:          os.Stdin,
		Out:         os.Stdout,
		ShellExpand: shellExpand,
		InputEOF:    make(chan bool),
		WG:          &sync.WaitGroup{},
	}
}

// Start doesn't do anything.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

// Stop waits for pending writes (if s.WG is given).
func (s *Stdio) Stop(ctx context.Context) error {
	if s.WG != nil {
		s.WG.Wait()
	}
	return nil
}

// printf writes one tagged line to s.Out.
func (s *Stdio) printf(tag string, format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if s.Tags {
		if s.PadTags {
			tag = fmt.Sprintf("%-8s", tag)
		}
		line = tag + " " + line
	}
	if s.Timestamps {
		line = util.Timestamp() + " " + line
	}
	s.mu.Lock()
	fmt.Fprintln(s.Out, line)
	s.mu.Unlock()
}

// IO returns the in/out channels backed by s.In and s.Out.
func (s *Stdio) IO(ctx context.Context) (chan interface{}, chan *Update, chan bool, error) {
	s.in = make(chan interface{})
	s.out = make(chan *Update)
	done := make(chan bool)

	go func() {
		sc := bufio.NewScanner(s.In)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	LOOP:
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if line == "quit" {
				break LOOP
			}
			if s.EchoInput {
				s.printf("input", "%s", line)
			}
			if s.ShellExpand {
				expanded, err := ShellExpand(line)
				if err != nil {
					s.printf("error", "expansion: %s", err)
					continue
				}
				line = expanded
			}
			var msg interface{}
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				s.printf("error", "parse: %s", err)
				continue
			}
			select {
			case <-ctx.Done():
				break LOOP
			case s.in <- msg:
			}
		}
		close(done)
		if s.InputEOF != nil {
			close(s.InputEOF)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-s.out:
				if u == nil {
					return
				}
				if s.WG != nil {
					s.WG.Add(1)
				}
				switch {
				case u.Err != "":
					s.printf("error", "%s", u.Err)
				case s.PrintUpdates:
					s.printf("update", "%s", JS(u))
				default:
					s.printf("state", "%s", JS(u.State))
				}
				if s.WG != nil {
					s.WG.Done()
				}
			}
		}
	}()

	return s.in, s.out, done, nil
}
