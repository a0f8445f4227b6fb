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

// Package main is a command-line inspector for journals written by
// cells.
//
// A journal is opened read-only, so inspecting a store never adds a
// session to it.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Comcast/ouro/sio"
	"github.com/Comcast/ouro/tools"
)

type Opts struct {
	filename string
	echo     bool
}

func main() {

	opts := &Opts{}
	flag.StringVar(&opts.filename, "f", "", "journal file to open at start")
	flag.BoolVar(&opts.echo, "e", false, "echo input")
	flag.Parse()

	if err := opts.run(os.Stdin, os.Stdout); err != nil {
		panic(err)
	}
}

func (opts *Opts) run(in io.Reader, w io.Writer) error {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		open = regexp.MustCompile("^open +(.+)")

		closeJournal = regexp.MustCompile("^close")

		sessions = regexp.MustCompile("^(sessions|ls)")

		dump = regexp.MustCompile("^dump +([-a-zA-Z0-9_.]+)")

		last = regexp.MustCompile("^last +([-a-zA-Z0-9_.]+)( +([0-9]+))?")

		errs = regexp.MustCompile("^errors +([-a-zA-Z0-9_.]+)")

		report = regexp.MustCompile("^report +([-a-zA-Z0-9_.]+)")

		html = regexp.MustCompile("^html +([-a-zA-Z0-9_.]+) +(.+)")

		save = regexp.MustCompile("^save +([-a-zA-Z0-9_.]+) +(.+)")

		debug = regexp.MustCompile("^debug(ging)? (on|off)")

		help = regexp.MustCompile("^(help|h|\\?)")

		outputPrefix = "# "

		debugging = false

		say = func(format string, args ...interface{}) {
			fmt.Fprintf(w, outputPrefix+format+"\n", args...)
		}

		protest = func(format string, args ...interface{}) {
			say("error: "+format, args...)
		}

		j *sio.Journal

		// opened requires an open journal for commands that read.
		opened = func() bool {
			if j == nil {
				protest("no journal open; see 'open FILENAME'")
				return false
			}
			return true
		}
	)

	openJournal := func(filename string) {
		if j != nil {
			j.Close(ctx)
			j = nil
		}
		candidate := &sio.Journal{
			Filename: filename,
		}
		if err := candidate.OpenRead(ctx); err != nil {
			protest("couldn't open '%s': %s", filename, err)
			return
		}
		j = candidate
		say("opened %s", filename)
	}

	if opts.filename != "" {
		openJournal(opts.filename)
	}
	defer func() {
		if j != nil {
			j.Close(ctx)
		}
	}()

	r := bufio.NewReader(in)
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		if opts.echo {
			fmt.Fprintln(w, line)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		var ss []string

		if ss = help.FindStringSubmatch(line); 0 < len(ss) {
			for _, s := range strings.Split(doc(), "\n") {
				say("%s", s)
			}
			continue
		}

		if ss = open.FindStringSubmatch(line); 0 < len(ss) {
			openJournal(ss[1])
			continue
		}

		if ss = closeJournal.FindStringSubmatch(line); 0 < len(ss) {
			if j != nil {
				j.Close(ctx)
				j = nil
			}
			continue
		}

		if ss = sessions.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			infos, err := j.Sessions(ctx)
			if err != nil {
				protest("%s", err)
				continue
			}
			if len(infos) == 0 {
				say("no sessions")
				continue
			}
			for _, info := range infos {
				say("%s  %d updates  started %s",
					info.Id, info.Updates, info.Started.Format(time.RFC3339))
			}
			continue
		}

		if ss = dump.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			err := j.Scan(ctx, ss[1], func(u *sio.Update) error {
				var js []byte
				var err error
				if debugging {
					js, err = json.MarshalIndent(u, "", "  ")
				} else {
					js, err = json.Marshal(u)
				}
				if err != nil {
					return err
				}
				say("%d. %s", u.Seq, js)
				return nil
			})
			if err != nil {
				protest("%s", err)
			}
			continue
		}

		if ss = last.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			n := 1
			if ss[3] != "" {
				if n, err = strconv.Atoi(ss[3]); err != nil {
					protest("bad count '%s'", ss[3])
					continue
				}
			}
			var acc []*sio.Update
			err := j.Scan(ctx, ss[1], func(u *sio.Update) error {
				acc = append(acc, u)
				if n < len(acc) {
					acc = acc[1:]
				}
				return nil
			})
			if err != nil {
				protest("%s", err)
				continue
			}
			for _, u := range acc {
				js, err := json.Marshal(u)
				if err != nil {
					return err // Internal error
				}
				say("%d. %s", u.Seq, js)
			}
			continue
		}

		if ss = errs.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			found := 0
			err := j.Scan(ctx, ss[1], func(u *sio.Update) error {
				if u.Err == "" {
					return nil
				}
				found++
				say("%d. %s", u.Seq, u.Err)
				return nil
			})
			if err != nil {
				protest("%s", err)
				continue
			}
			say("%d errors", found)
			continue
		}

		if ss = report.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			md, err := tools.SessionMarkdown(ctx, j, ss[1])
			if err != nil {
				protest("%s", err)
				continue
			}
			// Raw, so the markdown stays usable.
			fmt.Fprintln(w, md)
			continue
		}

		if ss = html.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			f, err := os.Create(ss[2])
			if err != nil {
				protest("creating file: %s", err)
				continue
			}
			if err = tools.RenderSessionHTML(ctx, j, ss[1], f); err != nil {
				f.Close()
				protest("%s", err)
				continue
			}
			f.Close()
			say("wrote %s", ss[2])
			continue
		}

		if ss = save.FindStringSubmatch(line); 0 < len(ss) {
			if !opened() {
				continue
			}
			var acc []*sio.Update
			err := j.Scan(ctx, ss[1], func(u *sio.Update) error {
				acc = append(acc, u)
				return nil
			})
			if err != nil {
				protest("%s", err)
				continue
			}
			js, err := json.MarshalIndent(acc, "", "  ")
			if err != nil {
				return err // Internal error
			}
			if err = ioutil.WriteFile(ss[2], js, 0644); err != nil {
				protest("writing file: %s", err)
				continue
			}
			say("wrote %d updates to %s", len(acc), ss[2])
			continue
		}

		if ss = debug.FindStringSubmatch(line); 0 < len(ss) {
			switch ss[2] {
			case "on":
				debugging = true
				say("debugging")
			case "off":
				debugging = false
				say("not debugging")
			}
			continue
		}

		protest("unsupported command: %s", line)
	}
}

func doc() string {
	return `
  open FILENAME              Open a journal file (read-only)
  close                      Close the open journal
  sessions                   List the journal's sessions
  dump SESSION               Print every update in that session
  last SESSION [N]           Print the last N (default 1) updates
  errors SESSION             Print the updates that carry errors
  report SESSION             Print the session transcript as markdown
  html SESSION FILENAME      Write the session transcript as HTML
  save SESSION FILENAME      Save the session's updates as JSON
  debug on/off               When debugging, dump indents its JSON
  help                       Show this documentation
`
}
