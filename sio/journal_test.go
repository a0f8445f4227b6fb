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
)

func TestJournal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &Journal{
		Filename: filepath.Join(t.TempDir(), "journal.db"),
		CellId:   "clerk",
	}
	if err := j.Open(ctx); err != nil {
		t.Fatal(err)
	}

	session := j.Session()
	if session == "" {
		t.Fatal("no session")
	}

	for i, state := range []string{"red", "amber", "green"} {
		u := &Update{
			Seq:   int64(i),
			At:    time.Now().UTC(),
			State: state,
		}
		if err := j.Record(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := j.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d sessions", len(infos))
	}
	if infos[0].Id != session {
		t.Fatalf("got session %s", infos[0].Id)
	}
	if infos[0].Updates != 3 {
		t.Fatalf("got %d updates", infos[0].Updates)
	}

	var states []interface{}
	err = j.Scan(ctx, session, func(u *Update) error {
		states = append(states, u.State)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{"red", "amber", "green"}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("got %#v", states)
	}

	if err := j.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestJournalSecondSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filename := filepath.Join(t.TempDir(), "journal.db")

	first := &Journal{
		Filename: filename,
	}
	if err := first.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err := first.Record(ctx, &Update{State: "once"}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatal(err)
	}

	second := &Journal{
		Filename: filename,
	}
	if err := second.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer second.Close(ctx)

	infos, err := second.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d sessions", len(infos))
	}
}

func TestJournalOpenRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filename := filepath.Join(t.TempDir(), "journal.db")

	w := &Journal{
		Filename: filename,
	}
	if err := w.Open(ctx); err != nil {
		t.Fatal(err)
	}
	session := w.Session()
	if err := w.Record(ctx, &Update{State: "kept"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}

	r := &Journal{
		Filename: filename,
	}
	if err := r.OpenRead(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Close(ctx)

	// No new session, and no writing.
	infos, err := r.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Id != session {
		t.Fatalf("got %d sessions", len(infos))
	}
	if err := r.Record(ctx, &Update{State: "denied"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestJournalClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &Journal{
		Filename: filepath.Join(t.TempDir(), "journal.db"),
	}

	// Recording to a journal that isn't open is a no-op.
	if err := j.Record(ctx, &Update{State: "lost"}); err != nil {
		t.Fatal(err)
	}

	if _, err := j.Sessions(ctx); err == nil {
		t.Fatal("expected an error")
	}
	if err := j.Scan(ctx, "na", func(*Update) error { return nil }); err == nil {
		t.Fatal("expected an error")
	}

	// Closing a closed journal is also a no-op.
	if err := j.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestJournalDoubleOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &Journal{
		Filename: filepath.Join(t.TempDir(), "journal.db"),
	}
	if err := j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer j.Close(ctx)

	if err := j.Open(ctx); err == nil {
		t.Fatal("expected an error")
	}
}

func TestJournalScanUnknown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &Journal{
		Filename: filepath.Join(t.TempDir(), "journal.db"),
	}
	if err := j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer j.Close(ctx)

	err := j.Scan(ctx, "nope", func(*Update) error { return nil })
	if err == nil {
		t.Fatal("expected an error")
	}
}
