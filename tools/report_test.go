package tools

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/ouro/sio"
)

// fixtureJournal records a few updates and returns the journal
// (still open) and its session id.
func fixtureJournal(t *testing.T, ctx context.Context) (*sio.Journal, string) {
	j := &sio.Journal{
		Filename: filepath.Join(t.TempDir(), "journal.db"),
		CellId:   "demo",
	}
	if err := j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		j.Close(ctx)
	})

	updates := []*sio.Update{
		{
			Seq:   0,
			At:    time.Now().UTC(),
			State: map[string]interface{}{},
		},
		{
			Seq:   1,
			At:    time.Now().UTC(),
			Event: map[string]interface{}{"double": 10},
			State: map[string]interface{}{"double": 10},
		},
		{
			Seq:   2,
			At:    time.Now().UTC(),
			Event: map[string]interface{}{"doubled": 20},
			State: map[string]interface{}{"doubled": 20},
		},
		{
			At:  time.Now().UTC(),
			Err: "something bad",
		},
	}
	for _, u := range updates {
		if err := j.Record(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	return j, j.Session()
}

func TestSessionMarkdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, session := fixtureJournal(t, ctx)

	mark, err := SessionMarkdown(ctx, j, session)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"# Session " + session,
		"## 1 at ",
		"\"double\": 10",
		"\"doubled\": 20",
		"Error: `something bad`",
	} {
		if !strings.Contains(mark, want) {
			t.Fatalf("no %q in\n%s", want, mark)
		}
	}
}

func TestSessionMarkdownUnknown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, _ := fixtureJournal(t, ctx)

	if _, err := SessionMarkdown(ctx, j, "nope"); err == nil {
		t.Fatal("expected an error for an unknown session")
	}
}

func TestRenderSessionHTML(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, session := fixtureJournal(t, ctx)

	var buf bytes.Buffer
	if err := RenderSessionHTML(ctx, j, session, &buf); err != nil {
		t.Fatal(err)
	}
	html := buf.String()

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Session " + session + "</title>",
		"<h1",
		"<code",
		"doubled",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("no %q in\n%s", want, html)
		}
	}
}
