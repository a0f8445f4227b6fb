package tools

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Comcast/ouro/sio"

	md "github.com/russross/blackfriday/v2"
)

// SessionMarkdown renders a journaled session as a Markdown
// transcript.
func SessionMarkdown(ctx context.Context, j *sio.Journal, session string) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", session)

	err := j.Scan(ctx, session, func(u *sio.Update) error {
		fmt.Fprintf(&b, "## %d at %s\n\n", u.Seq, u.At.Format(time.RFC3339Nano))
		if u.Err != "" {
			fmt.Fprintf(&b, "Error: `%s`\n\n", u.Err)
			return nil
		}
		if u.Event != nil {
			fmt.Fprintf(&b, "Event:\n\n```json\n%s\n```\n\n", sio.JSON(u.Event))
		}
		fmt.Fprintf(&b, "State:\n\n```json\n%s\n```\n\n", sio.JSON(u.State))
		return nil
	})
	if err != nil {
		return "", err
	}

	return b.String(), nil
}

// RenderSessionHTML writes an HTML page reporting a journaled
// session.
func RenderSessionHTML(ctx context.Context, j *sio.Journal, session string, out io.Writer) error {
	mark, err := SessionMarkdown(ctx, j, session)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>Session %s</title>
  </head>
  <body>
`, session)

	if _, err = out.Write(md.Run([]byte(mark))); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}
