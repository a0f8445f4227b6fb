package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Comcast/ouro/script"

	"gopkg.in/yaml.v2"
)

// Dot makes a Graphviz dot file for the given def's feedback
// topology: events through the reducer into the state, projections
// out of the state (or out of the events), and effects back into the
// events.  A really ugly dot file.
func Dot(def *script.Def, w io.WriteCloser) error {
	name := def.Name
	if name == "" {
		name = "system"
	}

	fmt.Fprintf(w, "digraph \"%s\" {\n", escape(name))
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	fmt.Fprintf(w, "  events [shape=\"oval\", style=\"filled\", fillcolor=\"#2d93ad\", label=\"events\"]\n")

	label := "reducer"
	if def.Reducer != "" {
		label += srcLabel(def.Reducer)
	}
	fmt.Fprintf(w, "  reducer [shape=\"note\", style=\"filled\", fillcolor=\"#99ddc8\", label=<%s> ]\n", label)

	label = "state"
	if ys, err := yaml.Marshal(def.State); err == nil {
		label += srcLabel(string(ys))
	}
	fmt.Fprintf(w, "  state [shape=\"record\", style=\"rounded,filled\", fillcolor=\"#52aa5e\", label=<%s> ]\n", label)

	fmt.Fprintf(w, "  events -> reducer\n")
	fmt.Fprintf(w, "  reducer -> state\n")

	for i, fd := range def.Feedbacks {
		eid := fmt.Sprintf("effect%d", i)

		label := fd.Kind
		if fd.Doc != "" {
			label += docLabel(fd.Doc)
		}
		label += srcLabel(fd.Effect)
		fmt.Fprintf(w, "  %s [shape=\"note\", style=\"filled\", fillcolor=\"#99ddc8\", label=<%s> ]\n", eid, label)

		switch fd.Kind {
		case "feed":
			// A feed has no trigger projection.
		case "imperative":
			fmt.Fprintf(w, "  state -> %s\n", eid)
			fmt.Fprintf(w, "  events -> %s\n", eid)
		default:
			xid := fmt.Sprintf("extract%d", i)
			xlabel := "extract" + srcLabel(fd.Extract)
			fmt.Fprintf(w, "  %s [shape=\"note\", style=\"filled\", fillcolor=\"#99ddc8\", label=<%s> ]\n", xid, xlabel)
			fmt.Fprintf(w, "  %s -> %s\n", projection(fd.Kind), xid)
			fmt.Fprintf(w, "  %s -> %s [ label = \"%s\" ]\n", xid, eid, escape(fd.Kind))
		}

		out := "out"
		if fd.Delay != "" {
			out = "out every " + fd.Delay
		}
		fmt.Fprintf(w, "  %s -> events [ label = \"%s\" ]\n", eid, escape(out))
	}

	fmt.Fprintf(w, "}\n")
	return w.Close()
}

// PNG generates a PNG image based on output from Dot.
//
// This function will write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(def *script.Def, basename string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(def, dotfile); err != nil {
		return pngname, err
	}
	cmd := "dot -Tpng -Gstart=1 " + dotname + " > " + pngname
	if err := exec.Command("bash", "-c", cmd).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

// projection says which node a kind's extract projects from.
func projection(kind string) string {
	switch kind {
	case "withLatestEvents", "mergingEvents", "extracting":
		return "events"
	}
	return "state"
}

func srcLabel(src string) string {
	src = strings.Replace(src, "<", `&lt;`, -1)
	src = strings.Replace(src, ">", `&gt;`, -1)
	return `<FONT POINT-SIZE="6">` +
		`<BR/>` + strings.Replace(strings.TrimRight(src, "\n")+"\n", "\n", `<BR ALIGN="LEFT"/>`, -1) + `<BR/>` +
		`</FONT>`
}

func docLabel(doc string) string {
	doc = strings.TrimSpace(doc)
	doc = strings.Replace(doc, "\n", " ", -1)
	if 40 < len(doc) {
		period := strings.Index(doc, ". ")
		if 0 < period {
			doc = doc[0 : period+1]
		}
	}
	doc = strings.Replace(doc, "<", `&lt;`, -1)
	doc = strings.Replace(doc, ">", `&gt;`, -1)
	return "<BR/><FONT POINT-SIZE='8'>" + doc + "</FONT>"
}

func escape(s string) string {
	return strings.Replace(s, `"`, `\"`, -1)
}
