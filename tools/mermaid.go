/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package tools

import (
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/ouro/script"
)

type MermaidOpts struct {
	// ShowSources will put the extract sources on the projection
	// edges.
	ShowSources bool `json:"showSources"`

	// EffectFill is the fill color for effect nodes.
	EffectFill string `json:"effectFill,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given def's feedback topology.
func Mermaid(def *script.Def, w io.WriteCloser, opts *MermaidOpts) error {

	if opts == nil {
		opts = &MermaidOpts{
			ShowSources: true,
			EffectFill:  "#bcf2db",
		}
	}

	fmt.Fprintf(w, "graph TB\n")

	num := 0
	node := func(label string, effect bool) string {
		num++
		nid := fmt.Sprintf("n%d", num)
		if effect {
			fmt.Fprintf(w, "  %s[\"%s\"]\n", nid, label)
			if opts.EffectFill != "" {
				fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.EffectFill)
			}
		} else {
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		}
		return nid
	}

	events := node("events", false)
	reducer := node("reducer", true)
	state := node("state", false)

	fmt.Fprintf(w, "  %s --> %s\n", events, reducer)
	fmt.Fprintf(w, "  %s --> %s\n", reducer, state)

	for _, fd := range def.Feedbacks {
		effect := node(fd.Kind, true)

		switch fd.Kind {
		case "feed":
		case "imperative":
			fmt.Fprintf(w, "  %s --> %s\n", state, effect)
			fmt.Fprintf(w, "  %s --> %s\n", events, effect)
		default:
			from := state
			if projection(fd.Kind) == "events" {
				from = events
			}
			label := ""
			if opts.ShowSources {
				src := strings.TrimSpace(fd.Extract)
				src = strings.Replace(src, `"`, `'`, -1)
				src = strings.Replace(src, "\n", "<br/>", -1)
				label = fmt.Sprintf(`-- "<pre>%s</pre>"`, src)
			}
			fmt.Fprintf(w, "  %s %s --> %s\n", from, label, effect)
		}

		fmt.Fprintf(w, "  %s --> %s\n", effect, events)
	}

	fmt.Fprintf(w, "\n")

	return w.Close()
}
