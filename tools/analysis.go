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
	"sort"

	"github.com/Comcast/ouro/script"
)

// DefAnalysis reports some static properties of a Def.
type DefAnalysis struct {
	def *script.Def

	// Errors are validation problems and script compilation
	// failures.
	Errors        []string
	FeedbackCount int
	Kinds         map[string]int
	KindsUsed     []string
	Delayed       int
	HasReducer    bool
	Undocumented  int
}

// Analyze looks at a Def without running it.
//
// Every script source is compiled, so a Def that passes with no
// Errors should Build.
func Analyze(d *script.Def) (*DefAnalysis, error) {

	a := DefAnalysis{
		def:           d,
		FeedbackCount: len(d.Feedbacks),
		Kinds:         make(map[string]int, len(d.Feedbacks)),
		HasReducer:    d.Reducer != "",
		Errors:        make([]string, 0, 8),
	}

	complain := func(format string, args ...interface{}) {
		a.Errors = append(a.Errors, fmt.Sprintf(format, args...))
	}

	if err := d.Validate(); err != nil {
		complain("%s", err)
	}

	if d.Reducer != "" {
		if _, err := script.Compile(d.Name+".reducer", d.Reducer); err != nil {
			complain("reducer: %s", err)
		}
	}

	for i, fd := range d.Feedbacks {
		a.Kinds[fd.Kind]++
		if fd.Delay != "" {
			a.Delayed++
		}
		if fd.Doc == "" {
			a.Undocumented++
		}
		if fd.Effect != "" {
			if _, err := script.Compile(fmt.Sprintf("%s.%d.effect", d.Name, i), fd.Effect); err != nil {
				complain("feedback %d effect: %s", i, err)
			}
		}
		if fd.Extract != "" {
			if _, err := script.Compile(fmt.Sprintf("%s.%d.extract", d.Name, i), fd.Extract); err != nil {
				complain("feedback %d extract: %s", i, err)
			}
		}
	}

	used := make([]string, 0, len(a.Kinds))
	for kind := range a.Kinds {
		used = append(used, kind)
	}
	sort.Strings(used)
	a.KindsUsed = used

	return &a, nil
}
