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
	"strings"
	"testing"
)

func TestJS(t *testing.T) {
	if s := JS(nil); s != "null" {
		t.Fatal(s)
	}
	if s := JS(map[string]interface{}{"likes": "tacos"}); s != `{"likes":"tacos"}` {
		t.Fatal(s)
	}
}

func TestJSONPretty(t *testing.T) {
	s := JSON(map[string]interface{}{"likes": "tacos"})
	if !strings.Contains(s, "\n  ") {
		t.Fatal(s)
	}
}

func TestJShort(t *testing.T) {
	if s := JShort("hi"); s != `"hi"` {
		t.Fatal(s)
	}
	long := strings.Repeat("tacos ", 40)
	s := JShort(long)
	if !strings.HasSuffix(s, " ...") {
		t.Fatal(s)
	}
	if 100 < len(s) {
		t.Fatal(len(s))
	}
}

func TestShellExpand(t *testing.T) {
	s, err := ShellExpand("said <<printf hello>> twice")
	if err != nil {
		t.Fatal(err)
	}
	if s != "said hello twice" {
		t.Fatal(s)
	}

	s, err = ShellExpand("nothing to do")
	if err != nil {
		t.Fatal(err)
	}
	if s != "nothing to do" {
		t.Fatal(s)
	}

	if _, err = ShellExpand("<<exit 1>>"); err == nil {
		t.Fatal("expected an error")
	}
}
