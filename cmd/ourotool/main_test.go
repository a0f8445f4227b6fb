package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Comcast/ouro/script"
	"github.com/Comcast/ouro/util"
	. "github.com/Comcast/ouro/util/testutil"
)

func TestGrapher(t *testing.T) {
	def, err := script.Demo()
	if err != nil {
		t.Fatal(err)
	}

	filename := filepath.Join(t.TempDir(), "def.dot")
	m := &Grapher{
		OutputFilename: filename,
	}
	if err := m.F(def); err != nil {
		t.Fatal(err)
	}

	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`digraph "double"`, "extracting"} {
		if !strings.Contains(string(bs), want) {
			t.Fatalf("didn't find '%s' in %s", want, bs)
		}
	}
}

func TestMermaider(t *testing.T) {
	def, err := script.Demo()
	if err != nil {
		t.Fatal(err)
	}

	filename := filepath.Join(t.TempDir(), "def.mm")
	m := &Mermaider{
		OutputFilename: filename,
		ShowSources:    true,
		EffectFill:     "#bcf2db",
	}
	if err := m.F(def); err != nil {
		t.Fatal(err)
	}

	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bs), "graph TB") {
		t.Fatalf("didn't find a graph in %s", bs)
	}
}

func TestValidator(t *testing.T) {
	def, err := script.Demo()
	if err != nil {
		t.Fatal(err)
	}

	m := &Validator{}
	if err := m.F(def); err != nil {
		t.Fatal(err)
	}

	broken := &script.Def{
		Name:    "broken",
		Reducer: "return (;",
	}
	if err := m.F(broken); err == nil {
		t.Fatal("expected a complaint")
	}
}

var driverJS = `
function expand(x) {
  if (x && typeof x === "object") {
    if (x.double !== undefined) {
      return {doubled: _.twice(x.double)};
    }
    var acc = Array.isArray(x) ? [] : {};
    for (var k in x) {
    	acc[k] = expand(x[k]);
    }
    return acc;
  }
  return x;
}
`

func TestMacroExpand(t *testing.T) {
	dir := t.TempDir()

	driver := filepath.Join(dir, "driver.js")
	if err := ioutil.WriteFile(driver, []byte(driverJS), 0644); err != nil {
		t.Fatal(err)
	}

	macros := filepath.Join(dir, "macros")
	if err := os.Mkdir(macros, 0755); err != nil {
		t.Fatal(err)
	}
	macro := "_.twice = function (n) { return 2 * n; };\n"
	if err := ioutil.WriteFile(filepath.Join(macros, "twice.js"), []byte(macro), 0644); err != nil {
		t.Fatal(err)
	}

	x, err := MacroExpand(Dwimjs(`{"a":{"double":21}}`), driver, macros)
	if err != nil {
		t.Fatal(err)
	}

	got, err := util.Canonicalize(x)
	if err != nil {
		t.Fatal(err)
	}

	want := Dwimjs(`{"a":{"doubled":42}}`)
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("wanted %s; got %s", JS(want), JS(got))
	}
}
