package main

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/ouro/script"
)

var sessionYAML = `doc: "Exercise the doubler"
ios:
- inputs:
  - double: 10
  outputSet:
  - state:
      doubled: 20
- inputs:
  - double: 2
  outputSet:
  - event:
      doubled: 4
`

func TestRunDemo(t *testing.T) {
	dir := t.TempDir()

	sessionFilename := filepath.Join(dir, "session.yaml")
	if err := ioutil.WriteFile(sessionFilename, []byte(sessionYAML), 0644); err != nil {
		t.Fatal(err)
	}

	if err := run(sessionFilename, "", true, 10*time.Second, false); err != nil {
		t.Fatal(err)
	}
}

func TestRunDefFile(t *testing.T) {
	dir := t.TempDir()

	sessionFilename := filepath.Join(dir, "session.yaml")
	if err := ioutil.WriteFile(sessionFilename, []byte(sessionYAML), 0644); err != nil {
		t.Fatal(err)
	}

	defFilename := filepath.Join(dir, "double.yaml")
	if err := ioutil.WriteFile(defFilename, []byte(script.DemoSource), 0644); err != nil {
		t.Fatal(err)
	}

	if err := run(sessionFilename, defFilename, false, 10*time.Second, false); err != nil {
		t.Fatal(err)
	}
}

func TestRunNoDef(t *testing.T) {
	dir := t.TempDir()

	sessionFilename := filepath.Join(dir, "session.yaml")
	if err := ioutil.WriteFile(sessionFilename, []byte(sessionYAML), 0644); err != nil {
		t.Fatal(err)
	}

	err := run(sessionFilename, "", false, time.Second, false)
	if err == nil {
		t.Fatal("expected a complaint")
	}
	if !strings.Contains(err.Error(), "-def or -demo") {
		t.Fatal(err)
	}
}
