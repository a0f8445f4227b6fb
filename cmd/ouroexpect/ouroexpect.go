// Package main runs an expect session against a cell, all in-process.
//
// Point -f at a session YAML and -def at a system definition YAML.
// The process panics if the session isn't happy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Comcast/ouro/script"
	"github.com/Comcast/ouro/sio"
	"github.com/Comcast/ouro/tools/expect"
)

func main() {

	var (
		sessionFilename = flag.String("f", "session.yaml", "filename for test session")
		defFilename     = flag.String("def", "", "filename for the system definition")
		demo            = flag.Bool("demo", false, "run against the demo definition")
		timeout         = flag.Duration("t", 10*time.Second, "main timeout")
		verbose         = flag.Bool("v", false, "verbosity")
	)

	flag.Parse()

	if err := run(*sessionFilename, *defFilename, *demo, *timeout, *verbose); err != nil {
		panic(err)
	}
}

func run(sessionFilename, defFilename string, demo bool, timeout time.Duration, verbose bool) error {

	s, err := expect.LoadSession(sessionFilename)
	if err != nil {
		return err
	}
	s.Verbose = verbose

	var def *script.Def
	switch {
	case demo:
		def, err = script.Demo()
	case defFilename != "":
		def, err = script.LoadDef(defFilename)
	default:
		err = fmt.Errorf("need either -def or -demo")
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	initial, reduce, fbs, err := def.Build(ctx)
	if err != nil {
		return err
	}

	h := expect.NewHarness()
	c, err := sio.NewCell(ctx, &sio.CellConf{
		Id:        def.Name,
		Initial:   initial,
		Reduce:    reduce,
		Feedbacks: fbs,
	}, h)
	if err != nil {
		return err
	}
	c.Verbose = verbose

	go c.Loop(ctx)
	defer c.Shutdown(context.Background())

	if err = s.Run(ctx, h); err != nil {
		return err
	}

	log.Printf("session %s is happy", sessionFilename)

	return nil
}
