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

// Package main is a single-cell ouro process.
//
// The cell's feedback system comes from a YAML definition (see
// package script), and the process couples the cell to stdin/stdout,
// an MQTT broker, or a WebSocket server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Comcast/ouro/script"
	"github.com/Comcast/ouro/sio"
	"github.com/Comcast/ouro/util"
)

func main() {

	var (
		coupling = flag.String("io", "std", `IO protocol: "std", "mq", or "ws"`)

		defFilename = flag.String("def", "", "System definition (YAML) filename")
		demo        = flag.Bool("demo", false, "Run the demo doubler")
		stateJS     = flag.String("state", "", "Optional initial state (JSON) overriding the definition's")

		cellId          = flag.String("id", "cell", "Cell id (for logs and journal sessions)")
		journalFilename = flag.String("journal", "", "Optional journal filename")

		wait      = flag.Duration("wait", time.Second, "Wait this long before shutting down couplings")
		haltOnEOF = flag.Bool("halt-on-eof", false, "Stop on input EOF")
		verbose   = flag.Bool("v", false, "Verbose")
		help      = flag.Bool("h", false, "Get usage")
	)

	flag.Parse()

	if *help {
		flag.PrintDefaults()

		{
			fmt.Fprintf(os.Stderr, "\n-io std (default):\n\n")
			_, fs := NewStdCouplings(nil)
			fs.PrintDefaults()
		}

		{
			fmt.Fprintf(os.Stderr, "\n-io mq:\n\n")
			_, fs := NewMQTTCouplings(nil)
			fs.PrintDefaults()
		}

		{
			fmt.Fprintf(os.Stderr, "\n-io ws:\n\n")
			_, fs := NewWebSocketCouplings(nil)
			fs.PrintDefaults()
		}

		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cio sio.Couplings
	switch *coupling {
	case "std":
		c, _ := NewStdCouplings(flag.Args())
		cio = c
	case "mq", "mqtt":
		c, _ := NewMQTTCouplings(flag.Args())
		cio = c
	case "ws":
		c, _ := NewWebSocketCouplings(flag.Args())
		cio = c
	default:
		panic(fmt.Errorf("unknown io: '%s'", *coupling))
	}

	var (
		def *script.Def
		err error
	)
	switch {
	case *demo:
		def, err = script.Demo()
	case *defFilename != "":
		def, err = script.LoadDef(*defFilename)
	default:
		// No definition, so each event just becomes the state.
		def = &script.Def{Name: *cellId}
	}
	if err != nil {
		panic(err)
	}

	initial, reduce, feedbacks, err := def.Build(ctx)
	if err != nil {
		panic(err)
	}

	if *stateJS != "" {
		var state interface{}
		if err := json.Unmarshal([]byte(*stateJS), &state); err != nil {
			panic(err)
		}
		if initial, err = util.Canonicalize(state); err != nil {
			panic(err)
		}
	}

	var journal *sio.Journal
	if *journalFilename != "" {
		journal = &sio.Journal{
			Filename: *journalFilename,
			CellId:   *cellId,
		}
	}

	conf := &sio.CellConf{
		Id:             *cellId,
		Initial:        initial,
		Reduce:         reduce,
		Feedbacks:      feedbacks,
		Journal:        journal,
		HaltOnInputEOF: *haltOnEOF,
	}

	if err := cio.Start(ctx); err != nil {
		panic(err)
	}

	c, err := sio.NewCell(ctx, conf, cio)
	if err != nil {
		panic(err)
	}
	c.Verbose = *verbose

	go func() {
		if std, is := cio.(*sio.Stdio); is {
			<-std.InputEOF
			log.Printf("input EOF (waiting %v)", *wait)
			time.Sleep(*wait)
			cancel()
		}
	}()

	if err := c.Loop(ctx); err != nil {
		panic(err)
	}

	c.Shutdown(context.Background())

	if err = cio.Stop(context.Background()); err != nil {
		log.Printf("error from io.Stop: %v", err)
	}
}

func E(err error, args ...interface{}) error {
	log.Printf("error %s: %v", err, args)
	return err
}
