// Package main is a service that hosts cells: little feedback
// systems defined in YAML (see package script), each coupled to the
// service's op protocol over TCP, WebSockets, or HTTP.
//
// Events addressed to "http" become HTTP requests whose responses
// feed back into a cell.  With a journal directory, every cell's
// updates are journaled, and /report renders session transcripts.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	"os"
	"regexp"
	"runtime/pprof"

	"github.com/Comcast/ouro/tools"
	. "github.com/Comcast/ouro/util/testutil"

	"golang.org/x/net/netutil"
)

func main() {

	var (
		defsDir    = flag.String("d", "defs", "definitions directory")
		journalDir = flag.String("j", "", "optional journal directory")
		bootFile   = flag.String("b", "", "file to read for initial ops")

		httpPort  = flag.String("h", ":8080", "HTTP port for our service")
		wsService = flag.Bool("w", true, "WebSockets service")
		httpDir   = flag.String("f", "", "directory to serve via HTTP")
		tcpPort   = flag.String("t", ":9000", "port for our TCP listener")
		maxConns  = flag.Int("max-conns", 0, "optional limit on concurrent HTTP connections")

		listenOnStdin = flag.Bool("I", false, "listen for ops on stdin")
	)

	flag.BoolVar(&Verbose, "v", false, "log lots of wonderful things")

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())

	s, err := NewService(ctx, *defsDir, *journalDir)
	if err != nil {
		panic(err)
	}
	s.Tracing = Verbose

	s.Errors = make(chan interface{}, 8)
	monitor(ctx, s.Errors, "errors", false)

	if *bootFile != "" {
		if err := s.Boot(ctx, *bootFile); err != nil {
			panic(err)
		}
	}

	if *listenOnStdin {
		go func() {
			if err = s.Listener(ctx, bufio.NewReader(os.Stdin), os.Stdout, nil); err != nil {
				log.Printf("Service.Listener os.Stdin os.Stdout error %s", err)
			}
			Logf("stdin listener done")
			cancel()
		}()
	}

	if *tcpPort != "" {
		go func() {
			if err := s.TCPService(ctx, *tcpPort); err != nil {
				panic(fmt.Errorf("Service.Listener TCP error %s", err))
			}
		}()
	}

	if *httpPort != "" {

		go func() {
			if *wsService {
				log.Printf("WebSockets service starting")
				if err := s.WebSocketService(ctx); err != nil {
					panic(err)
				}
			}

			if *httpDir != "" {
				log.Printf("HTTP serving files in %s", *httpDir)
				fs := http.FileServer(http.Dir(*httpDir))
				http.Handle("/static/", http.StripPrefix("/static", fs))
			}

			// A journal session id has the form CELL.UUID.
			p := regexp.MustCompile("/report/([-a-zA-Z0-9_]+)(/([-a-zA-Z0-9_.]+))?")

			http.HandleFunc("/report/", func(w http.ResponseWriter, r *http.Request) {
				ss := p.FindStringSubmatch(r.RequestURI)
				if ss == nil {
					fmt.Fprintf(w, "No cell in %s\n", r.RequestURI)
					fmt.Fprintf(w, "try /report/CELL or /report/CELL/SESSION")
					return
				}
				j := s.Journal(ss[1])
				if j == nil {
					fmt.Fprintf(w, "cell '%s' has no journal", ss[1])
					return
				}
				if ss[3] == "" {
					infos, err := j.Sessions(r.Context())
					if err != nil {
						fmt.Fprintf(w, "Sessions error: %s", err)
						return
					}
					fmt.Fprintf(w, "%s\n", JS(infos))
					return
				}
				if err := tools.RenderSessionHTML(r.Context(), j, ss[3], w); err != nil {
					fmt.Fprintf(w, "RenderSessionHTML error: %s", err)
				}
			})

			log.Printf("HTTP service on %s", *httpPort)
			if err = s.HTTPServer(ctx, *httpPort, *maxConns); err != nil {
				panic(err)
			}
		}()
	}

	<-ctx.Done()
}

func monitor(ctx context.Context, c chan interface{}, tag string, toStdout bool) {
	go func() {
		log.Printf("monitoring %s", tag)
	LOOP:
		for {
			select {
			case <-ctx.Done():
				break LOOP
			case x := <-c:
				js := JS(x)
				log.Printf("%s %s", tag, js)
				if toStdout {
					fmt.Println(js)
				}
			}
		}
		log.Printf("halting monitoring of %s", tag)
	}()
}

func (s *Service) HTTPServer(ctx context.Context, port string, maxConns int) error {
	complain := func(w http.ResponseWriter, x interface{}, status int) {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":"%s"}`+"\n", x)
	}

	http.Handle("/goroutines", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Lookup("goroutine").WriteTo(w, 1)
	}))

	http.Handle("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		js, err := ioutil.ReadAll(r.Body)
		if err != nil {
			complain(w, err, http.StatusBadRequest)
			return
		}
		if err := r.Body.Close(); err != nil {
			log.Printf("Service.HTTPServer warning on Body.Close(): %v", err)
		}

		var op SOp
		if err := json.Unmarshal(js, &op); err != nil {
			complain(w, err, http.StatusBadRequest)
			return
		}
		if err = op.Do(ctx, s); err != nil {
			complain(w, err, http.StatusInternalServerError)
			return
		}
		js, err = json.Marshal(&op)
		if err != nil {
			complain(w, err, http.StatusInternalServerError)
		}
		if _, err = w.Write(js); err != nil {
			log.Printf("Service.HTTPServer warning on Write(): %v", err)
		}
	}))

	ln, err := net.Listen("tcp", port)
	if err != nil {
		return err
	}
	if 0 < maxConns {
		ln = netutil.LimitListener(ln, maxConns)
	}

	return http.Serve(ln, nil)
}

func (s *Service) Boot(ctx context.Context, filename string) error {
	in, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer in.Close()

	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("#")) || bytes.HasPrefix(line, []byte("//")) {
			continue
		}
		var op SOp
		if err = json.Unmarshal(line, &op); err != nil {
			return err
		}
		if err := op.Do(ctx, s); err != nil {
			return err
		}
	}

	return nil
}
