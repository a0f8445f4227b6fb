package main

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"sync"
	"time"

	"github.com/Comcast/ouro/script"
	"github.com/Comcast/ouro/sio"
	"github.com/Comcast/ouro/util"
	. "github.com/Comcast/ouro/util/testutil"
)

var (
	// Exists occurs on an attempt to make a cell with an id that's
	// already in use.
	Exists = errors.New("cell exists")

	// NotFound occurs on an operation that names an unknown cell.
	NotFound = errors.New("cell not found")
)

// Service hosts a set of cells and speaks ops (see protocol.go) over
// TCP, WebSockets, and HTTP.
type Service struct {
	// SubmitTimeout bounds event hand-off to a cell's input.
	SubmitTimeout time.Duration

	Errors  chan interface{} // Should be error
	Tracing bool

	ops chan interface{}

	sync.Mutex
	cells map[string]*cellEntry

	defsDir    string
	journalDir string
}

type cellEntry struct {
	id     string
	def    *script.Def
	cell   *sio.Cell
	in     chan interface{}
	out    chan *sio.Update
	cancel context.CancelFunc
}

// hostedIO is the sio.Couplings for a cell that the service hosts.
type hostedIO struct {
	in   chan interface{}
	out  chan *sio.Update
	done chan bool
}

func (h *hostedIO) Start(ctx context.Context) error {
	return nil
}

func (h *hostedIO) Stop(ctx context.Context) error {
	return nil
}

func (h *hostedIO) IO(ctx context.Context) (chan interface{}, chan *sio.Update, chan bool, error) {
	return h.in, h.out, h.done, nil
}

func NewService(ctx context.Context, defsDir, journalDir string) (*Service, error) {
	s := Service{
		SubmitTimeout: time.Second,
		cells:         make(map[string]*cellEntry, 32),
		defsDir:       defsDir,
		journalDir:    journalDir,
	}
	return &s, nil
}

func (s *Service) trf(format string, args ...interface{}) {
	if !s.Tracing {
		return
	}
	log.Printf("trace "+format, args...)
}

func (s *Service) op(ctx context.Context, x interface{}) {
	if s.ops != nil {
		select {
		case s.ops <- Copy(x):
		default:
			log.Printf("Service ops chan blocked")
		}
	}
}

func (s *Service) err(err error) {
	if s.Errors != nil {
		s.Errors <- err
	} else {
		log.Println(err)
	}
}

// GetDef reads and parses a definition from the defs directory.
func (s *Service) GetDef(ctx context.Context, name string) (*script.Def, error) {
	if name == "" {
		return nil, fmt.Errorf("a def needs a name")
	}
	bs, err := ioutil.ReadFile(s.defsDir + "/" + name + ".yaml")
	if err != nil {
		return nil, err
	}
	return script.ParseDef(bs)
}

// MakeCell builds a cell from the given definition and starts it.
//
// When the service has a journal directory, the cell gets a journal
// at JOURNALDIR/ID.db.
func (s *Service) MakeCell(ctx context.Context, id string, def *script.Def, state interface{}) error {
	if id == "" {
		return fmt.Errorf("a cell needs an id")
	}

	initial, reduce, feedbacks, err := def.Build(ctx)
	if err != nil {
		return err
	}
	if state != nil {
		if initial, err = util.Canonicalize(state); err != nil {
			return err
		}
	}

	var journal *sio.Journal
	if s.journalDir != "" {
		journal = &sio.Journal{
			Filename: s.journalDir + "/" + id + ".db",
			CellId:   id,
		}
	}

	conf := &sio.CellConf{
		Id:        id,
		Initial:   initial,
		Reduce:    reduce,
		Feedbacks: feedbacks,
		Journal:   journal,
	}

	h := &hostedIO{
		in:   make(chan interface{}, 32),
		out:  make(chan *sio.Update, 32),
		done: make(chan bool),
	}

	cellCtx, cancel := context.WithCancel(ctx)

	s.Lock()
	if _, have := s.cells[id]; have {
		s.Unlock()
		cancel()
		return Exists
	}

	c, err := sio.NewCell(cellCtx, conf, h)
	if err != nil {
		s.Unlock()
		cancel()
		return err
	}

	e := &cellEntry{
		id:     id,
		def:    def,
		cell:   c,
		in:     h.in,
		out:    h.out,
		cancel: cancel,
	}
	s.cells[id] = e
	s.Unlock()

	go c.Loop(cellCtx)
	go s.watch(cellCtx, e)

	s.trf("Service made cell %s", id)

	return nil
}

// RemCell shuts a cell down and forgets it.
func (s *Service) RemCell(ctx context.Context, id string) error {
	s.Lock()
	e, have := s.cells[id]
	if have {
		delete(s.cells, id)
	}
	s.Unlock()
	if !have {
		return NotFound
	}
	e.cancel()
	e.cell.Shutdown(ctx)
	s.trf("Service removed cell %s", id)
	return nil
}

// Submit hands an event to a hosted cell.
//
// The event goes through the cell's input coupling, so control
// messages (timers) work as they do for any cell.
func (s *Service) Submit(ctx context.Context, id string, msg interface{}) error {
	s.Lock()
	e, have := s.cells[id]
	s.Unlock()
	if !have {
		return NotFound
	}

	timeout := s.SubmitTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	to := time.NewTimer(timeout)
	defer to.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e.in <- msg:
		return nil
	case <-to.C:
		return fmt.Errorf("cell '%s' input stalled", id)
	}
}

// ListCells reports the hosted cells' current states.
func (s *Service) ListCells(ctx context.Context) map[string]interface{} {
	s.Lock()
	defer s.Unlock()
	acc := make(map[string]interface{}, len(s.cells))
	for id, e := range s.cells {
		acc[id] = e.cell.State()
	}
	return acc
}

// Journal returns the journal for a hosted cell (nil if none).
func (s *Service) Journal(id string) *sio.Journal {
	s.Lock()
	defer s.Unlock()
	if e, have := s.cells[id]; have {
		return e.cell.Conf.Journal
	}
	return nil
}

// Shutdown removes all cells.
func (s *Service) Shutdown(ctx context.Context) {
	s.Lock()
	es := make([]*cellEntry, 0, len(s.cells))
	for _, e := range s.cells {
		es = append(es, e)
	}
	s.cells = make(map[string]*cellEntry)
	s.Unlock()
	for _, e := range es {
		e.cancel()
		e.cell.Shutdown(ctx)
	}
}

// watch forwards a cell's updates to the ops firehose and routes
// events addressed to service-level capabilities.
func (s *Service) watch(ctx context.Context, e *cellEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-e.out:
			if u == nil {
				return
			}
			s.trf("Service cell %s update %s", e.id, JS(u))
			s.op(ctx, map[string]interface{}{
				"cell":   e.id,
				"update": u,
			})
			s.route(ctx, e, u)
		}
	}
}

// route dispatches an update's event when it's addressed to a
// service-level capability (currently just "http").
func (s *Service) route(ctx context.Context, e *cellEntry, u *sio.Update) {
	m, is := u.Event.(map[string]interface{})
	if !is {
		return
	}
	to, have := m["to"]
	if !have {
		return
	}
	switch to {
	case "http":
		go func() {
			if err := s.toHTTP(ctx, e.id, m); err != nil {
				s.err(err)
			}
		}()
	}
}
