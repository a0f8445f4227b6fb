package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/Comcast/ouro/util"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

// Program is one compiled JavaScript source.
//
// Goja, a Go implementation of ECMAScript 5.1+, does the real work.
// See https://github.com/dop251/goja.
type Program struct {
	name string
	p    *goja.Program
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// Compile wraps the source in a function body, so the source can
// (and should) use 'return', and compiles it.
func Compile(name, src string) (*Program, error) {
	code := wrapSrc(src)
	p, err := goja.Compile(name, code, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + code)
	}
	return &Program{
		name: name,
		p:    p,
	}, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

// Exec runs the program with the given environment, which is
// available in the source at _.
//
// The environment usually carries a role binding (_.state, _.event,
// or _.trigger).  Exec adds some utilities:
//
//	out(x): emit x (canonicalized); only when Exec is given an emit
//	  function.
//	gensym(): generate a random string.
//	cronNext(expr): the next firing time for the cron expression.
//	esc(s): URL query-escape the given string.
//	log(x): log x as JSON.
//
// The returned value is what the source returned, canonicalized
// through JSON, so a returned null (or no return at all) comes back
// as nil.  If ctx is canceled while the program runs, the program is
// interrupted and Exec returns Interrupted.
func (p *Program) Exec(ctx context.Context, env map[string]interface{}, emit func(interface{})) (interface{}, error) {
	if env == nil {
		env = map[string]interface{}{}
	}

	o := goja.New()

	o.Set("_", env)

	env["ctx"] = ctx

	env["gensym"] = func() interface{} {
		return util.Gensym(32)
	}

	env["cronNext"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		cronExpr, is := x.(string)
		if !is {
			protest(o, "not a string")
		}

		c, err := cronexpr.Parse(cronExpr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["esc"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		s, is := x.(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	env["log"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		js, err := json.Marshal(&x)
		if err != nil {
			log.Println("script.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}

		return x
	}

	if emit != nil {
		env["out"] = func(x interface{}) interface{} {
			var err error

			switch vv := x.(type) {
			case goja.Value:
				x = vv.Export()
			}

			if x, err = util.Canonicalize(x); err != nil {
				// Will end up as a Javascript exception.
				panic(err)
			}

			emit(x)

			return x
		}
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If this Exec method calls cancel() after RunProgram
		// returns, then we'll never see this
		// InterruptedMessage, which is actually the behavior
		// we want.  In this case, we weren't actually
		// interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p.p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	return util.Canonicalize(v.Export())
}
