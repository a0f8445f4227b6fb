package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Comcast/ouro/script"
	"github.com/Comcast/ouro/tools"

	"github.com/jsccast/yaml"
)

var Mods = map[string]Mod{
	"analyze":  &Analyzer{},
	"validate": &Validator{},
	"graph":    &Grapher{},
	"mermaid":  &Mermaider{},
}

// Mod is a def filter: it reads a def (YAML) from stdin, does
// something, and the (possibly updated) def goes to stdout.
type Mod interface {
	F(*script.Def) error
	Doc() string
	Flags() *flag.FlagSet
}

type Analyzer struct {
}

func (m *Analyzer) F(d *script.Def) error {
	a, err := tools.Analyze(d)
	if err != nil {
		return err
	}
	bs, err := yaml.Marshal(&a)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s\n", bs)

	return nil
}

func (m *Analyzer) Doc() string {
	return "Reports feedback kinds, script problems, and the like to stderr."
}

func (m *Analyzer) Flags() *flag.FlagSet {
	return flag.NewFlagSet("analyze", flag.PanicOnError)
}

type Validator struct {
}

func (m *Validator) F(d *script.Def) error {
	a, err := tools.Analyze(d)
	if err != nil {
		return err
	}
	if 0 < len(a.Errors) {
		return fmt.Errorf("%d problems: %v", len(a.Errors), a.Errors)
	}
	return nil
}

func (m *Validator) Doc() string {
	return "Fails unless the def validates and all of its scripts compile."
}

func (m *Validator) Flags() *flag.FlagSet {
	return flag.NewFlagSet("validate", flag.PanicOnError)
}

type Grapher struct {
	OutputFilename string
}

func (m *Grapher) F(d *script.Def) error {
	f, err := os.Create(m.OutputFilename)
	if err != nil {
		return err
	}

	return tools.Dot(d, f) // Will Close f.
}

func (m *Grapher) Doc() string {
	return "Writes a Graphviz rendition of the def's feedback topology."
}

func (m *Grapher) Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("graph", flag.PanicOnError)
	fs.StringVar(&m.OutputFilename, "o", "def.dot", "output filename")
	return fs
}

type Mermaider struct {
	OutputFilename string
	ShowSources    bool
	EffectFill     string
}

func (m *Mermaider) F(d *script.Def) error {
	f, err := os.Create(m.OutputFilename)
	if err != nil {
		return err
	}

	opts := &tools.MermaidOpts{
		ShowSources: m.ShowSources,
		EffectFill:  m.EffectFill,
	}

	return tools.Mermaid(d, f, opts) // Will Close f.
}

func (m *Mermaider) Doc() string {
	return "Writes a Mermaid rendition of the def's feedback topology."
}

func (m *Mermaider) Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("mermaid", flag.PanicOnError)
	fs.StringVar(&m.OutputFilename, "o", "def.mm", "output filename")
	fs.BoolVar(&m.ShowSources, "sources", true, "show extract sources on edges")
	fs.StringVar(&m.EffectFill, "fill", "#bcf2db", "fill color for effect nodes")
	return fs
}
