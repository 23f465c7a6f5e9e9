// Package compiler wires the pipeline spec.md §6 describes end to end:
// Source -> Tokens -> AST -> (Symbol Table + Typed AST) -> IR -> two C
// files. It is the one place parser, check, ir, and the two codegens are
// composed; the exit code for a returned error is decided by diag.ExitCode,
// which cmd/ksc calls.
package compiler

import (
	"path/filepath"
	"strings"

	"github.com/kernelscript/ksc/internal/check"
	"github.com/kernelscript/ksc/internal/codegen/kernelc"
	"github.com/kernelscript/ksc/internal/codegen/userc"
	"github.com/kernelscript/ksc/internal/ir"
	"github.com/kernelscript/ksc/internal/parser"
)

// Output is the result of compiling one source unit: the kernel-side and
// user-space C translation units plus the filenames spec.md §6 prescribes
// for them.
type Output struct {
	Unit        string
	KernelC     string
	KernelCPath string
	UserC       string
	UserCPath   string
}

// Option configures a Compilation.
type Option func(*Compilation)

// WithUnitName overrides the unit name derived from the source path,
// controlling the generated file names and the `<unit>.ebpf.skel.h` the
// user-space translation unit includes.
func WithUnitName(name string) Option {
	return func(c *Compilation) { c.unit = name }
}

// Compilation holds the configuration for one compile, built via options in
// the teacher's functional-options style.
type Compilation struct {
	unit string
}

// New builds a Compilation, applying opts over the defaults.
func New(opts ...Option) *Compilation {
	c := &Compilation{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs path's contents (src) through the full pipeline and returns
// the generated kernel and user-space translation units. A returned error is
// always either a *diag.Error or a joined collection of them; callers should
// route it through diag.ExitCode.
func (c *Compilation) Compile(path, src string) (*Output, error) {
	unit := c.unit
	if unit == "" {
		unit = unitNameFromPath(path)
	}

	file, err := parser.Parse(path, src)
	if err != nil {
		return nil, err
	}

	chk, err := check.Check(file)
	if err != nil {
		if j, ok := err.(interface{ Unwrap() []error }); ok && len(j.Unwrap()) == 1 {
			return nil, j.Unwrap()[0]
		}
		return nil, err
	}

	lowered := ir.Build(file, chk)

	kernelOut, err := kernelc.Generate(unit, lowered)
	if err != nil {
		return nil, err
	}

	userOut, err := userc.Generate(unit, lowered)
	if err != nil {
		return nil, err
	}

	return &Output{
		Unit:        unit,
		KernelC:     kernelOut,
		KernelCPath: unit + ".ebpf.c",
		UserC:       userOut,
		UserCPath:   unit + ".c",
	}, nil
}

// Compile is a convenience entry point for one-shot callers (cmd/ksc) that
// don't need to reuse a Compilation across multiple files.
func Compile(path, src string, opts ...Option) (*Output, error) {
	return New(opts...).Compile(path, src)
}

func unitNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
