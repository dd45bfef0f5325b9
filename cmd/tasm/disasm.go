package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/asmkit/tasm"
	"github.com/asmkit/tasm/internal/asm/amd64"
)

type disasmOptions struct {
	hex        []string
	length     int
	crosscheck bool
}

// input is one byte source to disassemble.
type input struct {
	name string
	open func() (tasm.Provider, int, func(), error)
}

// result is the listing of one input, or why it stopped.
type result struct {
	lines []string
	err   error
}

func newDisasmCommand(g *globalOptions, stdOut io.Writer) *cobra.Command {
	opts := &disasmOptions{}
	cmd := &cobra.Command{
		Use:   "disasm [options] [FILE...]",
		Short: "Disassemble image files or hex strings",
		Long: `Disassemble image files or hex strings, mapping the first byte of each input at --start.

Inputs are decoded concurrently and listed in the order given. Bytes no template matches
are listed as .byte.`,
		RunE: func(_ *cobra.Command, args []string) error {
			return runDisasm(g.cfg, opts, args, stdOut)
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&opts.hex, "hex", nil, "hex bytes to disassemble, e.g. \"48 8b 04 cb\"")
	flags.IntVar(&opts.length, "length", 0, "number of bytes to decode from each file (0 for all)")
	flags.BoolVar(&opts.crosscheck, "crosscheck", false, "compare every instruction with golang.org/x/arch (amd64)")
	return cmd
}

func runDisasm(cfg *tasm.Config, opts *disasmOptions, files []string, stdOut io.Writer) error {
	if len(files) == 0 && len(opts.hex) == 0 {
		return errors.New("nothing to disassemble: pass files or --hex")
	}
	if opts.crosscheck && cfg.Architecture() != tasm.AMD64 {
		return errors.Errorf("--crosscheck is not available for %s", cfg.Architecture())
	}

	var inputs []input
	for _, path := range files {
		inputs = append(inputs, fileInput(cfg, path, opts.length))
	}
	for i, h := range opts.hex {
		inputs = append(inputs, hexInput(cfg, fmt.Sprintf("hex #%d", i+1), h))
	}

	results := make([]result, len(inputs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = disassemble(cfg, in, opts.crosscheck)
			return nil
		})
	}
	_ = g.Wait() // Failures are per input, in results.

	var errs *multierror.Error
	for i, r := range results {
		if len(inputs) > 1 {
			if i > 0 {
				fmt.Fprintln(stdOut)
			}
			fmt.Fprintf(stdOut, "%s:\n", inputs[i].name)
		}
		for _, l := range r.lines {
			fmt.Fprintln(stdOut, l)
		}
		if r.err != nil {
			errs = multierror.Append(errs, errors.Wrap(r.err, inputs[i].name))
		}
	}
	return errs.ErrorOrNil()
}

// disassemble lists one input. The lines decoded before a failure are kept.
func disassemble(cfg *tasm.Config, in input, crosscheck bool) (r result) {
	p, n, closeFn, err := in.open()
	if err != nil {
		return result{err: err}
	}
	defer closeFn()

	insts, err := tasm.DisassembleRange(cfg, p, n)
	for _, inst := range insts {
		r.lines = append(r.lines, inst.Listing())
		if crosscheck {
			if cerr := amd64.CrossCheck(inst); cerr != nil {
				r.err = multierror.Append(r.err, cerr)
			}
		}
	}
	if err != nil {
		r.err = multierror.Append(r.err, err)
	}
	return r
}

func fileInput(cfg *tasm.Config, path string, length int) input {
	return input{name: path, open: func() (tasm.Provider, int, func(), error) {
		st, err := os.Stat(path)
		if err != nil {
			return nil, 0, nil, errors.Wrap(err, "stat")
		}
		n := int(st.Size())
		if length > 0 {
			n = min(n, length)
		}
		f, err := tasm.OpenFile(path, cfg.StartAddress())
		if err != nil {
			return nil, 0, nil, err
		}
		return f, n, func() { _ = f.Close() }, nil
	}}
}

func hexInput(cfg *tasm.Config, name, s string) input {
	return input{name: name, open: func() (tasm.Provider, int, func(), error) {
		code, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return nil, 0, nil, errors.Wrap(err, "decoding hex")
		}
		return tasm.NewMemory(cfg.StartAddress(), code), len(code), func() {}, nil
	}}
}
