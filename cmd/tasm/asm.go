package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/asmkit/tasm"
	"github.com/asmkit/tasm/internal/asm"
	"github.com/asmkit/tasm/internal/asm/golang_asm"
)

// program is the YAML layout of the asm input:
//
//	instructions:
//	  - label: loop
//	    op: add
//	    args: [rax, "1"]
//	  - addressing:
//	      mnemonic: mov
//	      kind: long
//	      operand: rax
//	      pointer: rbx
//	      index: rcx
//	  - op: jne
//	    args: ["@loop"]
//
// Every entry is one logical instruction, so a label names the entry it is attached to.
// Operands are register names, integers, "@label", "addr:0x1000", "scale:8", role views of
// registers such as "base:rbx", "index:rcx" and "indirect:rbx", or immediates of an explicit
// width such as "imm32:5".
type program struct {
	Instructions []statement `yaml:"instructions"`
}

type statement struct {
	Label      string      `yaml:"label"`
	Op         string      `yaml:"op"`
	Args       []string    `yaml:"args"`
	Addressing *addressing `yaml:"addressing"`
}

type addressing struct {
	Mnemonic string `yaml:"mnemonic"`
	Kind     string `yaml:"kind"`
	Operand  string `yaml:"operand"`
	Store    bool   `yaml:"store"`
	Pointer  string `yaml:"pointer"`
	Offset   string `yaml:"offset"`
	Index    string `yaml:"index"`
}

type asmOptions struct {
	format     string
	output     string
	into       string
	crosscheck bool
}

func newAsmCommand(g *globalOptions, stdOut io.Writer) *cobra.Command {
	opts := &asmOptions{}
	cmd := &cobra.Command{
		Use:   "asm [options] PROGRAM",
		Short: "Assemble a YAML instruction list",
		Long: `Assemble a YAML instruction list into machine code.

The code is printed as hex bytes, as a listing, or written raw to --output. With --into it
is written over an existing image file whose first byte is at --start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAsm(g.cfg, opts, args[0], stdOut)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.format, "format", "hex", "output format (hex, listing, binary)")
	flags.StringVarP(&opts.output, "output", "o", "", "write the output to a file instead of stdout")
	flags.StringVar(&opts.into, "into", "", "patch the code into this image file at the start address")
	flags.BoolVar(&opts.crosscheck, "crosscheck", false, "compare every instruction with the golang-asm encoder (amd64)")
	return cmd
}

func runAsm(cfg *tasm.Config, opts *asmOptions, path string, stdOut io.Writer) error {
	switch opts.format {
	case "hex", "listing", "binary":
	default:
		return errors.Errorf("unknown format %q", opts.format)
	}
	if opts.crosscheck && cfg.Architecture() != tasm.AMD64 {
		return errors.Errorf("--crosscheck is not available for %s", cfg.Architecture())
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading program")
	}
	var prog program
	if err := yaml.Unmarshal(src, &prog); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	a, err := tasm.NewAssembler(cfg)
	if err != nil {
		return err
	}
	if err := emitProgram(cfg.Architecture(), a, &prog); err != nil {
		return err
	}

	var code *tasm.Code
	if opts.into != "" {
		f, err := tasm.OpenFile(opts.into, cfg.StartAddress())
		if err != nil {
			return err
		}
		defer f.Close()
		code, err = tasm.AssembleTo(f, a)
		if err != nil {
			return err
		}
	} else if code, err = a.Assemble(); err != nil {
		return err
	}

	var insts []*tasm.Disassembled
	if opts.crosscheck || opts.format == "listing" {
		d, err := tasm.NewDisassembler(cfg)
		if err != nil {
			return err
		}
		if insts, err = d.All(code.Bytes); err != nil {
			return err
		}
	}
	if opts.crosscheck {
		if err := crossCheckEncodings(insts); err != nil {
			return err
		}
	}

	out := stdOut
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return errors.Wrap(err, "creating output")
		}
		defer f.Close()
		out = f
	}
	switch opts.format {
	case "binary":
		_, err = out.Write(code.Bytes)
	case "listing":
		for _, inst := range insts {
			if _, err = fmt.Fprintln(out, inst.Listing()); err != nil {
				break
			}
		}
	default:
		_, err = fmt.Fprintf(out, "% x\n", code.Bytes)
	}
	return err
}

// crossCheckEncodings re-encodes every decoded instruction with golang-asm. Instructions
// golang-asm is not wired for are skipped.
func crossCheckEncodings(insts []*tasm.Disassembled) error {
	var errs *multierror.Error
	skipped := 0
	for _, inst := range insts {
		err := golang_asm.Check(inst.Instruction(), inst.Bytes)
		switch {
		case errors.Is(err, golang_asm.ErrUnsupported):
			skipped++
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("%#x: %w", inst.Address, err))
		}
	}
	logrus.WithFields(logrus.Fields{"checked": len(insts) - skipped, "skipped": skipped}).Info("crosscheck done")
	return errs.ErrorOrNil()
}

// emitProgram emits every statement of prog into a.
func emitProgram(arch tasm.Architecture, a *tasm.Assembler, prog *program) error {
	p := &operandParser{arch: arch, labels: map[string]tasm.Label{}}
	for i, s := range prog.Instructions {
		if s.Label == "" {
			continue
		}
		if _, ok := p.labels[s.Label]; ok {
			return errors.Errorf("instruction %d: duplicate label %q", i, s.Label)
		}
		p.labels[s.Label] = tasm.Label(i)
	}

	for i, s := range prog.Instructions {
		switch {
		case s.Addressing != nil && s.Op != "":
			return errors.Errorf("instruction %d: op and addressing are exclusive", i)
		case s.Addressing != nil:
			op, err := p.addressing(s.Addressing)
			if err != nil {
				return errors.Wrapf(err, "instruction %d", i)
			}
			a.EmitAddressing(op)
		case s.Op != "":
			args := make([]tasm.Location, len(s.Args))
			for j, arg := range s.Args {
				l, err := p.operand(arg)
				if err != nil {
					return errors.Wrapf(err, "instruction %d operand %d", i, j)
				}
				args[j] = l
			}
			a.EmitNamed(s.Op, args...)
		default:
			return errors.Errorf("instruction %d: neither op nor addressing", i)
		}
	}
	return nil
}

type operandParser struct {
	arch   tasm.Architecture
	labels map[string]tasm.Label
}

func (p *operandParser) register(name string) (tasm.Register, error) {
	r, ok := p.arch.LookupRegister(name)
	if !ok {
		return r, errors.Errorf("unknown %s register %q", p.arch, name)
	}
	return r, nil
}

var immediateWidths = map[string]asm.Width{"imm8": asm.Width8, "imm16": asm.Width16, "imm32": asm.Width32, "imm64": asm.Width64}

var registerRoles = map[string]asm.Role{"base": asm.RoleBase, "index": asm.RoleIndex, "indirect": asm.RoleIndirect}

func (p *operandParser) operand(s string) (tasm.Location, error) {
	s = strings.TrimSpace(s)
	if label, ok := strings.CutPrefix(s, "@"); ok {
		l, ok := p.labels[label]
		if !ok {
			return tasm.Location{}, errors.Errorf("undefined label %q", label)
		}
		return tasm.LabelOf(l), nil
	}
	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		switch prefix {
		case "scale":
			n, err := strconv.Atoi(rest)
			if err != nil {
				return tasm.Location{}, errors.Wrap(err, "scale")
			}
			return asm.Scale(n), nil
		case "addr":
			v, err := strconv.ParseUint(rest, 0, 64)
			if err != nil {
				return tasm.Location{}, errors.Wrap(err, "address")
			}
			return tasm.Address(v), nil
		}
		if w, ok := immediateWidths[prefix]; ok {
			v, err := strconv.ParseInt(rest, 0, 64)
			if err != nil {
				return tasm.Location{}, errors.Wrap(err, prefix)
			}
			return asm.ImmediateOf(w, v), nil
		}
		if role, ok := registerRoles[prefix]; ok {
			r, err := p.register(rest)
			if err != nil {
				return tasm.Location{}, err
			}
			if r, err = r.AsRole(role); err != nil {
				return tasm.Location{}, err
			}
			return tasm.RegisterLocation(r), nil
		}
		return tasm.Location{}, errors.Errorf("unknown operand prefix %q", prefix)
	}
	if r, ok := p.arch.LookupRegister(s); ok {
		return tasm.RegisterLocation(r), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return tasm.Location{}, errors.Errorf("operand %q is neither a register nor an integer", s)
	}
	return tasm.Immediate(v), nil
}

func (p *operandParser) addressing(a *addressing) (tasm.AddressingOperation, error) {
	op := tasm.AddressingOperation{Mnemonic: a.Mnemonic, Store: a.Store}
	var err error
	if op.Kind, err = asm.ParseKind(a.Kind); err != nil {
		return op, err
	}
	if op.Pointer, err = p.register(a.Pointer); err != nil {
		return op, errors.Wrap(err, "pointer")
	}
	if a.Index != "" {
		if op.Index, err = p.register(a.Index); err != nil {
			return op, errors.Wrap(err, "index")
		}
	}
	if a.Operand != "" {
		if op.Operand, err = p.operand(a.Operand); err != nil {
			return op, errors.Wrap(err, "operand")
		}
	}
	if a.Offset != "" {
		if op.Offset, err = p.operand(a.Offset); err != nil {
			return op, errors.Wrap(err, "offset")
		}
	}
	return op, nil
}
