package asm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// Label names a logical instruction of an assembly unit. The label one past the last
// instruction names the end of the code.
type Label int

// Options are the knobs shared by Assembler and Disassembler.
type Options struct {
	// Base is the address of the first byte of the code.
	Base uint64
	// Scratch overrides ISA.DefaultScratch when lowering addressing operations.
	Scratch []Register
	// Logger receives debug traces. Defaults to logrus.StandardLogger.
	Logger logrus.FieldLogger
	// MaxRelaxationPasses bounds branch relaxation. Zero means no bound.
	MaxRelaxationPasses int
	// Lenient disables the re-encoding check of decoded instructions.
	Lenient bool
}

func (o *Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// Code is the output of an assembly unit.
type Code struct {
	Base  uint64
	Bytes []byte
	// Offsets maps each logical instruction, plus the end label, to its byte offset.
	Offsets []int
}

// Address returns the absolute address of a label.
func (c *Code) Address(l Label) uint64 { return c.Base + uint64(c.Offsets[l]) }

// unit is one logical instruction: a template application, a mnemonic to select a template
// for, or an addressing operation to resolve.
type unit struct {
	template *Template
	name     string
	args     []Location
	op       *AddressingOperation
}

// Assembler turns a sequence of logical instructions into bytes. An Assembler is used by
// one goroutine at a time.
type Assembler struct {
	isa   ISA
	opts  Options
	units []unit
}

// NewAssembler returns an Assembler for isa.
func NewAssembler(isa ISA, opts Options) *Assembler {
	return &Assembler{isa: isa, opts: opts}
}

// Len returns the number of logical instructions emitted so far.
func (a *Assembler) Len() int { return len(a.units) }

// Reset drops every emitted instruction.
func (a *Assembler) Reset() { a.units = a.units[:0] }

// Emit appends t applied to args.
func (a *Assembler) Emit(t *Template, args ...Location) Label {
	a.units = append(a.units, unit{template: t, args: args})
	return Label(len(a.units) - 1)
}

// EmitNamed appends the first template of name accepting args.
func (a *Assembler) EmitNamed(name string, args ...Location) Label {
	a.units = append(a.units, unit{name: name, args: args})
	return Label(len(a.units) - 1)
}

// EmitAddressing appends an addressing operation.
func (a *Assembler) EmitAddressing(op AddressingOperation) Label {
	a.units = append(a.units, unit{op: &op})
	return Label(len(a.units) - 1)
}

// lowered is a machine instruction and the logical instruction it belongs to.
type lowered struct {
	Instruction
	unit int
}

// Assemble encodes every emitted instruction. Any failure aborts the whole unit and no code
// is returned.
func (a *Assembler) Assemble() (*Code, error) {
	insts, err := a.lower()
	if err != nil {
		return nil, err
	}

	log := a.opts.logger()
	buf := NewBuffer(a.isa.ByteOrder())
	// layout holds the unit offsets the previous pass produced. The first pass has none and
	// only sizes the instructions.
	var layout []int
	for pass := 1; ; pass++ {
		if limit := a.opts.MaxRelaxationPasses; limit > 0 && pass > limit {
			return nil, fmt.Errorf("branch relaxation did not converge in %d passes", limit)
		}
		offsets, widened, err := a.encode(buf, insts, layout)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"arch": a.isa.Arch(), "pass": pass, "widened": widened}).Debug("assembled")
		if widened == 0 && slices.Equal(layout, offsets) {
			code := &Code{Base: a.opts.Base, Offsets: offsets}
			code.Bytes = append([]byte(nil), buf.Bytes()...)
			return code, nil
		}
		layout = offsets
	}
}

// lower turns every unit into validated machine instructions.
func (a *Assembler) lower() ([]lowered, error) {
	var ret []lowered
	cat := a.isa.Catalog()
	for i, u := range a.units {
		switch {
		case u.op != nil:
			insts, _, err := Resolve(a.isa, u.op, a.opts.Scratch)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			for _, inst := range insts {
				if err := inst.Template.Check(inst.Args); err != nil {
					return nil, fmt.Errorf("instruction %d: %w", i, err)
				}
				ret = append(ret, lowered{Instruction: inst, unit: i})
			}
		case u.template != nil:
			if err := u.template.Check(u.args); err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			ret = append(ret, lowered{Instruction: Instruction{Template: u.template, Args: u.args}, unit: i})
		default:
			t, err := cat.Select(u.name, u.args...)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			ret = append(ret, lowered{Instruction: Instruction{Template: t, Args: u.args}, unit: i})
		}
		for j, arg := range u.args {
			if arg.Category == LocationLabel && (arg.Value < 0 || arg.Value > int64(len(a.units))) {
				return nil, &IllegalOperandError{Template: ret[len(ret)-1].Template, Position: j,
					Reason: fmt.Sprintf("label %d out of range", arg.Value)}
			}
		}
	}
	return ret, nil
}

// encode runs one layout pass. Short branches whose displacement does not fit are widened in
// place and counted. Without a layout, labels resolve to the branch itself.
func (a *Assembler) encode(buf *Buffer, insts []lowered, layout []int) (offsets []int, widened int, err error) {
	buf.Reset()
	offsets = make([]int, len(a.units)+1)
	for i := range offsets {
		offsets[i] = -1
	}
	resolved := make([]Location, 0, 8)
	for i := range insts {
		inst := &insts[i]
		if offsets[inst.unit] < 0 {
			offsets[inst.unit] = buf.Len()
		}
		start := buf.Len()
		pc := a.opts.Base + uint64(start)
		resolved = resolved[:0]
		for _, arg := range inst.Args {
			if arg.Category == LocationLabel {
				if layout == nil {
					arg = Address(pc)
				} else {
					arg = Address(a.opts.Base + uint64(layout[arg.Value]))
				}
			}
			resolved = append(resolved, arg)
		}

		err = inst.Template.Codec.Encode(buf, resolved, pc)
		var wide *ImpossibleImmediateWidthError
		if errors.As(err, &wide) && inst.Template.Long != nil {
			buf.Truncate(start)
			inst.Template = inst.Template.Long
			widened++
			err = inst.Template.Codec.Encode(buf, resolved, pc)
		}
		if err != nil {
			buf.Truncate(start)
			return nil, 0, fmt.Errorf("instruction %d (%s): %w", inst.unit, inst.Instruction, err)
		}
	}
	offsets[len(a.units)] = buf.Len()
	// Units lowered to nothing share the offset of the next unit.
	for i := len(a.units) - 1; i >= 0; i-- {
		if offsets[i] < 0 {
			offsets[i] = offsets[i+1]
		}
	}
	return offsets, widened, nil
}

