package asm

import (
	"errors"
	"fmt"
)

// Path is one of the eight mutually exclusive shapes of an addressing operation.
type Path byte

const (
	// PathDirect is [pointer].
	PathDirect Path = iota
	// PathIndexed is pointer[index * scale].
	PathIndexed
	// PathRegisterOffset is [pointer + offsetRegister].
	PathRegisterOffset
	// PathRegisterOffsetIndexed is [pointer + offsetRegister][index * scale].
	PathRegisterOffsetIndexed
	// PathDisp8 is [pointer + disp8].
	PathDisp8
	// PathDisp8Indexed is pointer[index * scale + disp8].
	PathDisp8Indexed
	// PathDisp32 is [pointer + disp32].
	PathDisp32
	// PathDisp32Indexed is pointer[index * scale + disp32].
	PathDisp32Indexed
	pathCount
)

var pathNames = [pathCount]string{
	PathDirect:                "direct",
	PathIndexed:               "indexed",
	PathRegisterOffset:        "register offset",
	PathRegisterOffsetIndexed: "register offset, indexed",
	PathDisp8:                 "imm8, no index",
	PathDisp8Indexed:          "imm8, indexed",
	PathDisp32:                "imm32, no index",
	PathDisp32Indexed:         "imm32, indexed",
}

// String implements fmt.Stringer.
func (p Path) String() string {
	if p < pathCount {
		return pathNames[p]
	}
	return fmt.Sprintf("Path(%d)", byte(p))
}

// Indexed returns true for the paths carrying an index register.
func (p Path) Indexed() bool { return p&1 == 1 }

// AddressingOperation is an instruction accessing memory relative to a pointer register,
// optionally displaced by an offset register or immediate and by a scaled index.
type AddressingOperation struct {
	Mnemonic string
	// Kind is the type of the element accessed. Its size is the index scale.
	Kind Kind
	// Operand is the non-memory operand, or none for single-operand instructions.
	Operand Location
	// Store makes the memory operand the destination.
	Store   bool
	Pointer Register
	// Offset is none, an integer register, or an immediate.
	Offset Location
	// Index is NilRegister when the operation is not indexed.
	Index Register
}

// addressString renders the memory operand, given the element size of the index.
func (op *AddressingOperation) addressString(size int) string {
	p := op.Pointer.DisassembledName()
	var off string
	if !op.Offset.IsNone() {
		off = op.Offset.String()
	}
	switch {
	case !op.Index.Valid() && off == "":
		return fmt.Sprintf("[%s]", p)
	case !op.Index.Valid():
		return fmt.Sprintf("[%s + %s]", p, off)
	case off == "":
		return fmt.Sprintf("%s[%s * %d]", p, op.Index.DisassembledName(), size)
	default:
		return fmt.Sprintf("%s[%s * %d + %s]", p, op.Index.DisassembledName(), size, off)
	}
}

// Format renders op for an architecture of the given word width.
func (op *AddressingOperation) Format(word Width) string {
	mem := op.addressString(op.Kind.Size(word))
	switch {
	case op.Operand.IsNone():
		return fmt.Sprintf("%s %s", op.Mnemonic, mem)
	case op.Store:
		return fmt.Sprintf("%s %s, %s", op.Mnemonic, mem, op.Operand)
	default:
		return fmt.Sprintf("%s %s, %s", op.Mnemonic, op.Operand, mem)
	}
}

// SelectPath returns the one path op is emitted along.
//
// The offset must be in OffsetCategories of its own kind: an integer register or an 8, 16
// or 32 bit immediate. An immediate offset takes the 8-bit path when its value fits a signed
// byte and the 32-bit path otherwise; there is no 16-bit displacement path.
func SelectPath(op *AddressingOperation) (Path, error) {
	var p Path
	switch c := op.Offset.Category; {
	case c == LocationNone:
		p = PathDirect
	case !OffsetCategories(offsetKind(op.Offset)).Contains(c):
		return 0, &ImpossibleLocationCategoryError{Category: c}
	case c == LocationIntegerRegister:
		p = PathRegisterOffset
	default:
		if reason := op.Offset.wellFormed(); reason != "" {
			return 0, &IllegalOperandError{Reason: "offset " + reason}
		}
		p = PathDisp32
		if SignedEffectiveWidth(op.Offset.Value) == Width8 {
			p = PathDisp8
		}
	}
	if op.Index.Valid() {
		p++
	}
	return p, nil
}

// offsetKind returns the kind of the value an offset location holds.
func offsetKind(l Location) Kind {
	switch c := l.Category; {
	case c == LocationIntegerRegister && l.Register.Valid():
		return KindOfWidth(l.Register.Width())
	case c.IsImmediate():
		return KindOfWidth(c.immediateWidth())
	}
	return KindLong
}

// Resolve selects the path of op and lowers it through isa. scratch overrides the
// registers of isa.DefaultScratch.
func Resolve(isa ISA, op *AddressingOperation, scratch []Register) ([]Instruction, Path, error) {
	if !op.Pointer.Valid() {
		return nil, 0, errors.New("addressing operation without a pointer register")
	}
	path, err := SelectPath(op)
	if err != nil {
		return nil, 0, err
	}
	if len(scratch) == 0 {
		scratch = isa.DefaultScratch()
	}
	insts, err := isa.Lower(op, path, scratch)
	if err != nil {
		return nil, 0, fmt.Errorf("%s along %s path: %w", op.Format(isa.WordWidth()), path, err)
	}
	return insts, path, nil
}

// ErrNotAddressing is returned by reconstruction when an instruction has no memory operand
// or a shape no path produces.
var ErrNotAddressing = errors.New("not an addressing operation")

// ReconstructInstruction recovers the addressing operation encoded by a single instruction.
// Instruction sequences are left to ISA.Reconstruct.
func ReconstructInstruction(kind Kind, word Width, inst Instruction) (AddressingOperation, Path, error) {
	op := AddressingOperation{Mnemonic: inst.Template.Name, Kind: kind}
	var base, offset, index Register
	var scale, disp Location
	var dispParam *Parameter
	for i := range inst.Template.Params {
		p := &inst.Template.Params[i]
		arg := inst.Args[i]
		switch p.Kind {
		case ParamBase:
			base = arg.Register
		case ParamOffset:
			offset = arg.Register
		case ParamIndex:
			index = arg.Register
		case ParamScale:
			scale = arg
		case ParamDisplacement:
			disp, dispParam = arg, p
		case ParamTarget:
			return op, 0, ErrNotAddressing
		default:
			if !op.Operand.IsNone() {
				return op, 0, ErrNotAddressing
			}
			op.Operand = arg
			op.Store = p.Kind != ParamDestination
		}
	}
	if !base.Valid() {
		return op, 0, ErrNotAddressing
	}
	if op.Operand.Category == LocationIntegerRegister {
		op.Operand.Register = op.Operand.Register.General()
	}
	op.Pointer = base.General()
	if offset.Valid() {
		op.Offset = RegisterLocation(offset.General())
	}
	if index.Valid() {
		switch size := int64(kind.Size(word)); scale.Value {
		case size:
			op.Index = index.General()
		case 1:
			if !offset.Valid() && disp.IsNone() {
				op.Offset = RegisterLocation(index.General())
				break
			}
			return op, 0, fmt.Errorf("%w: unscaled index next to an offset", ErrNotAddressing)
		default:
			return op, 0, fmt.Errorf("%w: scale %d does not match %s", ErrNotAddressing, scale.Value, kind)
		}
	}
	if !disp.IsNone() {
		op.Offset = Immediate(disp.Value)
	}

	var path Path
	switch {
	case !op.Offset.IsNone() && op.Offset.Category == LocationIntegerRegister:
		path = PathRegisterOffset
	case !disp.IsNone():
		// A displacement field of fixed byte size selects its path. A range-limited field
		// holds either, and the value decides.
		path = PathDisp8
		if dispParam.Max > dispParam.Min {
			if SignedEffectiveWidth(disp.Value) > Width8 {
				path = PathDisp32
			}
		} else if dispParam.Accepts.Contains(LocationImmediate32) {
			path = PathDisp32
		}
	default:
		path = PathDirect
	}
	if op.Index.Valid() {
		path++
	}
	return op, path, nil
}
