package sparc

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/asmkit/tasm/internal/asm"
)

// Catalog returns the SPARC template catalog, building it on first use.
var Catalog = sync.OnceValue(func() *asm.Catalog {
	c := asm.MustCatalog(buildTemplates())
	logrus.WithFields(logrus.Fields{
		"arch":      asm.ArchSPARC,
		"templates": len(c.Templates()),
		"headers":   c.HeaderCount(),
	}).Debug("built template catalog")
	return c
})

// ISA implements asm.ISA for 32-bit SPARC (V8).
type ISA struct{}

var _ asm.ISA = ISA{}

// Arch implements asm.ISA.
func (ISA) Arch() asm.Arch { return asm.ArchSPARC }

// Catalog implements asm.ISA.
func (ISA) Catalog() *asm.Catalog { return Catalog() }

// ByteOrder implements asm.ISA.
func (ISA) ByteOrder() binary.ByteOrder { return binary.BigEndian }

// WordWidth implements asm.ISA.
func (ISA) WordWidth() asm.Width { return asm.Width32 }

// LookupRegister implements asm.ISA.
func (ISA) LookupRegister(name string) (asm.Register, bool) { return LookupRegister(name) }

// DefaultScratch implements asm.ISA. %g1 and %g4 are volatile across calls in the SPARC ABI.
func (ISA) DefaultScratch() []asm.Register { return []asm.Register{G1, G4} }

// ScanPrefix implements asm.ISA. SPARC has no prefixes.
func (ISA) ScanPrefix([]byte) asm.Prefix { return asm.Prefix{} }

// Headers implements asm.ISA. Every instruction is one word, classified by its op fields.
func (ISA) Headers(_ asm.Prefix, src []byte) ([]asm.Header, error) {
	if len(src) < 4 {
		return nil, asm.ErrTruncated
	}
	return []asm.Header{headerOf(binary.BigEndian.Uint32(src))}, nil
}

// lowering accumulates the instructions of one addressing operation.
type lowering struct {
	cat     *asm.Catalog
	insts   []asm.Instruction
	scratch []asm.Register
}

func (l *lowering) emit(name string, args ...asm.Location) error {
	t, err := l.cat.Select(name, args...)
	if err != nil {
		return err
	}
	l.insts = append(l.insts, asm.Instruction{Template: t, Args: args})
	return nil
}

// take returns the next unused scratch register.
func (l *lowering) take() (asm.Register, error) {
	if len(l.scratch) == 0 {
		return asm.NilRegister, fmt.Errorf("not enough scratch registers")
	}
	r := l.scratch[0]
	l.scratch = l.scratch[1:]
	return r, nil
}

// materialize loads a value that does not fit simm13 into a fresh scratch register with
// sethi and or.
func (l *lowering) materialize(v int64) (asm.Register, error) {
	if !asm.FitsSigned(v, 32) {
		return asm.NilRegister, &asm.ImpossibleImmediateWidthError{Value: v, Width: asm.SignedEffectiveWidth(v)}
	}
	t, err := l.take()
	if err != nil {
		return asm.NilRegister, err
	}
	u := uint32(v)
	rt := asm.RegisterLocation(t)
	if err := l.emit("sethi", asm.Immediate(int64(u>>10)), rt); err != nil {
		return asm.NilRegister, err
	}
	return t, l.emit("or", rt, asm.Immediate(int64(u&0x3ff)), rt)
}

// scaleIndex shifts the index into a fresh scratch register.
func (l *lowering) scaleIndex(index asm.Register, size int) (asm.Register, error) {
	t, err := l.take()
	if err != nil {
		return asm.NilRegister, err
	}
	rt := asm.RegisterLocation(t)
	return t, l.emit("sll", asm.RegisterLocation(index), asm.Immediate(int64(bits.TrailingZeros(uint(size)))), rt)
}

func fitsSimm13(v int64) bool { return v >= simm13Min && v <= simm13Max }

// Lower implements asm.ISA. SPARC addresses memory as [rs1], [rs1 + rs2] or
// [rs1 + simm13], so the index is shifted into a scratch register and displacements beyond
// 13 bits are built with sethi and or.
func (i ISA) Lower(op *asm.AddressingOperation, path asm.Path, scratch []asm.Register) ([]asm.Instruction, error) {
	l := &lowering{cat: i.Catalog(), scratch: usableScratch(op, scratch)}
	size := op.Kind.Size(asm.Width32)
	p := op.Pointer.General()
	var mem []asm.Location
	// withOffset addresses [p + r].
	withOffset := func(r asm.Register) []asm.Location {
		base, _ := p.AsBase()
		return []asm.Location{asm.RegisterLocation(base), asm.RegisterLocation(r.General())}
	}

	switch path {
	case asm.PathDirect:
		r, err := p.AsIndirect()
		if err != nil {
			return nil, err
		}
		mem = []asm.Location{asm.RegisterLocation(r)}
	case asm.PathIndexed:
		t, err := l.scaleIndex(op.Index, size)
		if err != nil {
			return nil, err
		}
		mem = withOffset(t)
	case asm.PathRegisterOffset:
		// [p + %g0] is the encoding of [p], which reads back along the direct path.
		if op.Offset.Register.General() == G0 {
			return nil, &asm.UnsupportedRoleError{Register: G0, Role: asm.RoleIndex}
		}
		mem = withOffset(op.Offset.Register)
	case asm.PathRegisterOffsetIndexed:
		t, err := l.scaleIndex(op.Index, size)
		if err != nil {
			return nil, err
		}
		rt := asm.RegisterLocation(t)
		if err := l.emit("add", rt, asm.RegisterLocation(op.Offset.Register.General()), rt); err != nil {
			return nil, err
		}
		mem = withOffset(t)
	case asm.PathDisp8, asm.PathDisp32:
		v := op.Offset.Value
		if fitsSimm13(v) {
			base, _ := p.AsBase()
			mem = []asm.Location{asm.RegisterLocation(base), asm.Immediate(v)}
			break
		}
		t, err := l.materialize(v)
		if err != nil {
			return nil, err
		}
		mem = withOffset(t)
	case asm.PathDisp8Indexed, asm.PathDisp32Indexed:
		v := op.Offset.Value
		addend := asm.Immediate(v)
		if !fitsSimm13(v) {
			t, err := l.materialize(v)
			if err != nil {
				return nil, err
			}
			addend = asm.RegisterLocation(t)
		}
		t, err := l.scaleIndex(op.Index, size)
		if err != nil {
			return nil, err
		}
		rt := asm.RegisterLocation(t)
		if err := l.emit("add", rt, addend, rt); err != nil {
			return nil, err
		}
		mem = withOffset(t)
	default:
		return nil, fmt.Errorf("unknown path %s", path)
	}

	var args []asm.Location
	switch {
	case op.Operand.IsNone():
		args = mem
	case op.Store:
		args = append([]asm.Location{op.Operand}, mem...)
	default:
		args = append(mem, op.Operand)
	}
	t, err := l.cat.SelectFunc(op.Mnemonic, func(t *asm.Template) bool {
		return t.Codec.(*codec).format == formatMemory
	}, args...)
	if err != nil {
		return nil, err
	}
	return append(l.insts, asm.Instruction{Template: t, Args: args}), nil
}

// usableScratch drops the scratch registers op reads or writes, and %g0.
func usableScratch(op *asm.AddressingOperation, scratch []asm.Register) []asm.Register {
	used := map[asm.Register]bool{op.Pointer.General(): true, op.Index.General(): true, G0: true}
	if op.Offset.Category == asm.LocationIntegerRegister {
		used[op.Offset.Register.General()] = true
	}
	if op.Operand.Category == asm.LocationIntegerRegister {
		used[op.Operand.Register.General()] = true
	}
	var ret []asm.Register
	for _, r := range scratch {
		if r.Class() == GPR && !used[r.General()] {
			ret = append(ret, r.General())
		}
	}
	return ret
}

// isImm reports whether inst is the simm13 form of name.
func isImm(inst asm.Instruction, name string) bool {
	return inst.Template.Name == name && len(inst.Args) == 3 && inst.Args[1].Category.IsImmediate()
}

// Reconstruct implements asm.ISA, recognizing the sequences Lower emits.
func (ISA) Reconstruct(kind asm.Kind, insts []asm.Instruction) (asm.AddressingOperation, asm.Path, int, error) {
	n := 0
	next := func() (asm.Instruction, bool) {
		if n < len(insts) {
			return insts[n], true
		}
		return asm.Instruction{}, false
	}

	// sethi %hi(v), t2; or t2, %lo(v), t2
	var value int64
	var wide asm.Register
	if hi, ok := next(); ok && hi.Template.Name == "sethi" && n+1 < len(insts) {
		if lo := insts[n+1]; isImm(lo, "or") && lo.Args[0].Register == hi.Args[1].Register && lo.Args[2].Register == hi.Args[1].Register {
			value = int64(int32(uint32(hi.Args[0].Value)<<10 | uint32(lo.Args[1].Value)))
			wide = hi.Args[1].Register
			n += 2
		}
	}

	// sll index, log2(size), t1 [; add t1, addend, t1]
	var index, scaled asm.Register
	var addend asm.Location
	shift := int64(bits.TrailingZeros(uint(kind.Size(asm.Width32))))
	if sll, ok := next(); ok && isImm(sll, "sll") && sll.Args[1].Value == shift {
		index, scaled = sll.Args[0].Register, sll.Args[2].Register
		n++
		if add, ok := next(); ok && add.Template.Name == "add" && add.Args[0].Register == scaled && add.Args[2].Register == scaled {
			addend = add.Args[1]
			n++
		}
	}

	last, ok := next()
	if !ok {
		return asm.AddressingOperation{}, 0, 0, asm.ErrNotAddressing
	}
	n++
	op, path, err := asm.ReconstructInstruction(kind, asm.Width32, last)
	if err != nil {
		return op, path, n, err
	}
	if n == 1 {
		return op, path, 1, nil
	}

	mismatch := fmt.Errorf("%w: unexpected sequence ending in %s", asm.ErrNotAddressing, last)
	if path != asm.PathRegisterOffset {
		return op, 0, n, mismatch
	}
	through := op.Offset.Register
	switch {
	case !index.Valid():
		// sethi/or only.
		if through != wide {
			return op, 0, n, mismatch
		}
		op.Offset, path = asm.Immediate(value), asm.PathDisp32
	case through != scaled:
		return op, 0, n, mismatch
	case addend.IsNone():
		if wide.Valid() {
			return op, 0, n, mismatch
		}
		op.Offset, op.Index, path = asm.Location{}, index, asm.PathIndexed
	case addend.Category.IsImmediate():
		if wide.Valid() {
			return op, 0, n, mismatch
		}
		op.Offset, op.Index, path = asm.Immediate(addend.Value), index, asm.PathDisp8Indexed
		if asm.SignedEffectiveWidth(addend.Value) > asm.Width8 {
			path = asm.PathDisp32Indexed
		}
	case wide.Valid():
		if addend.Register != wide {
			return op, 0, n, mismatch
		}
		op.Offset, op.Index, path = asm.Immediate(value), index, asm.PathDisp32Indexed
	default:
		op.Offset, op.Index, path = asm.RegisterLocation(addend.Register), index, asm.PathRegisterOffsetIndexed
	}
	return op, path, n, nil
}

// PatchCallSite implements asm.ISA for the call instruction.
func (ISA) PatchCallSite(code []byte, base uint64, offset int, target uint64) error {
	if offset < 0 || offset+4 > len(code) {
		return fmt.Errorf("call site at offset %d out of range", offset)
	}
	w := binary.BigEndian.Uint32(code[offset:])
	if w>>30 != 1 {
		return fmt.Errorf("no call at offset %d: word %#08x", offset, w)
	}
	d, err := displacement(int64(target), base+uint64(offset), 30)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(code[offset:], 1<<30|d)
	return nil
}
