package amd64

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/asmkit/tasm/internal/asm"
)

// codec encodes and decodes one expanded template. Operand positions are indexes into the
// template parameters, or -1 when the template has no such operand.
type codec struct {
	prefix16, rexW bool
	opcode         []byte
	// regInOpcode adds the register to the last opcode byte instead of using ModRM.
	regInOpcode bool
	// ext is the /digit in ModRM.reg, or -1 when the field holds a register.
	ext  int8
	mode mode

	reg, rm, base, index, scale, disp, imm, rel int

	regClass, rmClass  *asm.RegisterClass
	immWidth, relWidth asm.Width

	// memWidth sizes the memory operand when rendering, unless noSize is set.
	memWidth asm.Width
	noSize   bool
	implicit string
}

var _ asm.Codec = (*codec)(nil)

// needsRex returns true for the byte registers only reachable with a REX prefix.
func needsRex(r asm.Register) bool {
	if r.Class() != GPR8 {
		return false
	}
	n := r.EncodingValue()
	return n >= 4 && n < 8
}

// Encode implements asm.Codec.
func (c *codec) Encode(buf *asm.Buffer, args []asm.Location, pc uint64) error {
	start := buf.Len()
	rex := rexPrefixNone
	if c.rexW {
		rex |= rexPrefixW
	}

	var regField, rmField, sib byte
	hasSIB := false
	mod, dispWidth := c.mode.mod(), c.mode.dispWidth()
	if c.ext >= 0 {
		regField = byte(c.ext)
	}
	if c.reg >= 0 {
		r := args[c.reg].Register
		n := byte(r.EncodingValue())
		if n&8 != 0 {
			if c.regInOpcode {
				rex |= rexPrefixB
			} else {
				rex |= rexPrefixR
			}
		}
		if needsRex(r) {
			rex |= rexPrefixDefault
		}
		regField = n & 7
	}
	switch {
	case c.mode == modeRegister:
		r := args[c.rm].Register
		n := byte(r.EncodingValue())
		if n&8 != 0 {
			rex |= rexPrefixB
		}
		if needsRex(r) {
			rex |= rexPrefixDefault
		}
		rmField = n & 7
	case c.base >= 0:
		b := byte(args[c.base].Register.EncodingValue())
		if b&8 != 0 {
			rex |= rexPrefixB
		}
		if c.mode.sib() {
			x := byte(args[c.index].Register.EncodingValue())
			if x&8 != 0 {
				rex |= rexPrefixX
			}
			if x&7 == rmSIB && x&8 == 0 {
				return fmt.Errorf("%s cannot be an index", args[c.index].Register)
			}
			rmField, hasSIB = rmSIB, true
			sib = encodeSIB(scaleShift(args[c.scale].Value), x&7, b&7)
		} else {
			rmField = b & 7
			if rmField == rmSIB {
				// RSP and R12 as base need a SIB byte without index.
				hasSIB = true
				sib = encodeSIB(0, rmSIB, rmSIB)
			}
		}
		if mod == modIndirect && b&7 == rmDisp32 {
			// RBP and R13 have no form without displacement; they take a zero disp8, which
			// decodes as the displacement template.
			mod, dispWidth = modDisp8, asm.Width8
		}
	}

	if c.prefix16 {
		buf.WriteByte(operandSizePrefix)
	}
	if rex != rexPrefixNone {
		buf.WriteByte(rex)
	}
	last := len(c.opcode) - 1
	for _, b := range c.opcode[:last] {
		buf.WriteByte(b)
	}
	if c.regInOpcode {
		buf.WriteByte(c.opcode[last] | regField)
	} else {
		buf.WriteByte(c.opcode[last])
	}
	if c.mode != modeNone {
		buf.WriteByte(encodeModRM(mod, regField, rmField))
		if hasSIB {
			buf.WriteByte(sib)
		}
		switch {
		case dispWidth == 0:
		case c.disp < 0:
			buf.WriteImmediate(dispWidth, 0)
		default:
			buf.WriteImmediate(dispWidth, args[c.disp].Value)
		}
	}
	if c.imm >= 0 {
		buf.WriteImmediate(c.immWidth, args[c.imm].Value)
	}
	if c.rel >= 0 {
		end := pc + uint64(buf.Len()-start+c.relWidth.Bytes())
		d := args[c.rel].Value - int64(end)
		buf.WriteImmediate(c.relWidth, d)
		if !asm.FitsSigned(d, int(c.relWidth)) {
			return &asm.ImpossibleImmediateWidthError{Value: d, Width: asm.SignedEffectiveWidth(d)}
		}
	}
	return nil
}

// Decode implements asm.Codec.
func (c *codec) Decode(ctx *asm.DecodeContext) ([]asm.Location, int, error) {
	rex := ctx.Prefix.Ext
	body := ctx.Body
	args := make([]asm.Location, c.arity())
	pos := 0

	if c.regInOpcode {
		n := int(ctx.Header.Opcode&7) | int(rex&1)<<3
		r, err := register(c.regClass, n, rex)
		if err != nil {
			return nil, 0, err
		}
		args[c.reg] = asm.RegisterLocation(r)
	}

	if c.mode != modeNone {
		if len(body) < 1 {
			return nil, 0, asm.ErrTruncated
		}
		mod, regField, rmField := decodeModRM(body[0])
		pos++
		if mod != c.mode.mod() {
			return nil, 0, asm.ErrMismatch
		}
		if c.ext >= 0 {
			if regField != byte(c.ext) {
				return nil, 0, asm.ErrMismatch
			}
		} else {
			r, err := register(c.regClass, int(regField)|int(rex>>2&1)<<3, rex)
			if err != nil {
				return nil, 0, err
			}
			args[c.reg] = asm.RegisterLocation(r)
		}

		if c.mode == modeRegister {
			r, err := register(c.rmClass, int(rmField)|int(rex&1)<<3, rex)
			if err != nil {
				return nil, 0, err
			}
			args[c.rm] = asm.RegisterLocation(r)
		} else {
			base := int(rmField)
			if rmField == rmSIB {
				if len(body) < 2 {
					return nil, 0, asm.ErrTruncated
				}
				ss, x, b := decodeModRM(body[1])
				pos++
				hasIndex := x != rmSIB || rex&2 != 0
				if hasIndex != c.mode.sib() {
					return nil, 0, asm.ErrMismatch
				}
				if c.mode.sib() {
					index, err := GPR64.Register(int(x) | int(rex>>1&1)<<3).AsIndex()
					if err != nil {
						return nil, 0, asm.ErrMismatch
					}
					args[c.index] = asm.RegisterLocation(index)
					args[c.scale] = asm.Scale(1 << ss)
				} else if b != rmSIB {
					return nil, 0, asm.ErrMismatch
				}
				base = int(b)
			} else if c.mode.sib() {
				return nil, 0, asm.ErrMismatch
			}
			if mod == modIndirect && base == int(rmDisp32) {
				return nil, 0, asm.ErrMismatch
			}
			r, err := GPR64.Register(base | int(rex&1)<<3).AsRole(c.mode.baseRole())
			if err != nil {
				return nil, 0, asm.ErrMismatch
			}
			args[c.base] = asm.RegisterLocation(r)

			if w := c.mode.dispWidth(); w != 0 {
				v, n, err := readSigned(body[pos:], w)
				if err != nil {
					return nil, 0, err
				}
				pos += n
				args[c.disp] = asm.ImmediateOf(w, v)
			}
		}
	}

	if c.imm >= 0 {
		v, n, err := readSigned(body[pos:], c.immWidth)
		if err != nil {
			return nil, 0, err
		}
		pos += n
		args[c.imm] = asm.Immediate(v)
	}
	if c.rel >= 0 {
		d, n, err := readSigned(body[pos:], c.relWidth)
		if err != nil {
			return nil, 0, err
		}
		pos += n
		end := ctx.PC + uint64(ctx.Prefix.Len+int(ctx.Header.Len)+pos)
		args[c.rel] = asm.Address(end + uint64(d))
	}
	return args, pos, nil
}

func (c *codec) arity() int {
	n := 0
	for _, i := range []int{c.reg, c.rm, c.base, c.index, c.scale, c.disp, c.imm, c.rel} {
		n = max(n, i+1)
	}
	return n
}

// register decodes a register operand. Byte registers 4 to 7 without REX are AH to BH,
// which are not modelled.
func register(class *asm.RegisterClass, n int, rex uint8) (asm.Register, error) {
	if class == GPR8 && n >= 4 && n < 8 && rex == 0 {
		return asm.NilRegister, asm.ErrMismatch
	}
	return class.Register(n), nil
}

// readSigned reads a little-endian signed value of width w.
func readSigned(b []byte, w asm.Width) (int64, int, error) {
	n := w.Bytes()
	if len(b) < n {
		return 0, 0, asm.ErrTruncated
	}
	switch w {
	case asm.Width8:
		return int64(int8(b[0])), n, nil
	case asm.Width16:
		return int64(int16(binary.LittleEndian.Uint16(b))), n, nil
	case asm.Width32:
		return int64(int32(binary.LittleEndian.Uint32(b))), n, nil
	}
	return int64(binary.LittleEndian.Uint64(b)), n, nil
}

var ptrNames = map[asm.Width]string{
	asm.Width8:  "byte ptr ",
	asm.Width16: "word ptr ",
	asm.Width32: "dword ptr ",
	asm.Width64: "qword ptr ",
}

// render formats an instruction in Intel syntax, e.g. "mov rax, qword ptr [rbx+rcx*8+0x8]".
func (c *codec) render(t *asm.Template, args []asm.Location) string {
	var parts []string
	for i, a := range args {
		switch {
		case i == c.base:
			parts = append(parts, c.memory(args))
		case i == c.index || i == c.scale || i == c.disp:
		default:
			parts = append(parts, a.String())
		}
	}
	if c.implicit != "" {
		parts = append(parts, c.implicit)
	}
	if len(parts) == 0 {
		return t.Name
	}
	return t.Name + " " + strings.Join(parts, ", ")
}

func (c *codec) memory(args []asm.Location) string {
	var sb strings.Builder
	if !c.noSize {
		sb.WriteString(ptrNames[c.memWidth])
	}
	sb.WriteByte('[')
	sb.WriteString(args[c.base].Register.DisassembledName())
	if c.index >= 0 && c.index < len(args) {
		fmt.Fprintf(&sb, "+%s*%d", args[c.index].Register.DisassembledName(), args[c.scale].Value)
	}
	if c.disp >= 0 && c.disp < len(args) {
		if v := args[c.disp].Value; v < 0 {
			fmt.Fprintf(&sb, "-%#x", uint64(-v))
		} else {
			fmt.Fprintf(&sb, "+%#x", v)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
