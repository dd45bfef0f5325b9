package asm

import (
	"fmt"
	"strings"
)

// ParamKind is the semantic kind of a template parameter.
type ParamKind byte

const (
	ParamDestination ParamKind = iota
	ParamSource
	// ParamBase is the register holding the address a memory operand is relative to.
	ParamBase
	// ParamOffset is a register added unscaled to ParamBase.
	ParamOffset
	ParamIndex
	ParamScale
	ParamDisplacement
	ParamImmediate
	// ParamTarget is a branch or call destination.
	ParamTarget
)

// IsMemory returns true for the parameters describing a memory operand.
func (k ParamKind) IsMemory() bool {
	return k >= ParamBase && k <= ParamDisplacement
}

// Parameter describes one operand slot of a Template.
type Parameter struct {
	Kind    ParamKind
	Accepts LocationCategories
	// Class and Role constrain register operands.
	Class *RegisterClass
	Role  Role
	// Min and Max bound immediate values when Max > Min.
	Min, Max int64
}

// check returns why arg does not fit p, or "".
func (p *Parameter) check(arg Location) string {
	if !p.Accepts.Contains(arg.Category) {
		return fmt.Sprintf("%s is not in %s", arg.Category, p.Accepts)
	}
	if reason := arg.wellFormed(); reason != "" {
		return reason
	}
	if arg.Category == LocationIntegerRegister {
		r := arg.Register
		if r.class != p.Class {
			return fmt.Sprintf("register %s is not a %s register", r, p.Class.Name)
		}
		if r.role != p.Role {
			return fmt.Sprintf("register %s is viewed as %s, want %s", r, r.role, p.Role)
		}
	}
	if arg.Category.IsImmediate() && p.Max > p.Min && (arg.Value < p.Min || arg.Value > p.Max) {
		return fmt.Sprintf("value %d out of range [%d, %d]", arg.Value, p.Min, p.Max)
	}
	return ""
}

// Header is the lookup key of a template during decoding: an architecture-specific prefix
// state and the opcode bytes following it.
type Header struct {
	// Prefix is the part of the prefix state that selects templates, e.g. operand size.
	Prefix uint8
	Opcode uint32
	// Len is the number of opcode bytes in the header. Zero means the template decodes
	// the whole instruction itself.
	Len uint8
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("header(prefix=%#x, opcode=%#x, len=%d)", h.Prefix, h.Opcode, h.Len)
}

// Prefix is the result of scanning architecture-specific prefix bytes.
type Prefix struct {
	// Key is copied into Header.Prefix.
	Key uint8
	// Ext carries extension bits used while decoding operands, e.g. REX.R/X/B.
	Ext uint8
	// Len is the number of prefix bytes consumed.
	Len int
}

// DecodeContext is the input of Codec.Decode.
type DecodeContext struct {
	Prefix Prefix
	Header Header
	// Body starts right after the header.
	Body []byte
	// PC is the address of the first byte of the instruction, prefixes included.
	PC uint64
}

// Codec encodes and decodes the operands of one template.
type Codec interface {
	// Encode appends the whole instruction, prefixes included. args are validated and
	// labels are already resolved to addresses. pc is the address of the first byte.
	Encode(buf *Buffer, args []Location, pc uint64) error
	// Decode reads operands from ctx.Body and returns them together with the number of
	// body bytes consumed. It returns ErrTruncated or ErrMismatch when the bytes cannot
	// be this template.
	Decode(ctx *DecodeContext) ([]Location, int, error)
}

// Renderer formats a decoded or symbolic instruction.
type Renderer func(t *Template, args []Location) string

// Template binds a mnemonic to an operand shape and its encoding.
type Template struct {
	Name string
	// Form describes the operand shape, e.g. "r64, [base + disp8]".
	Form string
	// Headers lists every header the template can start with. The first is canonical.
	Headers []Header
	Params  []Parameter
	// Width is the operand size of the instruction.
	Width Width
	// Long is the wider variant a branch is relaxed to when its displacement does not fit.
	Long *Template
	// Serial is the position of the template in its catalog.
	Serial int

	Codec  Codec
	Render Renderer
}

// String implements fmt.Stringer.
func (t *Template) String() string {
	if t == nil {
		return "<nil template>"
	}
	if t.Form == "" {
		return t.Name
	}
	return t.Name + " " + t.Form
}

// Check validates args against the parameters of t.
func (t *Template) Check(args []Location) error {
	if len(args) != len(t.Params) {
		return &IllegalOperandError{Template: t, Position: min(len(args), len(t.Params)),
			Reason: fmt.Sprintf("got %d operands, want %d", len(args), len(t.Params))}
	}
	for i := range t.Params {
		if reason := t.Params[i].check(args[i]); reason != "" {
			return &IllegalOperandError{Template: t, Position: i, Reason: reason}
		}
	}
	return nil
}

// Format renders args in the syntax of t.
func (t *Template) Format(args []Location) string {
	if t.Render != nil {
		return t.Render(t, args)
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	if len(parts) == 0 {
		return t.Name
	}
	return t.Name + " " + strings.Join(parts, ", ")
}

// Instruction is a template applied to concrete operands.
type Instruction struct {
	Template *Template
	Args     []Location
}

// String implements fmt.Stringer.
func (i Instruction) String() string { return i.Template.Format(i.Args) }

// InlineByte is the pseudo-template the disassembler falls back to for a byte no template
// matches. Its single operand is the byte as an 8-bit immediate.
var InlineByte = &Template{
	Name:   ".byte",
	Form:   "imm8",
	Params: []Parameter{{Kind: ParamImmediate, Accepts: Categories(LocationImmediate8, LocationImmediate16), Min: 0, Max: 0xff}},
	Width:  Width8,
	Codec:  inlineByteCodec{},
	Render: func(_ *Template, args []Location) string {
		return fmt.Sprintf(".byte 0x%02x", args[0].Value)
	},
}

type inlineByteCodec struct{}

// Encode implements Codec.Encode.
func (inlineByteCodec) Encode(buf *Buffer, args []Location, _ uint64) error {
	buf.WriteByte(byte(args[0].Value))
	return nil
}

// Decode implements Codec.Decode.
func (inlineByteCodec) Decode(ctx *DecodeContext) ([]Location, int, error) {
	if len(ctx.Body) == 0 {
		return nil, 0, ErrTruncated
	}
	return []Location{Immediate(int64(ctx.Body[0]))}, 1, nil
}

