package asm

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"
)

// Disassembled is one decoded instruction. It is never modified after decoding.
type Disassembled struct {
	// Address is the absolute address of the first byte.
	Address uint64
	// Position is the offset of the first byte in the decoded stream.
	Position int
	// Bytes are the raw bytes consumed, prefixes included.
	Bytes []byte
	// Template is InlineByte when no template matched.
	Template *Template
	Args     []Location
}

// Inline returns true for the inline-byte pseudo-instruction.
func (d *Disassembled) Inline() bool { return d.Template == InlineByte }

// Instruction returns the template application d decoded to.
func (d *Disassembled) Instruction() Instruction {
	return Instruction{Template: d.Template, Args: d.Args}
}

// String implements fmt.Stringer.
func (d *Disassembled) String() string {
	return d.Template.Format(d.Args)
}

// Listing renders d as one line of a listing: address, raw bytes and text.
func (d *Disassembled) Listing() string {
	var hex strings.Builder
	for i, b := range d.Bytes {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02x", b)
	}
	return fmt.Sprintf("%#08x  %-30s %s", d.Address, hex.String(), d)
}

// Disassembler decodes byte streams against a template catalog. A Disassembler is used by one
// goroutine at a time; the catalog it reads is shared.
type Disassembler struct {
	isa  ISA
	opts Options
	// buf holds re-encodings of candidate decodes.
	buf *Buffer
}

// NewDisassembler returns a Disassembler for isa. opts.Base is the address of code[0].
func NewDisassembler(isa ISA, opts Options) *Disassembler {
	return &Disassembler{isa: isa, opts: opts, buf: NewBuffer(isa.ByteOrder())}
}

// Instructions returns the lazy sequence of instructions in code starting at offset. The
// sequence ends at the end of code or after the first error, which is a
// *TruncatedInputError.
//
// Decoding may start anywhere; it always terminates, but only makes sense from an
// instruction boundary.
func (d *Disassembler) Instructions(code []byte, offset int) iter.Seq2[*Disassembled, error] {
	return func(yield func(*Disassembled, error) bool) {
		for pos := offset; pos < len(code); {
			inst, err := d.DecodeAt(code, pos)
			if err != nil {
				var te *TruncatedInputError
				if errors.As(err, &te) {
					te.Consumed = pos - offset
				}
				yield(nil, err)
				return
			}
			if !yield(inst, nil) {
				return
			}
			pos += len(inst.Bytes)
		}
	}
}

// All decodes the whole of code.
func (d *Disassembler) All(code []byte) ([]*Disassembled, error) {
	var ret []*Disassembled
	for inst, err := range d.Instructions(code, 0) {
		if err != nil {
			return ret, err
		}
		ret = append(ret, inst)
	}
	return ret, nil
}

// DecodeAt decodes the instruction at code[pos:]. It consumes at least one byte unless it
// fails.
func (d *Disassembler) DecodeAt(code []byte, pos int) (*Disassembled, error) {
	src := code[pos:]
	pc := d.opts.Base + uint64(pos)
	prefix := d.isa.ScanPrefix(src)
	rest := src[prefix.Len:]
	headers, err := d.isa.Headers(prefix, rest)
	if errors.Is(err, ErrTruncated) {
		return nil, &TruncatedInputError{Position: pos}
	} else if err != nil {
		return nil, err
	}

	truncated := false
	cat := d.isa.Catalog()
	for _, h := range headers {
		ctx := DecodeContext{Prefix: prefix, Header: h, Body: rest[h.Len:], PC: pc}
		for _, t := range cat.TemplatesForHeader(h) {
			args, n, err := t.Codec.Decode(&ctx)
			switch {
			case errors.Is(err, ErrTruncated):
				truncated = true
				continue
			case err != nil:
				continue
			}
			size := prefix.Len + int(h.Len) + n
			raw := src[:size:size]
			if !d.opts.Lenient && !d.canonical(t, args, raw, pc) {
				continue
			}
			return &Disassembled{Address: pc, Position: pos, Bytes: raw, Template: t, Args: args}, nil
		}
	}
	if truncated {
		return nil, &TruncatedInputError{Position: pos}
	}
	return d.inline(src, pos, pc), nil
}

// canonical reports whether re-encoding args with t reproduces raw exactly. This rejects
// byte sequences a template can parse but would never emit.
func (d *Disassembler) canonical(t *Template, args []Location, raw []byte, pc uint64) bool {
	if t.Check(args) != nil {
		return false
	}
	d.buf.Reset()
	if err := t.Codec.Encode(d.buf, args, pc); err != nil {
		return false
	}
	return bytes.Equal(d.buf.Bytes(), raw)
}

func (d *Disassembler) inline(src []byte, pos int, pc uint64) *Disassembled {
	d.opts.logger().WithFields(logrus.Fields{
		"arch":    d.isa.Arch(),
		"address": fmt.Sprintf("%#x", pc),
		"byte":    fmt.Sprintf("0x%02x", src[0]),
	}).Debug("no template matches, emitting inline byte")
	return &Disassembled{
		Address:  pc,
		Position: pos,
		Bytes:    src[:1:1],
		Template: InlineByte,
		Args:     []Location{Immediate(int64(src[0]))},
	}
}
