package amd64

import (
	"fmt"
	"strings"

	"github.com/asmkit/tasm/internal/asm"
)

// mode is the shape of the r/m operand.
type mode byte

const (
	modeNone mode = iota
	// modeRegister is r/m holding a register (mod=11).
	modeRegister
	// modeIndirect is [base] (mod=00).
	modeIndirect
	// modeDisp8 is [base + disp8] (mod=01).
	modeDisp8
	// modeDisp32 is [base + disp32] (mod=10).
	modeDisp32
	// modeSIB is [base + index*scale] (mod=00, rm=100).
	modeSIB
	// modeSIBDisp8 is [base + index*scale + disp8] (mod=01, rm=100).
	modeSIBDisp8
	// modeSIBDisp32 is [base + index*scale + disp32] (mod=10, rm=100).
	modeSIBDisp32
)

// memoryModes are the memory forms of r/m in the order templates are declared.
var memoryModes = []mode{modeIndirect, modeDisp8, modeDisp32, modeSIB, modeSIBDisp8, modeSIBDisp32}

func (m mode) mod() byte {
	switch m {
	case modeDisp8, modeSIBDisp8:
		return modDisp8
	case modeDisp32, modeSIBDisp32:
		return modDisp32
	case modeRegister:
		return modRegister
	}
	return modIndirect
}

func (m mode) sib() bool { return m >= modeSIB }

func (m mode) dispWidth() asm.Width {
	switch m {
	case modeDisp8, modeSIBDisp8:
		return asm.Width8
	case modeDisp32, modeSIBDisp32:
		return asm.Width32
	}
	return 0
}

// baseRole is the role the base register is viewed in when the mode has no displacement.
func (m mode) baseRole() asm.Role {
	if m == modeIndirect || m == modeSIB {
		return asm.RoleIndirect
	}
	return asm.RoleBase
}

// buildTemplates expands the declarative table into templates, in table order.
func buildTemplates() []*asm.Template {
	var ret []*asm.Template
	longs := map[string]*asm.Template{}
	for i := range instructions {
		in := &instructions[i]
		for _, w := range in.widths {
			for _, t := range in.expand(w) {
				if in.rel == asm.Width32 {
					longs[t.Name] = t
				}
				ret = append(ret, t)
			}
		}
	}
	for _, t := range ret {
		if c := t.Codec.(*codec); c.rel >= 0 && c.relWidth == asm.Width8 {
			t.Long = longs[t.Name]
		}
	}
	return ret
}

// expand returns the templates of in at operand width w.
func (in *insn) expand(w asm.Width) []*asm.Template {
	rmWidth := w
	if in.rmWidth != 0 {
		rmWidth = in.rmWidth
	}
	immWidth := in.imm
	if immWidth == 0 {
		immWidth = min(w, asm.Width32)
	}
	var key uint8
	if w == asm.Width16 {
		key |= keyOperandSize16
	}
	rexW := w == asm.Width64 && !in.default64
	if rexW {
		key |= keyRexW
	}

	newBuilder := func() *builder {
		return &builder{
			t: &asm.Template{Name: in.name, Width: w},
			c: &codec{
				prefix16: w == asm.Width16, rexW: rexW, opcode: in.opcode, ext: in.ext,
				reg: -1, rm: -1, base: -1, index: -1, scale: -1, disp: -1, imm: -1, rel: -1,
				memWidth: rmWidth, noSize: in.memOnly, implicit: in.implicit,
			},
		}
	}
	headers := []asm.Header{header(key, in.opcode, 0)}

	switch in.form {
	case formNone:
		return []*asm.Template{newBuilder().finish(headers)}
	case formO, formOI:
		b := newBuilder()
		b.c.regInOpcode = true
		b.register(asm.ParamDestination, classOf(w))
		if in.form == formOI {
			b.immediate(immWidth)
		}
		headers = headers[:0]
		for r := byte(0); r < 8; r++ {
			headers = append(headers, header(key, in.opcode, r))
		}
		return []*asm.Template{b.finish(headers)}
	case formI:
		b := newBuilder()
		b.immediate(immWidth)
		return []*asm.Template{b.finish(headers)}
	case formD:
		b := newBuilder()
		b.target(in.rel)
		return []*asm.Template{b.finish(headers)}
	}

	modes := memoryModes
	if !in.memOnly {
		modes = append([]mode{modeRegister}, memoryModes...)
	}
	ret := make([]*asm.Template, 0, len(modes))
	for _, m := range modes {
		b := newBuilder()
		b.c.mode = m
		switch in.form {
		case formRM, formRMI:
			b.register(asm.ParamDestination, classOf(w))
			b.rm(m, asm.ParamSource, classOf(rmWidth))
		case formMR:
			b.rm(m, asm.ParamDestination, classOf(rmWidth))
			b.register(asm.ParamSource, classOf(w))
		case formM, formMI:
			b.rm(m, asm.ParamDestination, classOf(rmWidth))
		}
		if in.form == formMI || in.form == formRMI {
			b.immediate(immWidth)
		}
		ret = append(ret, b.finish(headers))
	}
	return ret
}

// header returns the header of an opcode, adding r to its last byte.
func header(key uint8, opcode []byte, r byte) asm.Header {
	var op uint32
	for i, b := range opcode {
		if i == len(opcode)-1 {
			b += r
		}
		op = op<<8 | uint32(b)
	}
	return asm.Header{Prefix: key, Opcode: op, Len: uint8(len(opcode))}
}

// builder accumulates the parameters, form and codec of one template.
type builder struct {
	t    *asm.Template
	c    *codec
	form []string
}

func (b *builder) add(p asm.Parameter) int {
	b.t.Params = append(b.t.Params, p)
	return len(b.t.Params) - 1
}

func (b *builder) register(kind asm.ParamKind, class *asm.RegisterClass) {
	b.c.reg = b.add(asm.Parameter{Kind: kind, Accepts: asm.G, Class: class, Role: asm.RoleGeneral})
	b.c.regClass = class
	b.form = append(b.form, fmt.Sprintf("r%d", class.Width()))
}

func (b *builder) rm(m mode, kind asm.ParamKind, class *asm.RegisterClass) {
	if m == modeRegister {
		b.c.rm = b.add(asm.Parameter{Kind: kind, Accepts: asm.G, Class: class, Role: asm.RoleGeneral})
		b.c.rmClass = class
		b.form = append(b.form, fmt.Sprintf("r%d", class.Width()))
		return
	}
	b.c.base = b.add(asm.Parameter{Kind: asm.ParamBase, Accepts: asm.G, Class: GPR64, Role: m.baseRole()})
	text := "base"
	if m.sib() {
		b.c.index = b.add(asm.Parameter{Kind: asm.ParamIndex, Accepts: asm.G, Class: GPR64, Role: asm.RoleIndex})
		b.c.scale = b.add(asm.Parameter{Kind: asm.ParamScale, Accepts: asm.Categories(asm.LocationScale)})
		text += " + index*scale"
	}
	switch m.dispWidth() {
	case asm.Width8:
		b.c.disp = b.add(asm.Parameter{Kind: asm.ParamDisplacement, Accepts: asm.Categories(asm.LocationImmediate8)})
		text += " + disp8"
	case asm.Width32:
		b.c.disp = b.add(asm.Parameter{Kind: asm.ParamDisplacement, Accepts: asm.I8_I32})
		text += " + disp32"
	}
	if b.c.noSize {
		b.form = append(b.form, "["+text+"]")
	} else {
		b.form = append(b.form, fmt.Sprintf("m%d[%s]", class.Width(), text))
	}
}

func (b *builder) immediate(w asm.Width) {
	accepts := asm.Categories(asm.LocationImmediate8)
	switch w {
	case asm.Width16:
		accepts = asm.Categories(asm.LocationImmediate8, asm.LocationImmediate16)
	case asm.Width32:
		accepts = asm.I8_I32
	case asm.Width64:
		accepts = asm.I8_I32.Union(asm.Categories(asm.LocationImmediate64))
	}
	b.c.imm = b.add(asm.Parameter{Kind: asm.ParamImmediate, Accepts: accepts})
	b.c.immWidth = w
	b.form = append(b.form, fmt.Sprintf("imm%d", w))
}

func (b *builder) target(w asm.Width) {
	b.c.rel = b.add(asm.Parameter{Kind: asm.ParamTarget, Accepts: asm.Target})
	b.c.relWidth = w
	b.form = append(b.form, fmt.Sprintf("rel%d", w))
}

func (b *builder) finish(headers []asm.Header) *asm.Template {
	b.t.Form = strings.Join(b.form, ", ")
	b.t.Headers = append([]asm.Header(nil), headers...)
	b.t.Codec = b.c
	b.t.Render = b.c.render
	return b.t
}
