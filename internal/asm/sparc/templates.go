package sparc

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/asmkit/tasm/internal/asm"
)

// format is one of the SPARC instruction word layouts.
type format byte

const (
	// formatArith is op=2: rd, op3, rs1 and either rs2 or a 13-bit signed immediate.
	formatArith format = iota
	// formatMemory is op=3, laid out like formatArith.
	formatMemory
	// formatSethi is op=0, op2=4: rd and a 22-bit immediate.
	formatSethi
	// formatBranch is op=0, op2=2: annul bit, condition and a 22-bit word displacement.
	formatBranch
	// formatCall is op=1: a 30-bit word displacement.
	formatCall
	// formatFixed matches one exact instruction word.
	formatFixed
)

const (
	simm13Min = -4096
	simm13Max = 4095
	imm22Max  = 1<<22 - 1
)

// codec encodes one template. Operand positions index the template parameters and are -1
// when absent; absent register fields encode %g0.
type codec struct {
	format format
	op3    uint32
	// imm selects the simm13 form, which takes the place of rs2.
	imm bool
	// cond and annul select the branch.
	cond  uint32
	annul bool
	fixed uint32

	rd, rs1, rs2, target int
}

var _ asm.Codec = (*codec)(nil)

// word returns the first instruction word of c with every operand field zero.
func (c *codec) word() uint32 {
	switch c.format {
	case formatArith:
		return 2<<30 | c.op3<<19
	case formatMemory:
		return 3<<30 | c.op3<<19
	case formatSethi:
		return 4 << 22
	case formatBranch:
		return 2 << 22
	case formatCall:
		return 1 << 30
	}
	return c.fixed
}

// headerOf classifies an instruction word by its opcode fields.
func headerOf(w uint32) asm.Header {
	switch op := w >> 30; op {
	case 1:
		return asm.Header{Opcode: 0x100}
	case 0:
		return asm.Header{Opcode: w >> 22 & 7}
	default:
		return asm.Header{Opcode: op<<8 | w>>19&0x3f}
	}
}

func field(args []asm.Location, pos int) uint32 {
	if pos < 0 {
		return 0
	}
	return uint32(args[pos].Register.EncodingValue())
}

// displacement returns the word displacement from pc to target in n bits.
func displacement(target int64, pc uint64, n int) (uint32, error) {
	d := target - int64(pc)
	if d&3 != 0 {
		return 0, fmt.Errorf("branch target %#x is not word aligned", target)
	}
	if !asm.FitsSigned(d>>2, n) {
		return 0, &asm.ImpossibleImmediateWidthError{Value: d, Width: asm.SignedEffectiveWidth(d)}
	}
	return uint32(d>>2) & (1<<n - 1), nil
}

// Encode implements asm.Codec.
func (c *codec) Encode(buf *asm.Buffer, args []asm.Location, pc uint64) error {
	w := c.word()
	switch c.format {
	case formatArith, formatMemory:
		w |= field(args, c.rd)<<25 | field(args, c.rs1)<<14
		if c.imm {
			w |= 1<<13 | uint32(args[c.rs2].Value)&0x1fff
		} else {
			w |= field(args, c.rs2)
		}
	case formatSethi:
		w |= field(args, c.rd)<<25 | uint32(args[c.rs2].Value)&imm22Max
	case formatBranch:
		d, err := displacement(args[c.target].Value, pc, 22)
		if err != nil {
			return err
		}
		w |= c.cond<<25 | d
		if c.annul {
			w |= 1 << 29
		}
	case formatCall:
		d, err := displacement(args[c.target].Value, pc, 30)
		if err != nil {
			return err
		}
		w |= d
	}
	buf.WriteUint32(w)
	return nil
}

// Decode implements asm.Codec.
func (c *codec) Decode(ctx *asm.DecodeContext) ([]asm.Location, int, error) {
	if len(ctx.Body) < 4 {
		return nil, 0, asm.ErrTruncated
	}
	w := binary.BigEndian.Uint32(ctx.Body)
	var args []asm.Location
	if n := max(c.rd, c.rs1, c.rs2, c.target) + 1; n > 0 {
		args = make([]asm.Location, n)
	}
	rd, rs1, rs2 := int(w>>25&0x1f), int(w>>14&0x1f), int(w&0x1f)

	switch c.format {
	case formatFixed:
		if w != c.fixed {
			return nil, 0, asm.ErrMismatch
		}
	case formatArith, formatMemory:
		if (w>>13&1 == 1) != c.imm {
			return nil, 0, asm.ErrMismatch
		}
		// Fields the template does not expose must hold %g0, and the asi of the register
		// form must be zero.
		if (c.rd < 0 && rd != 0) || (c.rs1 < 0 && rs1 != 0) || (!c.imm && (c.rs2 < 0 && rs2 != 0 || w>>5&0xff != 0)) {
			return nil, 0, asm.ErrMismatch
		}
		if c.imm {
			args[c.rs2] = asm.Immediate(int64(int32(w<<19) >> 19))
		}
	case formatSethi:
		args[c.rs2] = asm.Immediate(int64(w & imm22Max))
	case formatBranch:
		if w>>25&0xf != c.cond || (w>>29&1 == 1) != c.annul {
			return nil, 0, asm.ErrMismatch
		}
		d := int64(int32(w<<10)>>10) << 2
		args[c.target] = asm.Address(ctx.PC + uint64(d))
	case formatCall:
		d := int64(int32(w<<2)>>2) << 2
		args[c.target] = asm.Address(ctx.PC + uint64(d))
	}
	for _, f := range [3][2]int{{c.rd, rd}, {c.rs1, rs1}, {c.rs2, rs2}} {
		pos := f[0]
		if pos < 0 || !args[pos].IsNone() {
			continue
		}
		r, err := GPR.Register(f[1]).AsRole(c.roleAt(pos))
		if err != nil {
			return nil, 0, asm.ErrMismatch
		}
		args[pos] = asm.RegisterLocation(r)
	}
	return args, 4, nil
}

// roleAt returns the role of the register decoded into position pos.
func (c *codec) roleAt(pos int) asm.Role {
	if c.format != formatMemory || pos != c.rs1 {
		return asm.RoleGeneral
	}
	if c.rs2 < 0 {
		return asm.RoleIndirect
	}
	return asm.RoleBase
}

// operand renders a location in SPARC assembler syntax.
func operand(l asm.Location) string {
	if l.Category == asm.LocationIntegerRegister {
		return l.Register.CanonicalName()
	}
	return l.String()
}

// render formats an instruction in SPARC assembler syntax, e.g. "ld [%o0 + 0x8], %o1".
func render(t *asm.Template, args []asm.Location) string {
	if len(args) != len(t.Params) {
		return t.Name
	}
	var parts []string
	for i := 0; i < len(args); i++ {
		if t.Params[i].Kind != asm.ParamBase {
			parts = append(parts, operand(args[i]))
			continue
		}
		mem := "[" + args[i].Register.CanonicalName()
		if i+1 < len(args) && t.Params[i+1].Kind.IsMemory() {
			i++
			if a := args[i]; a.Category.IsImmediate() && a.Value < 0 {
				mem += " - " + asm.Immediate(-a.Value).String()
			} else {
				mem += " + " + operand(a)
			}
		}
		parts = append(parts, mem+"]")
	}
	if len(parts) == 0 {
		return t.Name
	}
	return t.Name + " " + strings.Join(parts, ", ")
}

func renderSethi(t *asm.Template, args []asm.Location) string {
	return fmt.Sprintf("%s %%hi(%#x), %s", t.Name, args[0].Value<<10, operand(args[1]))
}

func renderJmpl(t *asm.Template, args []asm.Location) string {
	return fmt.Sprintf("%s %s + %s, %s", t.Name, operand(args[0]), operand(args[1]), operand(args[2]))
}

// Parameter shapes.
var (
	pSource = asm.Parameter{Kind: asm.ParamSource, Accepts: asm.G, Class: GPR}
	pDest   = asm.Parameter{Kind: asm.ParamDestination, Accepts: asm.G, Class: GPR}
	pSimm13 = asm.Parameter{Kind: asm.ParamImmediate, Accepts: asm.I8_I32, Min: simm13Min, Max: simm13Max}
	pShcnt  = asm.Parameter{Kind: asm.ParamImmediate, Accepts: asm.I8_I32, Min: 0, Max: 31}
	pImm22  = asm.Parameter{Kind: asm.ParamImmediate, Accepts: asm.I8_I32, Min: 0, Max: imm22Max}
	pTarget = asm.Parameter{Kind: asm.ParamTarget, Accepts: asm.Target}

	pIndirect = asm.Parameter{Kind: asm.ParamBase, Accepts: asm.G, Class: GPR, Role: asm.RoleIndirect}
	pBase     = asm.Parameter{Kind: asm.ParamBase, Accepts: asm.G, Class: GPR, Role: asm.RoleBase}
	pOffset   = asm.Parameter{Kind: asm.ParamOffset, Accepts: asm.G, Class: GPR}
	pDisp     = asm.Parameter{Kind: asm.ParamDisplacement, Accepts: asm.I8_I32, Min: simm13Min, Max: simm13Max}
)

func newTemplate(name, form string, c *codec, params ...asm.Parameter) *asm.Template {
	return &asm.Template{
		Name:    name,
		Form:    form,
		Headers: []asm.Header{headerOf(c.word())},
		Params:  params,
		Width:   asm.Width32,
		Codec:   c,
		Render:  render,
	}
}

func fixed(name string, w uint32) *asm.Template {
	return newTemplate(name, "", &codec{format: formatFixed, fixed: w, rd: -1, rs1: -1, rs2: -1, target: -1})
}

// arith declares the register and immediate forms of a format 3 instruction.
func arith(name string, op3 uint32, imm asm.Parameter) []*asm.Template {
	return []*asm.Template{
		newTemplate(name, "rs1, rs2, rd", &codec{format: formatArith, op3: op3, rs1: 0, rs2: 1, rd: 2, target: -1},
			pSource, pSource, pDest),
		newTemplate(name, "rs1, simm13, rd", &codec{format: formatArith, op3: op3, imm: true, rs1: 0, rs2: 1, rd: 2, target: -1},
			pSource, imm, pDest),
	}
}

// memory declares the [rs1], [rs1 + rs2] and [rs1 + simm13] forms of a load or store. The
// register operand comes last for loads and first for stores.
func memory(name string, op3 uint32, store bool) []*asm.Template {
	var ret []*asm.Template
	for _, m := range []struct {
		form   string
		imm    bool
		params []asm.Parameter
	}{
		{form: "[rs1]", params: []asm.Parameter{pIndirect}},
		{form: "[rs1 + rs2]", params: []asm.Parameter{pBase, pOffset}},
		{form: "[rs1 + simm13]", imm: true, params: []asm.Parameter{pBase, pDisp}},
	} {
		c := &codec{format: formatMemory, op3: op3, imm: m.imm, rs1: 0, rs2: -1, target: -1}
		if len(m.params) == 2 {
			c.rs2 = 1
		}
		var params []asm.Parameter
		form := m.form
		if store {
			c.rd, c.rs1 = 0, c.rs1+1
			if c.rs2 >= 0 {
				c.rs2++
			}
			params = append([]asm.Parameter{pSource}, m.params...)
			form = "rd, " + form
		} else {
			c.rd = len(m.params)
			params = append(append([]asm.Parameter(nil), m.params...), pDest)
			form += ", rd"
		}
		ret = append(ret, newTemplate(name, form, c, params...))
	}
	return ret
}

var branchConditions = [16]string{
	"bn", "be", "ble", "bl", "bleu", "bcs", "bneg", "bvs",
	"ba", "bne", "bg", "bge", "bgu", "bcc", "bpos", "bvc",
}

func branches() []*asm.Template {
	var ret []*asm.Template
	for _, annul := range []bool{false, true} {
		for cond, name := range branchConditions {
			if annul {
				name += ",a"
			}
			ret = append(ret, newTemplate(name, "disp22",
				&codec{format: formatBranch, cond: uint32(cond), annul: annul, rd: -1, rs1: -1, rs2: -1, target: 0}, pTarget))
		}
	}
	return ret
}

// buildTemplates returns the SPARC templates. Synthetic and fixed forms precede the
// instructions they are special cases of, so that decoding prefers them.
func buildTemplates() []*asm.Template {
	var ts []*asm.Template
	add := func(t ...*asm.Template) { ts = append(ts, t...) }

	add(fixed("nop", 0x01000000))
	sethi := newTemplate("sethi", "imm22, rd", &codec{format: formatSethi, rs2: 0, rd: 1, rs1: -1, target: -1}, pImm22, pDest)
	sethi.Render = renderSethi
	add(sethi)

	add(fixed("ret", 0x81c7e008), fixed("retl", 0x81c3e008), fixed("restore", 0x81e80000))
	add(
		newTemplate("mov", "rs2, rd", &codec{format: formatArith, op3: 0x02, rs1: -1, rs2: 0, rd: 1, target: -1}, pSource, pDest),
		newTemplate("mov", "simm13, rd", &codec{format: formatArith, op3: 0x02, imm: true, rs1: -1, rs2: 0, rd: 1, target: -1}, pSimm13, pDest),
		newTemplate("cmp", "rs1, rs2", &codec{format: formatArith, op3: 0x14, rs1: 0, rs2: 1, rd: -1, target: -1}, pSource, pSource),
		newTemplate("cmp", "rs1, simm13", &codec{format: formatArith, op3: 0x14, imm: true, rs1: 0, rs2: 1, rd: -1, target: -1}, pSource, pSimm13),
	)

	for _, a := range []struct {
		name string
		op3  uint32
	}{
		{"add", 0x00}, {"and", 0x01}, {"or", 0x02}, {"xor", 0x03},
		{"sub", 0x04}, {"andn", 0x05}, {"orn", 0x06}, {"xnor", 0x07},
		{"addx", 0x08}, {"umul", 0x0a}, {"smul", 0x0b}, {"subx", 0x0c},
		{"udiv", 0x0e}, {"sdiv", 0x0f}, {"addcc", 0x10}, {"andcc", 0x11},
		{"orcc", 0x12}, {"xorcc", 0x13}, {"subcc", 0x14},
		{"save", 0x3c}, {"restore", 0x3d},
	} {
		add(arith(a.name, a.op3, pSimm13)...)
	}
	add(arith("sll", 0x25, pShcnt)...)
	add(arith("srl", 0x26, pShcnt)...)
	add(arith("sra", 0x27, pShcnt)...)
	jmpl := arith("jmpl", 0x38, pSimm13)
	for _, t := range jmpl {
		t.Render = renderJmpl
	}
	add(jmpl...)

	for _, m := range []struct {
		name  string
		op3   uint32
		store bool
	}{
		{name: "ld", op3: 0x00}, {name: "ldub", op3: 0x01}, {name: "lduh", op3: 0x02},
		{name: "ldsb", op3: 0x09}, {name: "ldsh", op3: 0x0a},
		{name: "st", op3: 0x04, store: true}, {name: "stb", op3: 0x05, store: true}, {name: "sth", op3: 0x06, store: true},
	} {
		add(memory(m.name, m.op3, m.store)...)
	}

	add(branches()...)
	add(newTemplate("call", "disp30", &codec{format: formatCall, rd: -1, rs1: -1, rs2: -1, target: 0}, pTarget))
	return ts
}
