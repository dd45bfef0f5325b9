package amd64

import "github.com/asmkit/tasm/internal/asm"

// form is the operand shape of an opcode, named after the operand encoding columns of the
// Intel manual.
type form byte

const (
	// formNone has no operands.
	formNone form = iota
	// formO adds a register to the last opcode byte.
	formO
	// formOI is formO followed by an immediate.
	formOI
	// formI has a single immediate.
	formI
	// formD has a relative branch target.
	formD
	// formRM has the reg field as destination and r/m as source.
	formRM
	// formMR has r/m as destination and the reg field as source.
	formMR
	// formM has r/m as the only operand, the reg field holding an opcode extension.
	formM
	// formMI is formM followed by an immediate.
	formMI
	// formRMI is formRM followed by an immediate.
	formRMI
)

// insn declares one opcode. It expands into a template per operand width and, when it has
// an r/m operand, per addressing mode.
type insn struct {
	name   string
	form   form
	widths []asm.Width
	opcode []byte
	// ext is the /digit opcode extension, or -1.
	ext int8
	// imm is the immediate width. Zero means the operand width capped at 32 bits.
	imm asm.Width
	// rel is the branch displacement width of formD.
	rel asm.Width
	// rmWidth is the width of the r/m operand when it differs from the operand width.
	rmWidth asm.Width
	// memOnly drops the register form of r/m.
	memOnly bool
	// default64 marks opcodes whose operand size is 64 bits without REX.W.
	default64 bool
	// implicit is an operand that is not encoded, only rendered.
	implicit string
}

var (
	w8     = []asm.Width{asm.Width8}
	w16    = []asm.Width{asm.Width16}
	w32    = []asm.Width{asm.Width32}
	w64    = []asm.Width{asm.Width64}
	w32_64 = []asm.Width{asm.Width32, asm.Width64}
	wFull  = []asm.Width{asm.Width16, asm.Width32, asm.Width64}
)

// alu declares the eight classic arithmetic opcodes sharing the layout of ADD: op r/m8, r8
// at base, then op r/m, r, op r8, r/m8, op r, r/m, and the 80/81/83 immediate group.
func alu(name string, base byte, ext int8) []insn {
	return []insn{
		{name: name, form: formMR, widths: w8, opcode: []byte{base}, ext: -1},
		{name: name, form: formMR, widths: wFull, opcode: []byte{base + 1}, ext: -1},
		{name: name, form: formRM, widths: w8, opcode: []byte{base + 2}, ext: -1},
		{name: name, form: formRM, widths: wFull, opcode: []byte{base + 3}, ext: -1},
		{name: name, form: formMI, widths: wFull, opcode: []byte{0x83}, ext: ext, imm: asm.Width8},
		{name: name, form: formMI, widths: w8, opcode: []byte{0x80}, ext: ext, imm: asm.Width8},
		{name: name, form: formMI, widths: wFull, opcode: []byte{0x81}, ext: ext},
	}
}

// unary declares an F6/F7 (or FE/FF) group member.
func unary(name string, op8 byte, ext int8) []insn {
	return []insn{
		{name: name, form: formM, widths: w8, opcode: []byte{op8}, ext: ext},
		{name: name, form: formM, widths: wFull, opcode: []byte{op8 + 1}, ext: ext},
	}
}

// shift declares a shift by CL and by an 8-bit immediate.
func shift(name string, ext int8) []insn {
	return []insn{
		{name: name, form: formM, widths: w32_64, opcode: []byte{0xd3}, ext: ext, implicit: "cl"},
		{name: name, form: formMI, widths: w32_64, opcode: []byte{0xc1}, ext: ext, imm: asm.Width8},
	}
}

// conditional declares Jcc and SETcc for every condition code.
func conditional() []insn {
	var ret []insn
	for cc, name := range conditions {
		ret = append(ret,
			insn{name: "j" + name, form: formD, widths: w64, opcode: []byte{0x70 + byte(cc)}, ext: -1, rel: asm.Width8, default64: true},
			insn{name: "j" + name, form: formD, widths: w64, opcode: []byte{0x0f, 0x80 + byte(cc)}, ext: -1, rel: asm.Width32, default64: true},
		)
	}
	for cc, name := range conditions {
		ret = append(ret, insn{name: "set" + name, form: formM, widths: w8, opcode: []byte{0x0f, 0x90 + byte(cc)}, ext: 0})
	}
	return ret
}

// instructions is the declarative table the catalog is built from. Order matters: templates
// are tried in this order by both template selection and decoding, so narrower encodings
// come first.
var instructions = concat(
	[]insn{
		{name: "mov", form: formMR, widths: w8, opcode: []byte{0x88}, ext: -1},
		{name: "mov", form: formMR, widths: wFull, opcode: []byte{0x89}, ext: -1},
		{name: "mov", form: formRM, widths: w8, opcode: []byte{0x8a}, ext: -1},
		{name: "mov", form: formRM, widths: wFull, opcode: []byte{0x8b}, ext: -1},
		{name: "mov", form: formOI, widths: w8, opcode: []byte{0xb0}, ext: -1, imm: asm.Width8},
		{name: "mov", form: formOI, widths: []asm.Width{asm.Width16, asm.Width32}, opcode: []byte{0xb8}, ext: -1},
		{name: "mov", form: formMI, widths: w8, opcode: []byte{0xc6}, ext: 0, imm: asm.Width8},
		{name: "mov", form: formMI, widths: wFull, opcode: []byte{0xc7}, ext: 0},
		// movabs is last so that 64-bit moves of 32-bit values sign-extend instead.
		{name: "mov", form: formOI, widths: w64, opcode: []byte{0xb8}, ext: -1, imm: asm.Width64},
		{name: "movzx", form: formRM, widths: w32_64, opcode: []byte{0x0f, 0xb6}, ext: -1, rmWidth: asm.Width8},
		{name: "movzx", form: formRM, widths: w32_64, opcode: []byte{0x0f, 0xb7}, ext: -1, rmWidth: asm.Width16},
		{name: "movsx", form: formRM, widths: w32_64, opcode: []byte{0x0f, 0xbe}, ext: -1, rmWidth: asm.Width8},
		{name: "movsx", form: formRM, widths: w32_64, opcode: []byte{0x0f, 0xbf}, ext: -1, rmWidth: asm.Width16},
		{name: "movsxd", form: formRM, widths: w64, opcode: []byte{0x63}, ext: -1, rmWidth: asm.Width32},
		{name: "lea", form: formRM, widths: w32_64, opcode: []byte{0x8d}, ext: -1, memOnly: true},
	},
	alu("add", 0x00, 0),
	alu("or", 0x08, 1),
	alu("adc", 0x10, 2),
	alu("sbb", 0x18, 3),
	alu("and", 0x20, 4),
	alu("sub", 0x28, 5),
	alu("xor", 0x30, 6),
	alu("cmp", 0x38, 7),
	[]insn{
		{name: "test", form: formMR, widths: w8, opcode: []byte{0x84}, ext: -1},
		{name: "test", form: formMR, widths: wFull, opcode: []byte{0x85}, ext: -1},
		{name: "test", form: formMI, widths: w8, opcode: []byte{0xf6}, ext: 0, imm: asm.Width8},
		{name: "test", form: formMI, widths: wFull, opcode: []byte{0xf7}, ext: 0},
		{name: "imul", form: formRM, widths: wFull, opcode: []byte{0x0f, 0xaf}, ext: -1},
		{name: "imul", form: formRMI, widths: wFull, opcode: []byte{0x6b}, ext: -1, imm: asm.Width8},
		{name: "imul", form: formRMI, widths: wFull, opcode: []byte{0x69}, ext: -1},
	},
	unary("not", 0xf6, 2),
	unary("neg", 0xf6, 3),
	unary("mul", 0xf6, 4),
	unary("div", 0xf6, 6),
	unary("idiv", 0xf6, 7),
	unary("inc", 0xfe, 0),
	unary("dec", 0xfe, 1),
	shift("shl", 4),
	shift("shr", 5),
	shift("sar", 7),
	[]insn{
		{name: "push", form: formO, widths: w64, opcode: []byte{0x50}, ext: -1, default64: true},
		{name: "pop", form: formO, widths: w64, opcode: []byte{0x58}, ext: -1, default64: true},
		{name: "push", form: formI, widths: w64, opcode: []byte{0x6a}, ext: -1, imm: asm.Width8, default64: true},
		{name: "push", form: formI, widths: w64, opcode: []byte{0x68}, ext: -1, imm: asm.Width32, default64: true},
		{name: "bswap", form: formO, widths: w32_64, opcode: []byte{0x0f, 0xc8}, ext: -1},
		{name: "jmp", form: formD, widths: w64, opcode: []byte{0xeb}, ext: -1, rel: asm.Width8, default64: true},
		{name: "jmp", form: formD, widths: w64, opcode: []byte{0xe9}, ext: -1, rel: asm.Width32, default64: true},
		{name: "jmp", form: formM, widths: w64, opcode: []byte{0xff}, ext: 4, default64: true},
		{name: "call", form: formD, widths: w64, opcode: []byte{0xe8}, ext: -1, rel: asm.Width32, default64: true},
		{name: "call", form: formM, widths: w64, opcode: []byte{0xff}, ext: 2, default64: true},
	},
	conditional(),
	[]insn{
		{name: "ret", form: formNone, widths: w64, opcode: []byte{0xc3}, ext: -1, default64: true},
		{name: "leave", form: formNone, widths: w64, opcode: []byte{0xc9}, ext: -1, default64: true},
		{name: "nop", form: formNone, widths: w64, opcode: []byte{0x90}, ext: -1, default64: true},
		{name: "hlt", form: formNone, widths: w64, opcode: []byte{0xf4}, ext: -1, default64: true},
		{name: "int3", form: formNone, widths: w64, opcode: []byte{0xcc}, ext: -1, default64: true},
		{name: "cwd", form: formNone, widths: w16, opcode: []byte{0x99}, ext: -1},
		{name: "cdq", form: formNone, widths: w32, opcode: []byte{0x99}, ext: -1},
		{name: "cqo", form: formNone, widths: w64, opcode: []byte{0x99}, ext: -1},
	},
)

func concat(groups ...[]insn) []insn {
	var ret []insn
	for _, g := range groups {
		ret = append(ret, g...)
	}
	return ret
}
