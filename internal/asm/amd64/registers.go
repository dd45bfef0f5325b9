package amd64

import "github.com/asmkit/tasm/internal/asm"

// Register classes of the general purpose registers, declared in hardware-encoding order.
//
// Only 64-bit registers address memory. RSP cannot be an index since index=100 means "none".
// RBP and R13 have no [reg] form, as mod=00 with rm=101 means RIP-relative, and are encoded
// with a zero 8-bit displacement instead.
var (
	GPR64 = asm.NewRegisterClass("gpr64", asm.Width64, "%", []string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}, map[asm.Role][]int{
		asm.RoleIndex: {4},
	})
	GPR32 = asm.NewRegisterClass("gpr32", asm.Width32, "%", []string{
		"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
	}, nonAddressing)
	GPR16 = asm.NewRegisterClass("gpr16", asm.Width16, "%", []string{
		"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
		"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
	}, nonAddressing)
	// GPR8 uses the REX encodings of ordinals 4 to 7; AH, CH, DH and BH are not modelled.
	GPR8 = asm.NewRegisterClass("gpr8", asm.Width8, "%", []string{
		"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
		"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
	}, nonAddressing)
)

var nonAddressing = map[asm.Role][]int{
	asm.RoleBase:     nil,
	asm.RoleIndex:    nil,
	asm.RoleIndirect: nil,
}

// The 64-bit registers, for use in code and tests.
var (
	RAX = GPR64.Register(0)
	RCX = GPR64.Register(1)
	RDX = GPR64.Register(2)
	RBX = GPR64.Register(3)
	RSP = GPR64.Register(4)
	RBP = GPR64.Register(5)
	RSI = GPR64.Register(6)
	RDI = GPR64.Register(7)
	R8  = GPR64.Register(8)
	R9  = GPR64.Register(9)
	R10 = GPR64.Register(10)
	R11 = GPR64.Register(11)
	R12 = GPR64.Register(12)
	R13 = GPR64.Register(13)
	R14 = GPR64.Register(14)
	R15 = GPR64.Register(15)
)

// classOf returns the general purpose register class of width w.
func classOf(w asm.Width) *asm.RegisterClass {
	switch w {
	case asm.Width8:
		return GPR8
	case asm.Width16:
		return GPR16
	case asm.Width32:
		return GPR32
	}
	return GPR64
}

// LookupRegister finds a general purpose register of any width by name.
func LookupRegister(name string) (asm.Register, bool) {
	for _, c := range []*asm.RegisterClass{GPR64, GPR32, GPR16, GPR8} {
		if r, ok := c.Lookup(name); ok {
			return r, true
		}
	}
	return asm.NilRegister, false
}
