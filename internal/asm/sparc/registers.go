package sparc

import (
	"strings"

	"github.com/asmkit/tasm/internal/asm"
)

// GPR is the integer register window as seen by the current procedure, in encoding order.
// Every register can address memory.
var GPR = asm.NewRegisterClass("gpr", asm.Width32, "%", []string{
	"g0", "g1", "g2", "g3", "g4", "g5", "g6", "g7",
	"o0", "o1", "o2", "o3", "o4", "o5", "o6", "o7",
	"l0", "l1", "l2", "l3", "l4", "l5", "l6", "l7",
	"i0", "i1", "i2", "i3", "i4", "i5", "i6", "i7",
}, nil)

var (
	G0 = GPR.Register(0)
	G1 = GPR.Register(1)
	G4 = GPR.Register(4)
	O0 = GPR.Register(8)
	O1 = GPR.Register(9)
	O2 = GPR.Register(10)
	O3 = GPR.Register(11)
	// SP is %o6.
	SP = GPR.Register(14)
	O7 = GPR.Register(15)
	L0 = GPR.Register(16)
	L1 = GPR.Register(17)
	I0 = GPR.Register(24)
	// FP is %i6.
	FP = GPR.Register(30)
	I7 = GPR.Register(31)
)

var aliases = map[string]asm.Register{"sp": SP, "fp": FP}

// LookupRegister finds a register by name, accepting %sp and %fp.
func LookupRegister(name string) (asm.Register, bool) {
	if r, ok := GPR.Lookup(name); ok {
		return r, true
	}
	r, ok := aliases[strings.TrimPrefix(strings.ToLower(name), "%")]
	return r, ok
}
