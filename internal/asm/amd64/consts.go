package amd64

// REX prefix bits.
// https://wiki.osdev.org/X86-64_Instruction_Encoding#REX_prefix
const (
	rexPrefixNone    byte = 0x0000_0000 // Indicates that the instruction doesn't need RexPrefix.
	rexPrefixDefault byte = 0b0100_0000
	rexPrefixW            = 0b0000_1000 | rexPrefixDefault // REX.W
	rexPrefixR            = 0b0000_0100 | rexPrefixDefault // REX.R
	rexPrefixX            = 0b0000_0010 | rexPrefixDefault // REX.X
	rexPrefixB            = 0b0000_0001 | rexPrefixDefault // REX.B
)

// operandSizePrefix switches the operand size of an instruction to 16 bits.
const operandSizePrefix byte = 0x66

// Bits of asm.Header.Prefix.
const (
	keyOperandSize16 uint8 = 1 << iota
	keyRexW
)

// https://wiki.osdev.org/X86-64_Instruction_Encoding#ModR.2FM
const (
	modIndirect byte = 0b00
	modDisp8    byte = 0b01
	modDisp32   byte = 0b10
	modRegister byte = 0b11

	// rmSIB in the rm field means a SIB byte follows; as SIB.index it means "no index".
	rmSIB byte = 0b100
	// rmDisp32 in the rm field with mod=00 means RIP-relative; as SIB.base it means "no base".
	rmDisp32 byte = 0b101
)

func encodeModRM(mod, reg, rm byte) byte {
	return mod<<6 | reg<<3 | rm
}

func encodeSIB(shift, index, base byte) byte {
	return shift<<6 | index<<3 | base
}

func decodeModRM(b byte) (mod, reg, rm byte) {
	return b >> 6, (b >> 3) & 0b111, b & 0b111
}

// scaleShift maps an index scale to the SIB scale field.
func scaleShift(scale int64) byte {
	switch scale {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}

// conditions are the condition codes in encoding order, as used by Jcc and SETcc.
var conditions = [16]string{
	"o", "no", "b", "ae", "e", "ne", "be", "a",
	"s", "ns", "p", "np", "l", "ge", "le", "g",
}
