package amd64

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/asmkit/tasm/internal/asm"
)

// opAliases maps mnemonics to the name x86asm gives the same opcode.
var opAliases = map[string]string{
	"int3": "int",
}

// CrossCheck decodes the bytes of d with golang.org/x/arch and reports any disagreement on
// the instruction length or mnemonic. Inline bytes are not checked.
func CrossCheck(d *asm.Disassembled) error {
	if d.Inline() {
		return nil
	}
	inst, err := x86asm.Decode(d.Bytes, 64)
	if err != nil {
		return fmt.Errorf("%#x: x86asm rejects % x decoded as %q: %w", d.Address, d.Bytes, d, err)
	}
	if inst.Len != len(d.Bytes) {
		return fmt.Errorf("%#x: x86asm decodes %d bytes of % x, want %d (%s)", d.Address, inst.Len, d.Bytes, len(d.Bytes), inst)
	}
	want := d.Template.Name
	if alias, ok := opAliases[want]; ok {
		want = alias
	}
	if got := strings.ToLower(inst.Op.String()); got != want {
		return fmt.Errorf("%#x: x86asm decodes % x as %s, want %s", d.Address, d.Bytes, got, want)
	}
	return nil
}
