package amd64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asmkit/tasm/internal/asm"
)

func TestRegisterClasses(t *testing.T) {
	for _, tc := range []struct {
		class               *asm.RegisterClass
		width               asm.Width
		first, last         string
		firstName, lastName string
		addressing          bool
	}{
		{class: GPR64, width: asm.Width64, first: "%rax", last: "%r15", firstName: "rax", lastName: "r15", addressing: true},
		{class: GPR32, width: asm.Width32, first: "%eax", last: "%r15d", firstName: "eax", lastName: "r15d"},
		{class: GPR16, width: asm.Width16, first: "%ax", last: "%r15w", firstName: "ax", lastName: "r15w"},
		{class: GPR8, width: asm.Width8, first: "%al", last: "%r15b", firstName: "al", lastName: "r15b"},
	} {
		t.Run(tc.class.Name, func(t *testing.T) {
			require.Equal(t, tc.width, tc.class.Width())
			regs := tc.class.Registers()
			require.Len(t, regs, 16)
			for i, r := range regs {
				require.Equal(t, i, r.EncodingValue())
				require.Same(t, tc.class, r.Class())
				require.Equal(t, tc.class.Register(i), r)
				require.Equal(t, "%"+r.DisassembledName(), r.CanonicalName())

				found, ok := LookupRegister(r.CanonicalName())
				require.True(t, ok, r.CanonicalName())
				require.Equal(t, r, found)
				found, ok = LookupRegister(r.DisassembledName())
				require.True(t, ok, r.DisassembledName())
				require.Equal(t, r, found)
			}
			require.Equal(t, tc.first, regs[0].CanonicalName())
			require.Equal(t, tc.last, regs[15].CanonicalName())
			require.Equal(t, tc.firstName, regs[0].DisassembledName())
			require.Equal(t, tc.lastName, regs[15].DisassembledName())
			require.Same(t, tc.class, classOf(tc.width))

			for _, role := range []asm.Role{asm.RoleBase, asm.RoleIndex, asm.RoleIndirect} {
				require.Equal(t, tc.addressing, regs[0].Supports(role), role.String())
			}
		})
	}
}

func TestGPR64_roles(t *testing.T) {
	for _, r := range GPR64.Registers() {
		require.True(t, r.Supports(asm.RoleBase), r.String())
		require.True(t, r.Supports(asm.RoleIndirect), r.String())
		require.Equal(t, r != RSP, r.Supports(asm.RoleIndex), r.String())
	}

	_, err := RSP.AsIndex()
	var roleErr *asm.UnsupportedRoleError
	require.ErrorAs(t, err, &roleErr)
	require.Equal(t, "register rsp cannot be used as index", err.Error())
}

func TestLookupRegister(t *testing.T) {
	r, ok := LookupRegister("R13D")
	require.True(t, ok)
	require.Equal(t, GPR32.Register(13), r)

	_, ok = LookupRegister("%g1")
	require.False(t, ok)
}
