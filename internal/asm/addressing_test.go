package asm

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	gp         = NewRegisterClass("gp", Width64, "%", []string{"a", "b", "c", "d"}, nil)
	ra, rb, rc = gp.Register(0), gp.Register(1), gp.Register(2)

	registerComparer = cmp.Comparer(func(x, y Register) bool { return x == y })
)

func TestSelectPath(t *testing.T) {
	for _, tc := range []struct {
		name   string
		offset Location
		exp    Path
	}{
		{name: "none", exp: PathDirect},
		{name: "register", offset: RegisterLocation(rc), exp: PathRegisterOffset},
		{name: "disp8", offset: Immediate(-128), exp: PathDisp8},
		{name: "disp16 promotes", offset: Immediate(128), exp: PathDisp32},
		{name: "disp32", offset: Immediate(math.MinInt32), exp: PathDisp32},
	} {
		t.Run(tc.name, func(t *testing.T) {
			op := &AddressingOperation{Pointer: rb, Offset: tc.offset}
			p, err := SelectPath(op)
			require.NoError(t, err)
			require.Equal(t, tc.exp, p)
			require.False(t, p.Indexed())

			op.Index = rc
			p, err = SelectPath(op)
			require.NoError(t, err)
			require.Equal(t, tc.exp+1, p)
			require.True(t, p.Indexed())
		})
	}

	for _, tc := range []struct {
		name   string
		offset Location
		exp    LocationCategory
	}{
		{name: "64-bit displacement", offset: Immediate(1 << 40), exp: LocationImmediate64},
		{name: "64-bit category with a small value", offset: ImmediateOf(Width64, 5), exp: LocationImmediate64},
		{name: "stack slot", offset: StackSlot(8), exp: LocationStackSlot},
		{name: "scale", offset: Scale(2), exp: LocationScale},
		{name: "address", offset: Address(0x1000), exp: LocationAddress},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SelectPath(&AddressingOperation{Pointer: rb, Offset: tc.offset})
			var catErr *ImpossibleLocationCategoryError
			require.ErrorAs(t, err, &catErr)
			require.Equal(t, tc.exp, catErr.Category)
		})
	}

	t.Run("explicit narrow category", func(t *testing.T) {
		p, err := SelectPath(&AddressingOperation{Pointer: rb, Offset: ImmediateOf(Width32, 5)})
		require.NoError(t, err)
		require.Equal(t, PathDisp8, p)
		p, err = SelectPath(&AddressingOperation{Pointer: rb, Offset: ImmediateOf(Width16, 300)})
		require.NoError(t, err)
		require.Equal(t, PathDisp32, p)
	})
	t.Run("malformed immediate", func(t *testing.T) {
		_, err := SelectPath(&AddressingOperation{Pointer: rb, Offset: ImmediateOf(Width8, 300)})
		var illegal *IllegalOperandError
		require.ErrorAs(t, err, &illegal)
		require.Equal(t, "illegal operand: offset value 300 does not fit immediate 8", err.Error())
	})
}

func TestOffsetKind(t *testing.T) {
	narrow := NewRegisterClass("narrow", Width32, "%", []string{"w"}, nil)
	for _, tc := range []struct {
		offset Location
		exp    Kind
	}{
		{offset: RegisterLocation(ra), exp: KindLong},
		{offset: RegisterLocation(narrow.Register(0)), exp: KindInt},
		{offset: Immediate(1), exp: KindByte},
		{offset: Immediate(300), exp: KindShort},
		{offset: Immediate(1 << 20), exp: KindInt},
		{offset: Immediate(1 << 40), exp: KindLong},
		{offset: StackSlot(8), exp: KindLong},
	} {
		require.Equal(t, tc.exp, offsetKind(tc.offset), tc.offset.String())
	}
}

func TestPath_String(t *testing.T) {
	require.Equal(t, "imm32, indexed", PathDisp32Indexed.String())
	require.Equal(t, "Path(9)", Path(9).String())
}

func TestAddressingOperation_Format(t *testing.T) {
	for _, tc := range []struct {
		op  AddressingOperation
		exp string
	}{
		{
			op:  AddressingOperation{Mnemonic: "inc", Kind: KindInt, Pointer: rb},
			exp: "inc [b]",
		},
		{
			op:  AddressingOperation{Mnemonic: "mov", Kind: KindInt, Operand: RegisterLocation(ra), Pointer: rb, Offset: Immediate(8), Index: rc},
			exp: "mov a, b[c * 4 + 0x8]",
		},
		{
			op:  AddressingOperation{Mnemonic: "mov", Kind: KindWord, Operand: RegisterLocation(ra), Store: true, Pointer: rb, Index: rc},
			exp: "mov b[c * 8], a",
		},
		{
			op:  AddressingOperation{Mnemonic: "mov", Kind: KindByte, Operand: Immediate(-1), Store: true, Pointer: rb, Offset: RegisterLocation(rc)},
			exp: "mov [b + c], -0x1",
		},
	} {
		require.Equal(t, tc.exp, tc.op.Format(Width64))
	}
}

func TestResolve_noPointer(t *testing.T) {
	_, _, err := Resolve(nil, &AddressingOperation{Mnemonic: "mov"}, nil)
	require.EqualError(t, err, "addressing operation without a pointer register")
}

func TestReconstructInstruction(t *testing.T) {
	var (
		dst    = Parameter{Kind: ParamDestination, Accepts: G, Class: gp}
		src    = Parameter{Kind: ParamSource, Accepts: G_I8_I32, Class: gp}
		base   = Parameter{Kind: ParamBase, Accepts: G, Class: gp, Role: RoleBase}
		index  = Parameter{Kind: ParamIndex, Accepts: G, Class: gp, Role: RoleIndex}
		scale  = Parameter{Kind: ParamScale, Accepts: Categories(LocationScale)}
		disp8  = Parameter{Kind: ParamDisplacement, Accepts: Categories(LocationImmediate8)}
		disp32 = Parameter{Kind: ParamDisplacement, Accepts: I8_I32}
		simm   = Parameter{Kind: ParamDisplacement, Accepts: I8_I32, Min: -4096, Max: 4095}
		target = Parameter{Kind: ParamTarget, Accepts: Target}
	)
	reg := func(r Register, role Role) Location {
		r, err := r.AsRole(role)
		require.NoError(t, err)
		return RegisterLocation(r)
	}
	inst := func(args []Location, params ...Parameter) Instruction {
		return Instruction{Template: &Template{Name: "mov", Params: params}, Args: args}
	}

	for _, tc := range []struct {
		name    string
		kind    Kind
		inst    Instruction
		expOp   AddressingOperation
		expPath Path
	}{
		{
			name:    "direct",
			kind:    KindInt,
			inst:    inst([]Location{RegisterLocation(ra), reg(rb, RoleBase)}, dst, base),
			expOp:   AddressingOperation{Mnemonic: "mov", Kind: KindInt, Operand: RegisterLocation(ra), Pointer: rb},
			expPath: PathDirect,
		},
		{
			name: "disp8 indexed",
			kind: KindLong,
			inst: inst([]Location{RegisterLocation(ra), reg(rb, RoleBase), reg(rc, RoleIndex), Scale(8), Immediate(-8)},
				dst, base, index, scale, disp8),
			expOp:   AddressingOperation{Mnemonic: "mov", Kind: KindLong, Operand: RegisterLocation(ra), Pointer: rb, Offset: Immediate(-8), Index: rc},
			expPath: PathDisp8Indexed,
		},
		{
			name:    "unscaled index is a register offset",
			kind:    KindLong,
			inst:    inst([]Location{RegisterLocation(ra), reg(rb, RoleBase), reg(rc, RoleIndex), Scale(1)}, dst, base, index, scale),
			expOp:   AddressingOperation{Mnemonic: "mov", Kind: KindLong, Operand: RegisterLocation(ra), Pointer: rb, Offset: RegisterLocation(rc)},
			expPath: PathRegisterOffset,
		},
		{
			name:    "store disp32",
			kind:    KindInt,
			inst:    inst([]Location{reg(rb, RoleBase), Immediate(8), RegisterLocation(ra)}, base, disp32, src),
			expOp:   AddressingOperation{Mnemonic: "mov", Kind: KindInt, Operand: RegisterLocation(ra), Store: true, Pointer: rb, Offset: Immediate(8)},
			expPath: PathDisp32,
		},
		{
			name:    "ranged small",
			kind:    KindInt,
			inst:    inst([]Location{reg(rb, RoleBase), Immediate(100), RegisterLocation(ra)}, base, simm, dst),
			expOp:   AddressingOperation{Mnemonic: "mov", Kind: KindInt, Operand: RegisterLocation(ra), Pointer: rb, Offset: Immediate(100)},
			expPath: PathDisp8,
		},
		{
			name:    "ranged large",
			kind:    KindInt,
			inst:    inst([]Location{reg(rb, RoleBase), Immediate(1000), RegisterLocation(ra)}, base, simm, dst),
			expOp:   AddressingOperation{Mnemonic: "mov", Kind: KindInt, Operand: RegisterLocation(ra), Pointer: rb, Offset: Immediate(1000)},
			expPath: PathDisp32,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			op, path, err := ReconstructInstruction(tc.kind, Width64, tc.inst)
			require.NoError(t, err)
			require.Equal(t, tc.expPath, path)
			if diff := cmp.Diff(tc.expOp, op, registerComparer); diff != "" {
				t.Errorf("unexpected operation (-want +got):\n%s", diff)
			}
		})
	}

	for _, tc := range []struct {
		name string
		inst Instruction
	}{
		{name: "no memory", inst: inst([]Location{RegisterLocation(ra), RegisterLocation(rb)}, dst, src)},
		{name: "branch", inst: inst([]Location{Address(0x1000)}, target)},
		{name: "scale mismatch", inst: inst([]Location{RegisterLocation(ra), reg(rb, RoleBase), reg(rc, RoleIndex), Scale(4)}, dst, base, index, scale)},
		{name: "unscaled with disp", inst: inst([]Location{RegisterLocation(ra), reg(rb, RoleBase), reg(rc, RoleIndex), Scale(1), Immediate(1)},
			dst, base, index, scale, disp8)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReconstructInstruction(KindLong, Width64, tc.inst)
			require.ErrorIs(t, err, ErrNotAddressing)
		})
	}
}
