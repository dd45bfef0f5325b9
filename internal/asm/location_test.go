package asm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignedEffectiveWidth(t *testing.T) {
	for _, tc := range []struct {
		v   int64
		exp Width
	}{
		{v: 0, exp: Width8},
		{v: 127, exp: Width8},
		{v: -128, exp: Width8},
		{v: 128, exp: Width16},
		{v: -129, exp: Width16},
		{v: math.MaxInt16, exp: Width16},
		{v: math.MaxInt16 + 1, exp: Width32},
		{v: math.MinInt32, exp: Width32},
		{v: math.MaxInt32 + 1, exp: Width64},
		{v: math.MinInt64, exp: Width64},
	} {
		require.Equal(t, tc.exp, SignedEffectiveWidth(tc.v), "%d", tc.v)
	}
}

func TestFitsSigned(t *testing.T) {
	require.True(t, FitsSigned(4095, 13))
	require.True(t, FitsSigned(-4096, 13))
	require.False(t, FitsSigned(4096, 13))
	require.False(t, FitsSigned(-4097, 13))
	require.True(t, FitsSigned(math.MinInt64, 64))
}

func TestImmediate(t *testing.T) {
	require.Equal(t, Location{Category: LocationImmediate8, Value: -1}, Immediate(-1))
	require.Equal(t, LocationImmediate16, Immediate(300).Category)
	require.Equal(t, LocationImmediate64, Immediate(1<<40).Category)
	require.Equal(t, Location{Category: LocationImmediate32, Value: 8}, ImmediateOf(Width32, 8))
}

func TestLocationCategories(t *testing.T) {
	require.True(t, G_I8_I32.Contains(LocationIntegerRegister))
	require.True(t, G_I8_I32.Contains(LocationImmediate16))
	require.False(t, G_I8_I32.Contains(LocationImmediate64))
	require.False(t, G_I8_I32.Contains(LocationStackSlot))
	require.Equal(t, G_I8_I32, G.Union(I8_I32))
	require.True(t, G_I8_I32.Intersects(G))
	require.False(t, G.Intersects(Target))
	require.Equal(t, 4, G_I8_I32.Len())
	require.Equal(t, "{label, address}", Target.String())
	require.Equal(t, "{}", LocationCategories(0).String())
}

func TestLocation_String(t *testing.T) {
	gpr := NewRegisterClass("gpr", Width32, "%", []string{"r0", "r1"}, nil)
	for _, tc := range []struct {
		l   Location
		exp string
	}{
		{l: Location{}, exp: "none"},
		{l: RegisterLocation(gpr.Register(1)), exp: "r1"},
		{l: Immediate(-8), exp: "-0x8"},
		{l: Immediate(300), exp: "0x12c"},
		{l: StackSlot(16), exp: "stack[16]"},
		{l: Scale(4), exp: "4"},
		{l: LabelOf(3), exp: "L3"},
		{l: Address(0x1000), exp: "0x1000"},
	} {
		require.Equal(t, tc.exp, tc.l.String())
	}
}

func TestLocation_wellFormed(t *testing.T) {
	require.Equal(t, "", Immediate(5).wellFormed())
	require.Contains(t, ImmediateOf(Width8, 300).wellFormed(), "does not fit")
	require.Contains(t, Scale(3).wellFormed(), "invalid scale")
	require.Contains(t, Location{Category: LocationIntegerRegister}.wellFormed(), "without a register")
}
