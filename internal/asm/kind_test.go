package asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	for _, tc := range []struct {
		k              Kind
		size32, size64 int
		offsets        LocationCategories
	}{
		{k: KindByte, size32: 1, size64: 1, offsets: G_I8_I32},
		{k: KindShort, size32: 2, size64: 2, offsets: G_I8_I32},
		{k: KindInt, size32: 4, size64: 4, offsets: G_I8_I32},
		{k: KindLong, size32: 8, size64: 8, offsets: G},
		{k: KindWord, size32: 4, size64: 8, offsets: G},
		{k: KindFloat, size32: 4, size64: 4},
		{k: KindDouble, size32: 8, size64: 8},
	} {
		t.Run(tc.k.String(), func(t *testing.T) {
			require.Equal(t, tc.size32, tc.k.Size(Width32))
			require.Equal(t, tc.size64, tc.k.Size(Width64))
			require.Equal(t, Width(tc.size64*8), tc.k.Width(Width64))
			require.Equal(t, tc.offsets, OffsetCategories(tc.k))

			parsed, err := ParseKind(tc.k.String())
			require.NoError(t, err)
			require.Equal(t, tc.k, parsed)
		})
	}
	_, err := ParseKind("quad")
	require.Error(t, err)
	require.Equal(t, KindShort, KindOfWidth(Width16))
}
