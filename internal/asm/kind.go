package asm

import "fmt"

// Kind is the type of data a memory access reads or writes.
type Kind byte

const (
	KindByte Kind = iota
	KindShort
	KindInt
	KindLong
	// KindWord is a machine word, as wide as a pointer of the architecture.
	KindWord
	KindFloat
	KindDouble
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindWord:
		return "word"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindByte; k <= KindDouble; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// Size returns the element size in bytes. word is the architecture word width.
func (k Kind) Size(word Width) int {
	switch k {
	case KindByte:
		return 1
	case KindShort:
		return 2
	case KindInt, KindFloat:
		return 4
	case KindWord:
		return word.Bytes()
	default:
		return 8
	}
}

// Width returns the access width of k. word is the architecture word width.
func (k Kind) Width(word Width) Width {
	return Width(k.Size(word) * 8)
}

// KindOfWidth returns the integer kind of the given width.
func KindOfWidth(w Width) Kind {
	switch w {
	case Width8:
		return KindByte
	case Width16:
		return KindShort
	case Width32:
		return KindInt
	}
	return KindLong
}

// OffsetCategories returns where an offset value of kind k may be placed: an int-sized
// offset may be folded into an 8 or 32 bit displacement, a long or word offset has to be
// in a register, and floating point values are never offsets.
func OffsetCategories(k Kind) LocationCategories {
	switch k {
	case KindByte, KindShort, KindInt:
		return G_I8_I32
	case KindLong, KindWord:
		return G
	}
	return 0
}
