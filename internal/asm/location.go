package asm

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Width is a bit width of a register, immediate or memory access.
type Width byte

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Bytes returns the width in bytes.
func (w Width) Bytes() int { return int(w) / 8 }

// SignedEffectiveWidth returns the narrowest of 8, 16, 32 and 64 bits that holds v as a
// sign-extended two's complement value.
func SignedEffectiveWidth(v int64) Width {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return Width8
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return Width16
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return Width32
	default:
		return Width64
	}
}

// FitsSigned returns true if v can be represented in n bits as a signed value.
func FitsSigned(v int64, n int) bool {
	if n >= 64 {
		return true
	}
	lim := int64(1) << uint(n-1)
	return v >= -lim && v < lim
}

// LocationCategory classifies where an operand value lives.
type LocationCategory byte

const (
	// LocationNone is the zero category, meaning "no operand".
	LocationNone LocationCategory = iota
	LocationIntegerRegister
	LocationImmediate8
	LocationImmediate16
	LocationImmediate32
	LocationImmediate64
	LocationStackSlot
	// LocationScale is an index scale factor: 1, 2, 4 or 8.
	LocationScale
	// LocationLabel is a logical instruction index inside one assembly unit.
	LocationLabel
	// LocationAddress is an absolute code address.
	LocationAddress
	locationCategoryCount
)

var locationCategoryNames = [...]string{
	LocationNone:            "none",
	LocationIntegerRegister: "integer register",
	LocationImmediate8:      "immediate 8",
	LocationImmediate16:     "immediate 16",
	LocationImmediate32:     "immediate 32",
	LocationImmediate64:     "immediate 64",
	LocationStackSlot:       "stack slot",
	LocationScale:           "scale",
	LocationLabel:           "label",
	LocationAddress:         "address",
}

// String implements fmt.Stringer.
func (c LocationCategory) String() string {
	if int(c) < len(locationCategoryNames) {
		return locationCategoryNames[c]
	}
	return fmt.Sprintf("LocationCategory(%d)", byte(c))
}

// IsImmediate returns true for the immediate categories.
func (c LocationCategory) IsImmediate() bool {
	return c >= LocationImmediate8 && c <= LocationImmediate64
}

// immediateWidth returns the width of an immediate category.
func (c LocationCategory) immediateWidth() Width {
	switch c {
	case LocationImmediate8:
		return Width8
	case LocationImmediate16:
		return Width16
	case LocationImmediate32:
		return Width32
	}
	return Width64
}

// LocationCategories is a set of location categories.
type LocationCategories uint16

// Categories returns the set holding cs.
func Categories(cs ...LocationCategory) LocationCategories {
	var s LocationCategories
	for _, c := range cs {
		s |= 1 << c
	}
	return s
}

// Named category sets.
var (
	G        = Categories(LocationIntegerRegister)
	I8_I32   = Categories(LocationImmediate8, LocationImmediate16, LocationImmediate32)
	G_I8_I32 = G.Union(I8_I32)
	// Target is the set accepted by branch and call displacements.
	Target = Categories(LocationLabel, LocationAddress)
)

// Contains returns true if c is in s.
func (s LocationCategories) Contains(c LocationCategory) bool { return s&(1<<c) != 0 }

// Union returns s ∪ o.
func (s LocationCategories) Union(o LocationCategories) LocationCategories { return s | o }

// Intersects returns true if s and o share a category.
func (s LocationCategories) Intersects(o LocationCategories) bool { return s&o != 0 }

// Len returns the number of categories in s.
func (s LocationCategories) Len() int { return bits.OnesCount16(uint16(s)) }

// String implements fmt.Stringer.
func (s LocationCategories) String() string {
	var names []string
	for c := LocationCategory(0); c < locationCategoryCount; c++ {
		if s.Contains(c) {
			names = append(names, c.String())
		}
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Location is a resolved operand: a register, an immediate, a stack slot, a scale, a
// label or an address, tagged by its Category. The zero value is "no operand".
type Location struct {
	Category LocationCategory
	Register Register
	Value    int64
}

// RegisterLocation returns the location of a register operand.
func RegisterLocation(r Register) Location {
	return Location{Category: LocationIntegerRegister, Register: r}
}

// Immediate returns the immediate location of v in the narrowest category holding it.
func Immediate(v int64) Location {
	return ImmediateOf(SignedEffectiveWidth(v), v)
}

// ImmediateOf returns the immediate location of v in the category of width w.
func ImmediateOf(w Width, v int64) Location {
	c := LocationImmediate64
	switch w {
	case Width8:
		c = LocationImmediate8
	case Width16:
		c = LocationImmediate16
	case Width32:
		c = LocationImmediate32
	}
	return Location{Category: c, Value: v}
}

// Scale returns a scale operand.
func Scale(n int) Location { return Location{Category: LocationScale, Value: int64(n)} }

// StackSlot returns a stack slot location at the given frame offset.
func StackSlot(offset int64) Location { return Location{Category: LocationStackSlot, Value: offset} }

// LabelOf returns a branch target naming a logical instruction of the same unit.
func LabelOf(l Label) Location { return Location{Category: LocationLabel, Value: int64(l)} }

// Address returns an absolute code address operand.
func Address(a uint64) Location { return Location{Category: LocationAddress, Value: int64(a)} }

// IsNone returns true for the zero location.
func (l Location) IsNone() bool { return l.Category == LocationNone }

// wellFormed reports why l is not a valid instance of its own category, or "" if it is.
func (l Location) wellFormed() string {
	switch c := l.Category; {
	case c == LocationIntegerRegister:
		if !l.Register.Valid() {
			return "register location without a register"
		}
	case c.IsImmediate():
		if !FitsSigned(l.Value, int(c.immediateWidth())) {
			return fmt.Sprintf("value %d does not fit %s", l.Value, c)
		}
	case c == LocationScale:
		switch l.Value {
		case 1, 2, 4, 8:
		default:
			return fmt.Sprintf("invalid scale %d", l.Value)
		}
	}
	return ""
}

// String implements fmt.Stringer.
func (l Location) String() string {
	switch c := l.Category; {
	case c == LocationNone:
		return "none"
	case c == LocationIntegerRegister:
		return l.Register.String()
	case c.IsImmediate():
		return formatImmediate(l.Value)
	case c == LocationStackSlot:
		return fmt.Sprintf("stack[%d]", l.Value)
	case c == LocationScale:
		return fmt.Sprintf("%d", l.Value)
	case c == LocationLabel:
		return fmt.Sprintf("L%d", l.Value)
	default:
		return fmt.Sprintf("%#x", uint64(l.Value))
	}
}

func formatImmediate(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-%#x", uint64(-v))
	}
	return fmt.Sprintf("%#x", v)
}
