package asm

import (
	"fmt"
	"strings"
)

// Role is the usage context a register is viewed in.
type Role byte

const (
	// RoleGeneral is a register used as a value operand.
	RoleGeneral Role = iota
	// RoleBase is a register used as the base of a memory operand with a displacement.
	RoleBase
	// RoleIndex is a register scaled and added to the base of a memory operand.
	RoleIndex
	// RoleIndirect is a register whose value is the whole effective address.
	RoleIndirect
	roleCount
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleGeneral:
		return "general"
	case RoleBase:
		return "base"
	case RoleIndex:
		return "index"
	case RoleIndirect:
		return "indirect"
	}
	return fmt.Sprintf("Role(%d)", byte(r))
}

// RegisterClass is an architecture's table of registers of one width, declared in
// hardware-encoding order: the position of a name in the table is its encoding value.
type RegisterClass struct {
	// Name identifies the class in diagnostics, e.g. "gpr64".
	Name  string
	width Width
	names []string
	// sigil is prepended by CanonicalName.
	sigil string
	// unsupported[role] has bit i set when ordinal i has no form for that role.
	unsupported [roleCount]uint64
	byName      map[string]int
}

// NewRegisterClass declares a register class. names must be in encoding order.
// unsupported lists, per role, the ordinals that cannot be viewed in that role.
// A role mapped to nil (present in the map) is unsupported for every register.
func NewRegisterClass(name string, width Width, sigil string, names []string, unsupported map[Role][]int) *RegisterClass {
	if len(names) > 64 {
		panic("BUG: register classes are limited to 64 registers")
	}
	c := &RegisterClass{Name: name, width: width, names: names, sigil: sigil, byName: make(map[string]int, len(names))}
	for i, n := range names {
		c.byName[n] = i
	}
	for role, ords := range unsupported {
		if ords == nil {
			c.unsupported[role] = ^uint64(0)
			continue
		}
		for _, o := range ords {
			c.unsupported[role] |= 1 << uint(o)
		}
	}
	return c
}

// Len returns the number of registers in the class.
func (c *RegisterClass) Len() int { return len(c.names) }

// Width returns the bit width of every register in the class.
func (c *RegisterClass) Width() Width { return c.width }

// Register returns the general view of the register whose encoding value is id.
// It panics if id is out of range, like a slice index.
func (c *RegisterClass) Register(id int) Register {
	if id < 0 || id >= len(c.names) {
		panic(fmt.Sprintf("BUG: register ordinal %d out of range for %s", id, c.Name))
	}
	return Register{class: c, ord: uint8(id)}
}

// Registers returns the general views of all registers in encoding order.
func (c *RegisterClass) Registers() []Register {
	ret := make([]Register, len(c.names))
	for i := range ret {
		ret[i] = Register{class: c, ord: uint8(i)}
	}
	return ret
}

// Lookup finds a register by either of its names, with or without the sigil.
func (c *RegisterClass) Lookup(name string) (Register, bool) {
	name = strings.TrimPrefix(strings.ToLower(name), c.sigil)
	i, ok := c.byName[name]
	if !ok {
		return NilRegister, false
	}
	return Register{class: c, ord: uint8(i)}, true
}

// Register is a physical register seen in one Role. The zero value is NilRegister.
//
// Registers are comparable: two values are equal when they name the same register in
// the same class and role.
type Register struct {
	class *RegisterClass
	ord   uint8
	role  Role
}

// NilRegister is the zero Register, used where an operand has no register.
var NilRegister Register

// Valid returns false for NilRegister.
func (r Register) Valid() bool { return r.class != nil }

// Class returns the register class r belongs to.
func (r Register) Class() *RegisterClass { return r.class }

// EncodingValue returns the hardware encoding of r, which is its ordinal.
func (r Register) EncodingValue() int { return int(r.ord) }

// Width returns the bit width of r.
func (r Register) Width() Width { return r.class.width }

// Role returns the usage context r is viewed in.
func (r Register) Role() Role { return r.role }

// Supports returns true if r has a form usable in role.
func (r Register) Supports(role Role) bool {
	return r.class != nil && r.class.unsupported[role]&(1<<uint(r.ord)) == 0
}

// AsRole returns r viewed in role, or UnsupportedRoleError if the physical register has no
// such form.
func (r Register) AsRole(role Role) (Register, error) {
	if !r.Supports(role) {
		return NilRegister, &UnsupportedRoleError{Register: r, Role: role}
	}
	r.role = role
	return r, nil
}

// AsBase is AsRole(RoleBase).
func (r Register) AsBase() (Register, error) { return r.AsRole(RoleBase) }

// AsIndex is AsRole(RoleIndex).
func (r Register) AsIndex() (Register, error) { return r.AsRole(RoleIndex) }

// AsIndirect is AsRole(RoleIndirect).
func (r Register) AsIndirect() (Register, error) { return r.AsRole(RoleIndirect) }

// General returns r viewed as a value operand. Every register supports this role.
func (r Register) General() Register {
	r.role = RoleGeneral
	return r
}

// CanonicalName returns the assembler-syntax name, e.g. "%eax".
func (r Register) CanonicalName() string {
	if r.class == nil {
		return "nil"
	}
	return r.class.sigil + r.class.names[r.ord]
}

// DisassembledName returns the disassembly-syntax name, e.g. "eax".
func (r Register) DisassembledName() string {
	if r.class == nil {
		return "nil"
	}
	return r.class.names[r.ord]
}

// String implements fmt.Stringer.
func (r Register) String() string {
	return r.DisassembledName()
}
