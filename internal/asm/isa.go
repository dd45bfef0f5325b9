package asm

import (
	"encoding/binary"
	"fmt"
)

// Arch names a supported instruction set architecture.
type Arch byte

const (
	ArchAMD64 Arch = iota + 1
	ArchSPARC
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case ArchSPARC:
		return "sparc"
	}
	return fmt.Sprintf("Arch(%d)", byte(a))
}

// ISA is the architecture-specific half of the assembler and the disassembler. The generic
// half in this package is written once against it.
type ISA interface {
	Arch() Arch
	// Catalog returns the immutable template catalog.
	Catalog() *Catalog
	// ByteOrder is the order of multi-byte fields in instructions.
	ByteOrder() binary.ByteOrder
	// WordWidth is the width of a pointer.
	WordWidth() Width
	// LookupRegister finds a register of any class by name.
	LookupRegister(name string) (Register, bool)
	// DefaultScratch returns the registers lowering may clobber when none are configured.
	DefaultScratch() []Register

	// ScanPrefix classifies the prefix bytes at the start of src.
	ScanPrefix(src []byte) Prefix
	// Headers returns the candidate headers at the start of src, longest first. It returns
	// ErrTruncated if src is too short to hold any header.
	Headers(p Prefix, src []byte) ([]Header, error)

	// Lower emits an addressing operation along path.
	Lower(op *AddressingOperation, path Path, scratch []Register) ([]Instruction, error)
	// Reconstruct recovers the addressing operation at the start of insts and returns the
	// number of instructions it spans.
	Reconstruct(kind Kind, insts []Instruction) (AddressingOperation, Path, int, error)

	// PatchCallSite rewrites the call instruction at code[offset:] to reach target, given
	// that code[0] is at address base.
	PatchCallSite(code []byte, base uint64, offset int, target uint64) error
}
