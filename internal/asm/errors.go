package asm

import (
	"errors"
	"fmt"
)

// IllegalOperandError is returned when an operand does not fit the template parameter at
// Position. No bytes are emitted for the instruction. Template is nil when the operand was
// rejected before a template was selected.
type IllegalOperandError struct {
	Template *Template
	Position int
	Reason   string
}

// Error implements error.
func (e *IllegalOperandError) Error() string {
	if e.Template == nil {
		return "illegal operand: " + e.Reason
	}
	return fmt.Sprintf("illegal operand %d for %s: %s", e.Position, e.Template, e.Reason)
}

// ImpossibleImmediateWidthError is returned when an immediate needs more bits than any
// encoding of the operand provides.
type ImpossibleImmediateWidthError struct {
	Value int64
	Width Width
}

// Error implements error.
func (e *ImpossibleImmediateWidthError) Error() string {
	return fmt.Sprintf("impossible immediate width: %d needs %d bits", e.Value, e.Width)
}

// ImpossibleLocationCategoryError is returned when an operand lives somewhere no encoding
// can reach, e.g. a stack slot used as a displacement.
type ImpossibleLocationCategoryError struct {
	Category LocationCategory
}

// Error implements error.
func (e *ImpossibleLocationCategoryError) Error() string {
	return fmt.Sprintf("impossible location category: %s", e.Category)
}

// UnsupportedRoleError is returned by Register.AsRole.
type UnsupportedRoleError struct {
	Register Register
	Role     Role
}

// Error implements error.
func (e *UnsupportedRoleError) Error() string {
	return fmt.Sprintf("register %s cannot be used as %s", e.Register.DisassembledName(), e.Role)
}

// TruncatedInputError is returned when the input ends in the middle of an instruction.
type TruncatedInputError struct {
	// Position is the stream offset of the incomplete instruction.
	Position int
	// Consumed is the count of bytes decoded into complete instructions before it.
	Consumed int
}

// Error implements error.
func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("truncated input at offset %d after %d bytes", e.Position, e.Consumed)
}

// UnknownMnemonicError is returned by Catalog.Select for a name without templates.
type UnknownMnemonicError struct {
	Mnemonic string
}

// Error implements error.
func (e *UnknownMnemonicError) Error() string {
	return fmt.Sprintf("unknown mnemonic %q", e.Mnemonic)
}

// ErrTruncated is returned by codecs and header scans that run out of bytes. The
// disassembler turns it into a TruncatedInputError.
var ErrTruncated = errors.New("truncated")

// ErrMismatch is returned by codecs when the bytes do not belong to the template.
var ErrMismatch = errors.New("template mismatch")
