package tasm

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/asmkit/tasm/internal/asm"
	"github.com/asmkit/tasm/internal/asm/amd64"
	"github.com/asmkit/tasm/internal/asm/sparc"
)

// Architecture selects the instruction set an Assembler or Disassembler works on.
type Architecture byte

const (
	// AMD64 is x86-64 in 64-bit mode, little-endian.
	AMD64 Architecture = iota + 1
	// SPARC is 32-bit SPARC V8, big-endian.
	SPARC
)

// Architectures lists every supported architecture.
var Architectures = []Architecture{AMD64, SPARC}

// String implements fmt.Stringer.
func (a Architecture) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case SPARC:
		return "sparc"
	}
	return fmt.Sprintf("Architecture(%d)", byte(a))
}

// ParseArchitecture is the inverse of Architecture.String. "x86-64" and "x86_64" are
// accepted for AMD64.
func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ToLower(s) {
	case "amd64", "x86-64", "x86_64":
		return AMD64, nil
	case "sparc":
		return SPARC, nil
	}
	return 0, fmt.Errorf("unknown architecture %q", s)
}

// isa returns the instruction set implementation, or nil for an invalid Architecture.
func (a Architecture) isa() asm.ISA {
	switch a {
	case AMD64:
		return amd64.ISA{}
	case SPARC:
		return sparc.ISA{}
	}
	return nil
}

// Config controls assembly and disassembly, with the default implementation as NewConfig.
//
// Config is immutable: every With method returns a modified clone, so a Config can be shared
// between goroutines.
type Config struct {
	arch                Architecture
	startAddress        uint64
	logger              logrus.FieldLogger
	scratch             []Register
	strict              bool
	maxRelaxationPasses int
}

// NewConfig returns the default configuration of arch: code starts at address zero,
// decoding is strict and lowering uses the architecture's default scratch registers.
func NewConfig(arch Architecture) *Config {
	return &Config{arch: arch, strict: true}
}

// clone ensures all fields are copied even if nil.
func (c *Config) clone() *Config {
	ret := *c
	ret.scratch = append([]Register(nil), c.scratch...)
	return &ret
}

// Architecture returns the architecture the configuration is for.
func (c *Config) Architecture() Architecture { return c.arch }

// StartAddress returns the address of the first byte of code.
func (c *Config) StartAddress() uint64 { return c.startAddress }

// WithStartAddress sets the address of the first byte of assembled or disassembled code.
// Branch targets and call displacements are relative to it.
func (c *Config) WithStartAddress(addr uint64) *Config {
	ret := c.clone()
	ret.startAddress = addr
	return ret
}

// WithLogger sets where debug traces go. Defaults to logrus.StandardLogger if nil.
func (c *Config) WithLogger(l logrus.FieldLogger) *Config {
	ret := c.clone()
	ret.logger = l
	return ret
}

// WithScratchRegisters overrides the registers addressing operations may clobber when a
// memory operand needs more than one instruction. Registers an operation reads are never
// used as scratch.
func (c *Config) WithScratchRegisters(regs ...Register) *Config {
	ret := c.clone()
	ret.scratch = append(ret.scratch[:0], regs...)
	return ret
}

// WithStrictDecoding controls whether a decoded instruction must re-encode to exactly the
// bytes it was decoded from. When enabled, which is the default, a non-canonical encoding
// is shown as inline bytes.
func (c *Config) WithStrictDecoding(strict bool) *Config {
	ret := c.clone()
	ret.strict = strict
	return ret
}

// WithMaxRelaxationPasses bounds the number of layout passes spent widening short branches.
// Zero, the default, means no bound.
func (c *Config) WithMaxRelaxationPasses(n int) *Config {
	ret := c.clone()
	ret.maxRelaxationPasses = n
	return ret
}

// options returns the core options of c, or an error if the architecture is invalid.
func (c *Config) options() (asm.ISA, asm.Options, error) {
	isa := c.arch.isa()
	if isa == nil {
		return nil, asm.Options{}, fmt.Errorf("invalid architecture: %s", c.arch)
	}
	return isa, asm.Options{
		Base:                c.startAddress,
		Scratch:             c.scratch,
		Logger:              c.logger,
		MaxRelaxationPasses: c.maxRelaxationPasses,
		Lenient:             !c.strict,
	}, nil
}
