// Package isa defines the architecture tags, register identifiers and the
// decoded instruction model shared by the translation caches and the
// pipeline. Instructions are produced by an upstream decoder and consumed
// by a downstream code generator; this package owns neither.
package isa

import "fmt"

// Arch identifies an instruction set architecture. The set is closed:
// every switch over Arch must enumerate all four values so that adding an
// architecture is a compile-visible change at each dispatch site.
type Arch uint8

const (
	// Unknown is the zero value and never valid as a translation endpoint.
	Unknown Arch = iota
	X86_64
	ARM64
	RISCV64
	PPC64
)

func (a Arch) String() string {
	switch a {
	case X86_64:
		return "x86_64"
	case ARM64:
		return "arm64"
	case RISCV64:
		return "riscv64"
	case PPC64:
		return "ppc64"
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("Arch(%d)", uint8(a))
}

// Valid reports whether a names a real architecture.
func (a Arch) Valid() bool {
	switch a {
	case X86_64, ARM64, RISCV64, PPC64:
		return true
	case Unknown:
		return false
	}
	return false
}

// GPRCount returns the size of the general-purpose register file.
// ARM64 counts x0-x30; SP is addressed separately as index 31.
func (a Arch) GPRCount() int {
	switch a {
	case X86_64:
		return 16
	case ARM64:
		return 31
	case RISCV64:
		return 32
	case PPC64:
		return 32
	case Unknown:
		return 0
	}
	return 0
}

// WordSize returns the natural instruction word length in bytes. x86_64 is
// variable-length; the value here is the canonical-form ceiling used by the
// encoding cache.
func (a Arch) WordSize() int {
	switch a {
	case X86_64:
		return 15
	case ARM64, RISCV64, PPC64:
		return 4
	case Unknown:
		return 0
	}
	return 0
}

// ParseArch maps a lowercase architecture name to its tag. Used by the CLI
// front-end only; library callers pass tags directly.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "x86_64", "amd64":
		return X86_64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	case "riscv64", "riscv":
		return RISCV64, nil
	case "ppc64", "powerpc64":
		return PPC64, nil
	}
	return Unknown, fmt.Errorf("unknown architecture %q", s)
}
