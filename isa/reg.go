package isa

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// RegClass separates register files that never map onto each other
// implicitly. A GPR is only ever mapped to a GPR, a vector register only to
// a vector register.
type RegClass uint8

const (
	GPR RegClass = iota
	Vector
)

func (c RegClass) String() string {
	switch c {
	case GPR:
		return "gpr"
	case Vector:
		return "vector"
	}
	return fmt.Sprintf("RegClass(%d)", uint8(c))
}

// RegId is an architecture-scoped register identifier. Indices follow the
// hardware encoding order of each file (x86_64: RAX=0..R15=15, XMM0=0..;
// ARM64: X0=0..X30=30 with SP=31, V0=0..; RISC-V: x0=0..x31=31; PPC64:
// r0=0..r31=31). A RegId is meaningless under another architecture without
// a mapping lookup.
type RegId struct {
	Arch  Arch
	Class RegClass
	Index uint8
}

// Reg is shorthand for a general-purpose register id.
func Reg(a Arch, index uint8) RegId {
	return RegId{Arch: a, Class: GPR, Index: index}
}

// Vec is shorthand for a vector-class register id.
func Vec(a Arch, index uint8) RegId {
	return RegId{Arch: a, Class: Vector, Index: index}
}

// ARM64 addresses the stack pointer as GPR index 31.
const ARM64SPIndex = 31

// String renders the canonical assembler name. x86_64 and ARM64 names come
// from golang.org/x/arch so they match what a disassembler would print.
func (r RegId) String() string {
	switch r.Arch {
	case X86_64:
		switch r.Class {
		case GPR:
			if int(r.Index) < X86_64.GPRCount() {
				return (x86asm.RAX + x86asm.Reg(r.Index)).String()
			}
		case Vector:
			if r.Index < 16 {
				return (x86asm.X0 + x86asm.Reg(r.Index)).String()
			}
		}
	case ARM64:
		switch r.Class {
		case GPR:
			if r.Index == ARM64SPIndex {
				return arm64asm.RegSP(arm64asm.SP).String()
			}
			if r.Index <= 30 {
				return (arm64asm.X0 + arm64asm.Reg(r.Index)).String()
			}
		case Vector:
			if r.Index < 32 {
				return (arm64asm.V0 + arm64asm.Reg(r.Index)).String()
			}
		}
	case RISCV64:
		switch r.Class {
		case GPR:
			return fmt.Sprintf("x%d", r.Index)
		case Vector:
			return fmt.Sprintf("v%d", r.Index)
		}
	case PPC64:
		switch r.Class {
		case GPR:
			return fmt.Sprintf("r%d", r.Index)
		case Vector:
			return fmt.Sprintf("vs%d", r.Index)
		}
	case Unknown:
	}
	return fmt.Sprintf("%s/%s%d", r.Arch, r.Class, r.Index)
}
