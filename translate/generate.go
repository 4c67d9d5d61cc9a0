package translate

import (
	"xlate/isa"
)

// mnemonic is the architecture-neutral operation the generator translates
// through: source opcodes classify into a mnemonic, and the destination
// table emits a canonical opcode for it. An opcode that classifies into no
// mnemonic, or a mnemonic the destination table cannot emit, is an
// UnsupportedInstruction for that pair.
type mnemonic uint8

const (
	mnInvalid mnemonic = iota
	mnMov
	mnAdd
	mnSub
	mnMul
	mnAnd
	mnOr
	mnXor
	mnCmp
	mnTest
	mnLoad
	mnStore
	mnJmp
	mnJcc
	mnCall
	mnRet
	mnPush
	mnPop
	mnNop
)

func (m mnemonic) String() string {
	names := [...]string{
		mnInvalid: "invalid",
		mnMov:     "mov", mnAdd: "add", mnSub: "sub", mnMul: "mul",
		mnAnd: "and", mnOr: "or", mnXor: "xor", mnCmp: "cmp", mnTest: "test",
		mnLoad: "load", mnStore: "store",
		mnJmp: "jmp", mnJcc: "jcc", mnCall: "call", mnRet: "ret",
		mnPush: "push", mnPop: "pop", mnNop: "nop",
	}
	if int(m) < len(names) {
		return names[m]
	}
	return "invalid"
}

// cond is the architecture-neutral branch condition.
type cond int8

const (
	condNone cond = iota - 1
	condE
	condNE
	condL
	condGE
	condLE
	condG
	condB
	condAE
	condBE
	condA
	condS
	condNS
	condO
	condNO
	condP
	condNP
)

// x86 Jcc encodes its condition in the opcode's low nibble (0x70+cc).
var x86CondTable = [16]cond{
	condO, condNO, condB, condAE, condE, condNE, condBE, condA,
	condS, condNS, condP, condNP, condL, condGE, condLE, condG,
}

// A64 condition field values (b.cond bits 0-3).
const (
	a64EQ = 0x0
	a64NE = 0x1
	a64HS = 0x2
	a64LO = 0x3
	a64MI = 0x4
	a64PL = 0x5
	a64VS = 0x6
	a64VC = 0x7
	a64HI = 0x8
	a64LS = 0x9
	a64GE = 0xA
	a64LT = 0xB
	a64GT = 0xC
	a64LE = 0xD
)

// a64CondOf maps the neutral condition onto A64. Parity conditions have no
// ARM counterpart and fail as unsupported.
var a64CondOf = map[cond]uint32{
	condE: a64EQ, condNE: a64NE,
	condL: a64LT, condGE: a64GE, condLE: a64LE, condG: a64GT,
	condB: a64LO, condAE: a64HS, condBE: a64LS, condA: a64HI,
	condS: a64MI, condNS: a64PL, condO: a64VS, condNO: a64VC,
}

var a64CondBack = map[uint32]cond{
	a64EQ: condE, a64NE: condNE,
	a64LT: condL, a64GE: condGE, a64LE: condLE, a64GT: condG,
	a64LO: condB, a64HS: condAE, a64LS: condBE, a64HI: condA,
	a64MI: condS, a64PL: condNS, a64VS: condO, a64VC: condNO,
}

// RISC-V branch funct3 values. Only flag-free comparisons exist; the rest
// of the neutral set would need a multi-instruction sequence and is
// rejected instead of guessed.
var riscvCondOf = map[cond]uint32{
	condE:  0x0, // beq
	condNE: 0x1, // bne
	condL:  0x4, // blt
	condGE: 0x5, // bge
	condB:  0x6, // bltu
	condAE: 0x7, // bgeu
}

var riscvCondBack = map[uint32]cond{
	0x0: condE, 0x1: condNE, 0x4: condL, 0x5: condGE, 0x6: condB, 0x7: condAE,
}

// Canonical destination opcodes. Fixed-width architectures use the base
// encoding of the register form; the downstream code generator rewrites
// these during final emission, so what matters here is that each mnemonic
// has exactly one canonical value per architecture.
const (
	a64ADD  = 0x8B000000
	a64SUB  = 0xCB000000
	a64MUL  = 0x9B007C00
	a64AND  = 0x8A000000
	a64ORR  = 0xAA000000
	a64EOR  = 0xCA000000
	a64SUBS = 0xEB00001F // cmp alias
	a64ANDS = 0xEA00001F // tst alias
	a64MOV  = 0xAA0003E0 // orr Xd, xzr, Xm
	a64LDR  = 0xF9400000
	a64STR  = 0xF9000000
	a64B    = 0x14000000
	a64Bcc  = 0x54000000
	a64BL   = 0x94000000
	a64RET  = 0xD65F03C0
	a64NOP  = 0xD503201F
	a64PUSH = 0xF81F0C00 // str Xt, [sp, #-16]!
	a64POP  = 0xF8410400 // ldr Xt, [sp], #16

	rvADD  = 0x00000033
	rvSUB  = 0x40000033
	rvMUL  = 0x02000033
	rvAND  = 0x00007033
	rvOR   = 0x00006033
	rvXOR  = 0x00004033
	rvSLT  = 0x00002033 // cmp materializes a flag-free compare
	rvADDI = 0x00000013 // also mv and nop
	rvLD   = 0x00003003
	rvSD   = 0x00003023
	rvBcc  = 0x00000063
	rvJAL  = 0x0000006F
	rvCALL = 0x000000EF // jal ra, ...
	rvRET  = 0x00008067 // jalr x0, ra, 0

	x86ADD  = 0x01
	x86SUB  = 0x29
	x86MULG = 0xF7 // group 3
	x86AND  = 0x21
	x86OR   = 0x09
	x86XOR  = 0x31
	x86CMP  = 0x39
	x86TEST = 0x85
	x86MOVS = 0x89 // mov r/m, r (store direction)
	x86MOVL = 0x8B // mov r, r/m (load direction)
	x86JMP  = 0xE9
	x86Jcc  = 0x70
	x86CALL = 0xE8
	x86RET  = 0xC3
	x86PUSH = 0x50
	x86POP  = 0x58
	x86NOP  = 0x90

	ppcADD = 0x7C000214
	ppcAND = 0x7C000038
	ppcOR  = 0x7C000378
	ppcXOR = 0x7C000278
	ppcCMP = 0x7C000000
	ppcLD  = 0xE8000000
	ppcSTD = 0xF8000000
	ppcB   = 0x48000000
	ppcBLR = 0x4E800020
	ppcNOP = 0x60000000
)

// classify resolves a source instruction to its neutral mnemonic and
// condition. The pattern disambiguates opcodes whose meaning depends on
// operand shape (x86 mov as load vs store vs register move).
func classify(src isa.Arch, in isa.Instruction, p Pattern) (mnemonic, cond, *Error) {
	switch src {
	case isa.X86_64:
		return classifyX86(in, p)
	case isa.ARM64:
		return classifyArm64(in)
	case isa.RISCV64:
		return classifyRiscv(in)
	case isa.PPC64:
		return classifyPPC64(in)
	case isa.Unknown:
	}
	return mnInvalid, condNone, errEncoding(src, "source instruction carries invalid arch tag")
}

func classifyX86(in isa.Instruction, p Pattern) (mnemonic, cond, *Error) {
	op := in.Opcode
	if op >= 0x70 && op <= 0x7F {
		return mnJcc, x86CondTable[op&0xF], nil
	}
	if op >= 0x50 && op <= 0x57 {
		return mnPush, condNone, nil
	}
	if op >= 0x58 && op <= 0x5F {
		return mnPop, condNone, nil
	}
	if op >= 0xB8 && op <= 0xBF {
		return mnMov, condNone, nil
	}
	switch op {
	case 0x01, 0x03:
		return mnAdd, condNone, nil
	case 0x29, 0x2B:
		return mnSub, condNone, nil
	case 0xF7, 0x0FAF:
		return mnMul, condNone, nil
	case 0x21, 0x23:
		return mnAnd, condNone, nil
	case 0x09, 0x0B:
		return mnOr, condNone, nil
	case 0x31, 0x33:
		return mnXor, condNone, nil
	case 0x39, 0x3B:
		return mnCmp, condNone, nil
	case 0x85:
		return mnTest, condNone, nil
	case 0x89, 0x8B:
		// Direction comes from the operand shape, not the opcode byte.
		if len(in.Operands) > 0 && in.Operands[0].Kind == isa.KindMem {
			return mnStore, condNone, nil
		}
		if p.IsMemory || hasMemOperand(in) {
			return mnLoad, condNone, nil
		}
		return mnMov, condNone, nil
	case 0xE9, 0xEB:
		return mnJmp, condNone, nil
	case 0xE8:
		return mnCall, condNone, nil
	case 0xC3:
		return mnRet, condNone, nil
	case 0x90:
		return mnNop, condNone, nil
	}
	return mnInvalid, condNone, nil
}

func classifyArm64(in isa.Instruction) (mnemonic, cond, *Error) {
	op := in.Opcode
	if op&0xFF000010 == a64Bcc {
		c, ok := a64CondBack[op&0xF]
		if !ok {
			return mnInvalid, condNone, nil
		}
		return mnJcc, c, nil
	}
	switch op {
	case a64ADD:
		return mnAdd, condNone, nil
	case a64SUB:
		return mnSub, condNone, nil
	case a64MUL:
		return mnMul, condNone, nil
	case a64AND:
		return mnAnd, condNone, nil
	case a64ORR:
		return mnOr, condNone, nil
	case a64EOR:
		return mnXor, condNone, nil
	case a64SUBS:
		return mnCmp, condNone, nil
	case a64ANDS:
		return mnTest, condNone, nil
	case a64MOV, 0xD2800000: // register mov, movz
		return mnMov, condNone, nil
	case a64LDR:
		return mnLoad, condNone, nil
	case a64STR:
		return mnStore, condNone, nil
	case a64B:
		return mnJmp, condNone, nil
	case a64BL:
		return mnCall, condNone, nil
	case a64RET:
		return mnRet, condNone, nil
	case a64NOP:
		return mnNop, condNone, nil
	case a64PUSH:
		return mnPush, condNone, nil
	case a64POP:
		return mnPop, condNone, nil
	}
	return mnInvalid, condNone, nil
}

func classifyRiscv(in isa.Instruction) (mnemonic, cond, *Error) {
	op := in.Opcode
	if op&0x7F == 0x63 {
		c, ok := riscvCondBack[(op>>12)&0x7]
		if !ok {
			return mnInvalid, condNone, nil
		}
		return mnJcc, c, nil
	}
	switch op {
	case rvADD:
		return mnAdd, condNone, nil
	case rvSUB:
		return mnSub, condNone, nil
	case rvMUL:
		return mnMul, condNone, nil
	case rvAND:
		return mnAnd, condNone, nil
	case rvOR:
		return mnOr, condNone, nil
	case rvXOR:
		return mnXor, condNone, nil
	case rvSLT:
		return mnCmp, condNone, nil
	case rvADDI:
		// addi x0,x0,0 is the canonical nop; with operands it is mv/addi.
		if len(in.Operands) == 0 {
			return mnNop, condNone, nil
		}
		return mnMov, condNone, nil
	case rvLD:
		return mnLoad, condNone, nil
	case rvSD:
		return mnStore, condNone, nil
	case rvJAL:
		return mnJmp, condNone, nil
	case rvCALL:
		return mnCall, condNone, nil
	case rvRET:
		return mnRet, condNone, nil
	}
	return mnInvalid, condNone, nil
}

func classifyPPC64(in isa.Instruction) (mnemonic, cond, *Error) {
	switch in.Opcode {
	case ppcADD:
		return mnAdd, condNone, nil
	case ppcAND:
		return mnAnd, condNone, nil
	case ppcOR:
		return mnOr, condNone, nil
	case ppcXOR:
		return mnXor, condNone, nil
	case ppcCMP:
		return mnCmp, condNone, nil
	case ppcLD:
		return mnLoad, condNone, nil
	case ppcSTD:
		return mnStore, condNone, nil
	case ppcB:
		return mnJmp, condNone, nil
	case ppcBLR:
		return mnRet, condNone, nil
	case ppcNOP:
		return mnNop, condNone, nil
	}
	return mnInvalid, condNone, nil
}

func hasMemOperand(in isa.Instruction) bool {
	for i := range in.Operands {
		if in.Operands[i].Kind == isa.KindMem {
			return true
		}
	}
	return false
}

var a64Emit = map[mnemonic]uint32{
	mnAdd: a64ADD, mnSub: a64SUB, mnMul: a64MUL,
	mnAnd: a64AND, mnOr: a64ORR, mnXor: a64EOR,
	mnCmp: a64SUBS, mnTest: a64ANDS, mnMov: a64MOV,
	mnLoad: a64LDR, mnStore: a64STR,
	mnJmp: a64B, mnCall: a64BL, mnRet: a64RET, mnNop: a64NOP,
	mnPush: a64PUSH, mnPop: a64POP,
}

var rvEmit = map[mnemonic]uint32{
	mnAdd: rvADD, mnSub: rvSUB, mnMul: rvMUL,
	mnAnd: rvAND, mnOr: rvOR, mnXor: rvXOR,
	mnCmp: rvSLT, mnTest: rvAND, mnMov: rvADDI,
	mnLoad: rvLD, mnStore: rvSD,
	mnJmp: rvJAL, mnCall: rvCALL, mnRet: rvRET, mnNop: rvADDI,
	mnPush: rvSD, mnPop: rvLD,
}

var x86Emit = map[mnemonic]uint32{
	mnAdd: x86ADD, mnSub: x86SUB, mnMul: x86MULG,
	mnAnd: x86AND, mnOr: x86OR, mnXor: x86XOR,
	mnCmp: x86CMP, mnTest: x86TEST, mnMov: x86MOVS,
	mnLoad: x86MOVL, mnStore: x86MOVS,
	mnJmp: x86JMP, mnCall: x86CALL, mnRet: x86RET, mnNop: x86NOP,
	mnPush: x86PUSH, mnPop: x86POP,
}

// emitOpcode picks the canonical destination opcode for a mnemonic.
// Missing entries mean the pair cannot express the operation.
func emitOpcode(src, dst isa.Arch, mn mnemonic, c cond) (uint32, *Error) {
	switch dst {
	case isa.ARM64:
		if mn == mnJcc {
			bits, ok := a64CondOf[c]
			if !ok {
				return 0, errUnsupportedInstruction(src, dst, "condition %d has no arm64 counterpart", c)
			}
			return a64Bcc | bits, nil
		}
		if op, ok := a64Emit[mn]; ok {
			return op, nil
		}
	case isa.RISCV64:
		if mn == mnJcc {
			funct3, ok := riscvCondOf[c]
			if !ok {
				return 0, errUnsupportedInstruction(src, dst, "condition %d needs a multi-instruction sequence on riscv64", c)
			}
			return rvBcc | funct3<<12, nil
		}
		if op, ok := rvEmit[mn]; ok {
			return op, nil
		}
	case isa.X86_64:
		if mn == mnJcc {
			for nibble, nc := range x86CondTable {
				if nc == c {
					return x86Jcc | uint32(nibble), nil
				}
			}
			return 0, errUnsupportedInstruction(src, dst, "condition %d has no x86 encoding", c)
		}
		if op, ok := x86Emit[mn]; ok {
			return op, nil
		}
	case isa.PPC64, isa.Unknown:
		// PPC64 is a partial source only, never a destination.
	}
	return 0, errUnsupportedInstruction(src, dst, "no %s rule", mn)
}

// immediateBits is the widest immediate the destination's canonical forms
// carry. Values outside it cannot be translated one-for-one.
func immediateBits(dst isa.Arch) uint {
	switch dst {
	case isa.X86_64:
		return 32
	case isa.ARM64:
		return 16
	case isa.RISCV64:
		return 12
	case isa.PPC64:
		return 16
	case isa.Unknown:
	}
	return 0
}

func immediateFits(v int64, bits uint) bool {
	if bits == 0 {
		return false
	}
	if bits >= 64 {
		return true
	}
	lo := int64(-1) << (bits - 1)
	hi := int64(1)<<(bits-1) - 1
	return v >= lo && v <= hi
}
