package wasm

import "github.com/xehp/drekkar-webasm/leb128"

// instrOperandEnd returns the byte offset immediately after the operand(s)
// of the instruction whose opcode byte sits at code[opcodeAt]. It is used
// only for the forward block/branch-table scan (spec.md §4.5): a generic
// "how long is this instruction" classifier, not a semantic decode.
//
// This scan is deliberately uncached: it runs every time a block or an if
// is encountered (a loop needs no scan), rather than once at load, per spec.md §4.5's
// instruction to avoid caching per-call state. The cost is paid for by the
// gas counter.
func instrOperandEnd(code []byte, opcodeAt int) int {
	if opcodeAt >= len(code) {
		return opcodeAt
	}
	op := Opcode(code[opcodeAt])
	pos := opcodeAt + 1
	r := leb128.NewReader(code)

	switch op {
	case OpcodeBlock, OpcodeLoop, OpcodeIf:
		r.SeekTo(pos)
		r.ReadSigned(33)
		return r.Pos()

	case OpcodeLocalGet, OpcodeLocalSet, OpcodeLocalTee,
		OpcodeGlobalGet, OpcodeGlobalSet,
		OpcodeCall, OpcodeBr, OpcodeBrIf,
		OpcodeTableGet, OpcodeTableSet,
		OpcodeMemorySize, OpcodeMemoryGrow:
		r.SeekTo(pos)
		r.ReadUnsigned(32)
		return r.Pos()

	case OpcodeCallIndirect:
		r.SeekTo(pos)
		r.ReadUnsigned(32)
		r.ReadUnsigned(32)
		return r.Pos()

	case OpcodeBrTable:
		r.SeekTo(pos)
		n := r.ReadUnsigned(32)
		for i := uint64(0); i < n; i++ {
			r.ReadUnsigned(32)
		}
		r.ReadUnsigned(32) // default label
		return r.Pos()

	case OpcodeI32Const:
		r.SeekTo(pos)
		r.ReadSigned(32)
		return r.Pos()
	case OpcodeI64Const:
		r.SeekTo(pos)
		r.ReadSigned(64)
		return r.Pos()
	case OpcodeF32Const:
		return pos + 4
	case OpcodeF64Const:
		return pos + 8

	case OpcodeI32Load, OpcodeI64Load, OpcodeF32Load, OpcodeF64Load,
		OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI32Load16S, OpcodeI32Load16U,
		OpcodeI64Load8S, OpcodeI64Load8U, OpcodeI64Load16S, OpcodeI64Load16U,
		OpcodeI64Load32S, OpcodeI64Load32U,
		OpcodeI32Store, OpcodeI64Store, OpcodeF32Store, OpcodeF64Store,
		OpcodeI32Store8, OpcodeI32Store16, OpcodeI64Store8, OpcodeI64Store16, OpcodeI64Store32:
		r.SeekTo(pos)
		r.ReadUnsigned(32) // align
		r.ReadUnsigned(32) // offset
		return r.Pos()

	case OpcodeMiscPrefix:
		r.SeekTo(pos)
		r.ReadUnsigned(32) // sub-opcode; unsupported, trapped on encounter
		return r.Pos()
	case OpcodeVectorPrefix:
		// Unsupported; encounter traps before this matters, but keep the
		// scan from looping forever on malformed input.
		return pos + 1

	default:
		// No-operand instructions: unreachable, nop, else, end, return,
		// drop, select, and every numeric/comparison/conversion opcode.
		return pos
	}
}

// scanToMatchingEndOrElse scans forward from bodyStart (the first byte
// after a block/loop/if's signature) and returns the position of the
// matching end opcode and, for if, the position of its matching else (0 if
// absent), using a depth counter over nested block/loop/if/end.
func scanToMatchingEndOrElse(code []byte, bodyStart int) (elseAt int, endAt int) {
	depth := 0
	pos := bodyStart
	for pos < len(code) {
		op := Opcode(code[pos])
		switch op {
		case OpcodeBlock, OpcodeLoop, OpcodeIf:
			depth++
		case OpcodeElse:
			if depth == 0 {
				elseAt = pos
			}
		case OpcodeEnd:
			if depth == 0 {
				return elseAt, pos
			}
			depth--
		}
		pos = instrOperandEnd(code, pos)
	}
	return elseAt, pos
}
