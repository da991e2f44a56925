package wasm

import (
	"math"
	"math/bits"

	"github.com/xehp/drekkar-webasm/leb128"
	"github.com/xehp/drekkar-webasm/wasmerr"
)

// CallExported sets up the first frame for the named export and primes the
// Instance to run it on the next Tick, per spec.md §5: call-exported-
// function "only sets up the first frame".
func (in *Instance) CallExported(name string, args ...uint64) error {
	idx, ok := in.prog.Exports[name]
	if !ok {
		return wasmerr.New(wasmerr.CodeFunctionIndexOutOfRange, "export not found: "+name)
	}
	return in.callFunction(idx, args)
}

func (in *Instance) callFunction(idx uint32, args []uint64) error {
	if idx >= uint32(len(in.prog.Funcs)) {
		return wasmerr.New(wasmerr.CodeFunctionIndexOutOfRange, "function index out of range")
	}
	f := in.prog.Funcs[idx]
	if f.Imported {
		return wasmerr.New(wasmerr.CodeCallingImportedAsStart, "cannot call an imported function as entry point")
	}
	ft := in.prog.Types[f.TypeIndex]
	if len(args) != len(ft.Params) {
		return wasmerr.New(wasmerr.CodeIndirectCallInsufficientParams, "argument count mismatch")
	}

	fp := in.stack.sp + 1
	for _, a := range args {
		in.stack.push(a)
	}
	for i := uint32(0); i < f.NumLocals; i++ {
		in.stack.push(0)
	}
	in.blocks.push(blockEntry{
		kind:               blockKindFunction,
		typeIndex:          int64(f.TypeIndex),
		savedOperandSP:      fp,
		callerFramePointer: in.fp,
		returnPC:           -1,
		funcIndex:          idx,
	})
	in.fp = fp
	in.pc = f.CodeStart
	return nil
}

// Results copies the top n values off the operand stack in stack order
// (bottom-most result first), for the host to read after Tick returns
// CodeOK with an empty block stack.
func (in *Instance) Results(n int) []uint64 {
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = in.stack.peekAt(uint32(i))
	}
	return out
}

// Tick runs opcodes until the current call completes (CodeOK), gas runs
// out (CodeNeedMoreGas), or a trap occurs. On every control step it
// validates the stack sentinel, that pc is within the code region, and
// that the exception buffer is empty (spec.md §4.6); any violation returns
// a distinct trap code and leaves the Instance usable only for inspection
// and teardown.
func (in *Instance) Tick() (Status, *wasmerr.Error) {
	code := in.prog.Code
	for {
		if in.blocks.len() == 0 {
			return Status(wasmerr.CodeOK), nil
		}
		if in.exception != "" {
			return 0, wasmerr.New(wasmerr.CodeHostCallException, in.exception)
		}
		if in.pc < 0 || in.pc >= len(code) {
			return 0, wasmerr.New(wasmerr.CodePCOutOfRange, "pc out of range")
		}
		if !in.sentinelIntact() {
			return 0, wasmerr.New(wasmerr.CodeStackOverflow, "operand stack sentinel violated")
		}

		op := Opcode(code[in.pc])
		if isControlOpcode(op) {
			if in.gas == 0 {
				return Status(wasmerr.CodeNeedMoreGas), nil
			}
			if in.gas > 0 {
				in.gas -= DefaultGasPerOp
			}
		}

		trap := in.step(op)
		if trap != wasmerr.CodeOK {
			if trap == codeFunctionReturnedOK {
				return Status(wasmerr.CodeOK), nil
			}
			if in.exception == "" {
				in.exception = trap.String()
			}
			return 0, wasmerr.New(trap, in.exception)
		}
	}
}

// codeFunctionReturnedOK is an internal-only sentinel step() uses to
// signal "the top-level function frame just ended"; Tick translates it to
// CodeOK and never surfaces it to callers.
const codeFunctionReturnedOK = wasmerr.Code(-1)

func isControlOpcode(op Opcode) bool {
	switch op {
	case OpcodeBlock, OpcodeLoop, OpcodeIf, OpcodeElse, OpcodeEnd,
		OpcodeBr, OpcodeBrIf, OpcodeBrTable, OpcodeReturn,
		OpcodeCall, OpcodeCallIndirect, OpcodeUnreachable, OpcodeNop:
		return true
	default:
		return false
	}
}

// step executes exactly one opcode, advancing in.pc, and returns
// wasmerr.CodeOK on success, codeFunctionReturnedOK if the outermost
// function frame just ended, or a trap code.
func (in *Instance) step(op Opcode) wasmerr.Code {
	r := leb128.NewReader(in.prog.Code)
	r.SeekTo(in.pc + 1)

	switch op {
	case OpcodeUnreachable:
		return wasmerr.CodeUnreachable
	case OpcodeNop:
		in.pc++
		return wasmerr.CodeOK

	case OpcodeBlock:
		return in.opBlock(r)
	case OpcodeLoop:
		return in.opLoop(r)
	case OpcodeIf:
		return in.opIf(r)
	case OpcodeElse:
		return in.opElse()
	case OpcodeEnd:
		return in.opEnd()
	case OpcodeBr:
		return in.opBr(r)
	case OpcodeBrIf:
		return in.opBrIf(r)
	case OpcodeBrTable:
		return in.opBrTable(r)
	case OpcodeReturn:
		return in.opReturn()
	case OpcodeCall:
		return in.opCall(r)
	case OpcodeCallIndirect:
		return in.opCallIndirect(r)

	case OpcodeDrop:
		in.stack.pop()
		in.pc++
		return wasmerr.CodeOK
	case OpcodeSelect:
		c := in.stack.pop()
		b := in.stack.pop()
		a := in.stack.pop()
		if c != 0 {
			in.stack.push(a)
		} else {
			in.stack.push(b)
		}
		in.pc++
		return wasmerr.CodeOK

	case OpcodeLocalGet:
		idx := r.ReadUnsigned(32)
		in.stack.push(in.stack.get(in.fp + uint32(idx)))
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeLocalSet:
		idx := r.ReadUnsigned(32)
		in.stack.set(in.fp+uint32(idx), in.stack.pop())
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeLocalTee:
		idx := r.ReadUnsigned(32)
		in.stack.set(in.fp+uint32(idx), in.stack.peek())
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeGlobalGet:
		idx := r.ReadUnsigned(32)
		in.stack.push(in.globals[idx])
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeGlobalSet:
		idx := r.ReadUnsigned(32)
		in.globals[idx] = in.stack.pop()
		in.pc = r.Pos()
		return wasmerr.CodeOK

	case OpcodeTableGet, OpcodeTableSet:
		return wasmerr.CodeUnsupportedTableMutation

	case OpcodeMemorySize:
		r.ReadUnsigned(32) // reserved byte
		in.stack.push(uint64(in.mem.Pages()))
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeMemoryGrow:
		r.ReadUnsigned(32) // reserved byte
		delta := uint32(in.stack.pop())
		prev, ok := in.mem.Grow(delta)
		if !ok {
			in.stack.push(uint64(uint32(0xFFFFFFFF)))
		} else {
			in.stack.push(uint64(prev))
			if in.gas > 0 {
				in.gas -= DefaultGasPerGrowPage * int64(delta)
				if in.gas < 0 {
					in.gas = 0
				}
			}
		}
		in.pc = r.Pos()
		return wasmerr.CodeOK

	case OpcodeI32Const:
		v := r.ReadSigned(32)
		in.stack.push(uint64(uint32(int32(v))))
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeI64Const:
		v := r.ReadSigned(64)
		in.stack.push(uint64(v))
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeF32Const:
		v := r.ReadU32LE()
		in.stack.push(uint64(v))
		in.pc = r.Pos()
		return wasmerr.CodeOK
	case OpcodeF64Const:
		v := r.ReadU64LE()
		in.stack.push(v)
		in.pc = r.Pos()
		return wasmerr.CodeOK
	}

	if op >= OpcodeI32Load && op <= OpcodeMemoryGrow {
		return in.opMemoryAccess(op, r)
	}
	if op >= OpcodeI32Eqz && op <= OpcodeI64Extend32S {
		return in.opNumeric(op)
	}
	if op == OpcodeMiscPrefix {
		return wasmerr.CodeUnsupportedSaturatingTruncation
	}
	if op == OpcodeVectorPrefix {
		return wasmerr.CodeUnsupportedSIMD
	}
	return wasmerr.CodeUnsupportedParametric
}

func (in *Instance) opBlock(r *leb128.Reader) wasmerr.Code {
	sig := r.ReadSigned(33)
	bodyStart := r.Pos()
	_, endAt := scanToMatchingEndOrElse(in.prog.Code, bodyStart)
	in.blocks.push(blockEntry{
		kind:           blockKindBlock,
		typeIndex:      sig,
		branchAddr:     endAt + 1,
		savedOperandSP: in.stack.len(),
	})
	in.pc = bodyStart
	return wasmerr.CodeOK
}

func (in *Instance) opLoop(r *leb128.Reader) wasmerr.Code {
	sig := r.ReadSigned(33)
	bodyStart := r.Pos()
	in.blocks.push(blockEntry{
		kind:           blockKindLoop,
		typeIndex:      sig,
		branchAddr:     bodyStart,
		savedOperandSP: in.stack.len(),
	})
	in.pc = bodyStart
	return wasmerr.CodeOK
}

func (in *Instance) opIf(r *leb128.Reader) wasmerr.Code {
	sig := r.ReadSigned(33)
	bodyStart := r.Pos()
	elseAt, endAt := scanToMatchingEndOrElse(in.prog.Code, bodyStart)
	cond := in.stack.pop()
	in.blocks.push(blockEntry{
		kind:           blockKindIf,
		typeIndex:      sig,
		branchAddr:     endAt + 1,
		elseAddr:       elseAt,
		endAddr:        endAt,
		savedOperandSP: in.stack.len(),
	})
	if cond != 0 {
		in.pc = bodyStart
	} else if elseAt != 0 {
		in.pc = elseAt + 1
	} else {
		// Land on the matching end so opEnd pops this block entry.
		in.pc = endAt
	}
	return wasmerr.CodeOK
}

func (in *Instance) opElse() wasmerr.Code {
	// Reached by falling off the end of the true branch: behaves exactly
	// like the enclosing if's own end, popping its block entry and
	// shifting its result values down, then resuming after the matching
	// end opcode (the else branch is skipped).
	if in.blocks.len() == 0 {
		return wasmerr.CodeBlockStackUnderflow
	}
	entry := in.blocks.pop()
	in.shiftResults(&entry)
	in.pc = entry.endAddr + 1
	return wasmerr.CodeOK
}

func (in *Instance) opEnd() wasmerr.Code {
	if in.blocks.len() == 0 {
		return wasmerr.CodeBlockStackUnderflow
	}
	entry := in.blocks.pop()
	in.shiftResults(&entry)

	if entry.kind == blockKindFunction {
		in.fp = entry.callerFramePointer
		if in.blocks.len() == 0 {
			return codeFunctionReturnedOK
		}
		in.pc = entry.returnPC
		return wasmerr.CodeOK
	}
	in.pc++
	return wasmerr.CodeOK
}

// shiftResults implements spec.md §4.6 "On reaching end": compute how many
// result values the block's signature expects and shift those values down
// to the block's saved operand-stack pointer, dropping any locals or
// intermediates left in between.
func (in *Instance) shiftResults(entry *blockEntry) {
	n := entry.resultCount(in.prog)
	results := make([]uint64, n)
	for i := n - 1; i >= 0; i-- {
		results[i] = in.stack.pop()
	}
	in.stack.truncateTo(entry.savedOperandSP)
	for _, v := range results {
		in.stack.push(v)
	}
}

func (in *Instance) opBr(r *leb128.Reader) wasmerr.Code {
	l := r.ReadUnsigned(32)
	return in.branch(int(l))
}

func (in *Instance) opBrIf(r *leb128.Reader) wasmerr.Code {
	l := r.ReadUnsigned(32)
	cond := in.stack.pop()
	if cond == 0 {
		in.pc = r.Pos()
		return wasmerr.CodeOK
	}
	return in.branch(int(l))
}

func (in *Instance) opBrTable(r *leb128.Reader) wasmerr.Code {
	n := r.ReadUnsigned(32)
	labels := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		labels[i] = r.ReadUnsigned(32)
	}
	def := r.ReadUnsigned(32)
	idx := uint32(in.stack.pop())
	target := def
	if uint64(idx) < n {
		target = labels[idx]
	}
	return in.branch(int(target))
}

// branch pops L+1 block entries and jumps to the topmost remaining block's
// branch target, per spec.md §4.6. Branching out of a function frame is
// not permitted by validated WebAssembly and is reported as
// CodeBranchTargetOutOfRange here rather than silently returning.
func (in *Instance) branch(l int) wasmerr.Code {
	if l >= in.blocks.len() {
		return wasmerr.CodeLabelOutOfRange
	}
	var target blockEntry
	for i := 0; i <= l; i++ {
		e := in.blocks.pop()
		if e.kind == blockKindFunction {
			return wasmerr.CodeBranchTargetOutOfRange
		}
		target = e
	}
	if target.kind == blockKindLoop {
		// Branching to a loop re-enters at its head: drop everything back
		// to entry (the loop provides no result values), and keep the
		// loop's own entry live since it has not ended.
		in.stack.truncateTo(target.savedOperandSP)
		in.blocks.push(target)
	} else {
		// Branching to a block/if behaves as if it (and everything
		// nested inside it) reached `end`: shift its result values down
		// and leave it popped.
		in.shiftResults(&target)
	}
	in.pc = target.branchAddr
	return wasmerr.CodeOK
}

func (in *Instance) opReturn() wasmerr.Code {
	// Drop all nested blocks up to and including the innermost function
	// frame without executing their end, per spec.md §4.6.
	for {
		if in.blocks.len() == 0 {
			return wasmerr.CodeBlockStackUnderflow
		}
		entry := in.blocks.pop()
		if entry.kind == blockKindFunction {
			in.shiftResults(&entry)
			in.fp = entry.callerFramePointer
			if in.blocks.len() == 0 {
				return codeFunctionReturnedOK
			}
			in.pc = entry.returnPC
			return wasmerr.CodeOK
		}
	}
}

func (in *Instance) opCall(r *leb128.Reader) wasmerr.Code {
	idx := uint32(r.ReadUnsigned(32))
	returnPC := r.Pos()
	return in.call(idx, returnPC)
}

func (in *Instance) opCallIndirect(r *leb128.Reader) wasmerr.Code {
	typeIdx := uint32(r.ReadUnsigned(32))
	r.ReadUnsigned(32) // table index, always 0 (single-table subset)
	returnPC := r.Pos()

	tblIdx := uint32(in.stack.pop())
	if int(tblIdx) >= len(in.table) {
		return wasmerr.CodeFunctionIndexOutOfRange
	}
	funcIdx := in.table[tblIdx]
	if int(funcIdx) >= len(in.prog.Funcs) {
		return wasmerr.CodeFunctionIndexOutOfRange
	}
	f := in.prog.Funcs[funcIdx]
	if f.TypeIndex != typeIdx && !in.prog.Types[f.TypeIndex].equals(in.prog.Types[typeIdx]) {
		return wasmerr.CodeIndirectCallTypeMismatch
	}
	paramCount := uint32(len(in.prog.Types[typeIdx].Params))
	if in.stack.len() < paramCount {
		return wasmerr.CodeIndirectCallInsufficientParams
	}
	return in.call(funcIdx, returnPC)
}

// call implements both direct and (after validation) indirect calls:
// imported functions invoke their registered host pointer synchronously;
// internal functions push a new function frame and jump to the callee's
// start, per spec.md §4.6 "Calls".
func (in *Instance) call(idx uint32, returnPC int) wasmerr.Code {
	if idx >= uint32(len(in.prog.Funcs)) {
		return wasmerr.CodeFunctionIndexOutOfRange
	}
	f := in.prog.Funcs[idx]
	ft := in.prog.Types[f.TypeIndex]

	if f.Imported {
		call := newHostCall(in, len(ft.Params))
		if err := f.HostFunc(call); err != nil {
			in.exception = err.Error()
			return wasmerr.CodeHostCallException
		}
		if in.exception != "" {
			return wasmerr.CodeHostCallException
		}
		in.pc = returnPC
		return wasmerr.CodeOK
	}

	fp := in.stack.sp + 1 - uint32(len(ft.Params))
	for i := uint32(0); i < f.NumLocals; i++ {
		in.stack.push(0)
	}
	in.blocks.push(blockEntry{
		kind:               blockKindFunction,
		typeIndex:          int64(f.TypeIndex),
		savedOperandSP:      fp,
		callerFramePointer: in.fp,
		returnPC:           returnPC,
		funcIndex:          idx,
	})
	in.fp = fp
	in.pc = f.CodeStart
	return wasmerr.CodeOK
}

// ---- memory access ----

func (in *Instance) opMemoryAccess(op Opcode, r *leb128.Reader) wasmerr.Code {
	r.ReadUnsigned(32) // align hint, ignored
	offset := r.ReadUnsigned(32)

	switch op {
	case OpcodeI32Load, OpcodeI64Load, OpcodeF32Load, OpcodeF64Load,
		OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI32Load16S, OpcodeI32Load16U,
		OpcodeI64Load8S, OpcodeI64Load8U, OpcodeI64Load16S, OpcodeI64Load16U,
		OpcodeI64Load32S, OpcodeI64Load32U:
		return in.doLoad(op, offset, r)
	default:
		return in.doStore(op, offset, r)
	}
}

func loadWidth(op Opcode) int {
	switch op {
	case OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI64Load8S, OpcodeI64Load8U:
		return 1
	case OpcodeI32Load16S, OpcodeI32Load16U, OpcodeI64Load16S, OpcodeI64Load16U:
		return 2
	case OpcodeI32Load, OpcodeF32Load, OpcodeI64Load32S, OpcodeI64Load32U:
		return 4
	default:
		return 8
	}
}

func (in *Instance) doLoad(op Opcode, offset uint64, r *leb128.Reader) wasmerr.Code {
	addr := uint64(uint32(in.stack.pop())) + offset
	width := loadWidth(op)
	b, err := in.mem.Translate(addr, uint64(width))
	if err != nil {
		return wasmerr.CodeMemoryOutOfRange
	}
	var raw uint64
	for i := width - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(b[i])
	}

	switch op {
	case OpcodeI32Load, OpcodeI32Load8U, OpcodeI32Load16U:
		in.stack.push(uint64(uint32(raw)))
	case OpcodeI32Load8S:
		in.stack.push(uint64(uint32(int32(int8(raw)))))
	case OpcodeI32Load16S:
		in.stack.push(uint64(uint32(int32(int16(raw)))))
	case OpcodeI64Load, OpcodeI64Load8U, OpcodeI64Load16U, OpcodeI64Load32U:
		in.stack.push(raw)
	case OpcodeI64Load8S:
		in.stack.push(uint64(int64(int8(raw))))
	case OpcodeI64Load16S:
		in.stack.push(uint64(int64(int16(raw))))
	case OpcodeI64Load32S:
		in.stack.push(uint64(int64(int32(raw))))
	case OpcodeF32Load, OpcodeF64Load:
		in.stack.push(raw)
	}
	in.pc = r.Pos()
	return wasmerr.CodeOK
}

func storeWidth(op Opcode) int {
	switch op {
	case OpcodeI32Store8, OpcodeI64Store8:
		return 1
	case OpcodeI32Store16, OpcodeI64Store16:
		return 2
	case OpcodeI32Store, OpcodeF32Store, OpcodeI64Store32:
		return 4
	default:
		return 8
	}
}

func (in *Instance) doStore(op Opcode, offset uint64, r *leb128.Reader) wasmerr.Code {
	value := in.stack.pop()
	addr := uint64(uint32(in.stack.pop())) + offset
	width := storeWidth(op)
	b, err := in.mem.Translate(addr, uint64(width))
	if err != nil {
		return wasmerr.CodeMemoryOutOfRange
	}
	for i := 0; i < width; i++ {
		b[i] = byte(value >> (8 * uint(i)))
	}
	in.pc = r.Pos()
	return wasmerr.CodeOK
}

// ---- numeric ops ----

func (in *Instance) opNumeric(op Opcode) wasmerr.Code {
	s := in.stack
	switch op {
	case OpcodeI32Eqz:
		s.push(b2u(uint32(s.pop()) == 0))
	case OpcodeI32Eq:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(b2u(a == b))
	case OpcodeI32Ne:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(b2u(a != b))
	case OpcodeI32LtS:
		b, a := int32(s.pop()), int32(s.pop())
		s.push(b2u(a < b))
	case OpcodeI32LtU:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(b2u(a < b))
	case OpcodeI32GtS:
		b, a := int32(s.pop()), int32(s.pop())
		s.push(b2u(a > b))
	case OpcodeI32GtU:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(b2u(a > b))
	case OpcodeI32LeS:
		b, a := int32(s.pop()), int32(s.pop())
		s.push(b2u(a <= b))
	case OpcodeI32LeU:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(b2u(a <= b))
	case OpcodeI32GeS:
		b, a := int32(s.pop()), int32(s.pop())
		s.push(b2u(a >= b))
	case OpcodeI32GeU:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(b2u(a >= b))

	case OpcodeI64Eqz:
		s.push(b2u(s.pop() == 0))
	case OpcodeI64Eq:
		b, a := s.pop(), s.pop()
		s.push(b2u(a == b))
	case OpcodeI64Ne:
		b, a := s.pop(), s.pop()
		s.push(b2u(a != b))
	case OpcodeI64LtS:
		b, a := int64(s.pop()), int64(s.pop())
		s.push(b2u(a < b))
	case OpcodeI64LtU:
		b, a := s.pop(), s.pop()
		s.push(b2u(a < b))
	case OpcodeI64GtS:
		b, a := int64(s.pop()), int64(s.pop())
		s.push(b2u(a > b))
	case OpcodeI64GtU:
		b, a := s.pop(), s.pop()
		s.push(b2u(a > b))
	case OpcodeI64LeS:
		b, a := int64(s.pop()), int64(s.pop())
		s.push(b2u(a <= b))
	case OpcodeI64LeU:
		b, a := s.pop(), s.pop()
		s.push(b2u(a <= b))
	case OpcodeI64GeS:
		b, a := int64(s.pop()), int64(s.pop())
		s.push(b2u(a >= b))
	case OpcodeI64GeU:
		b, a := s.pop(), s.pop()
		s.push(b2u(a >= b))

	case OpcodeF32Eq:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(b2u(a == b))
	case OpcodeF32Ne:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(b2u(a != b))
	case OpcodeF32Lt:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(b2u(a < b))
	case OpcodeF32Gt:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(b2u(a > b))
	case OpcodeF32Le:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(b2u(a <= b))
	case OpcodeF32Ge:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(b2u(a >= b))

	case OpcodeF64Eq:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(b2u(a == b))
	case OpcodeF64Ne:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(b2u(a != b))
	case OpcodeF64Lt:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(b2u(a < b))
	case OpcodeF64Gt:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(b2u(a > b))
	case OpcodeF64Le:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(b2u(a <= b))
	case OpcodeF64Ge:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(b2u(a >= b))

	case OpcodeI32Clz:
		s.push(uint64(bits.LeadingZeros32(uint32(s.pop()))))
	case OpcodeI32Ctz:
		s.push(uint64(bits.TrailingZeros32(uint32(s.pop()))))
	case OpcodeI32Popcnt:
		s.push(uint64(bits.OnesCount32(uint32(s.pop()))))
	case OpcodeI32Add:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(uint64(a + b))
	case OpcodeI32Sub:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(uint64(a - b))
	case OpcodeI32Mul:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(uint64(a * b))
	case OpcodeI32DivS:
		b, a := int32(s.pop()), int32(s.pop())
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		if a == math.MinInt32 && b == -1 {
			return wasmerr.CodeIntegerOverflow
		}
		s.push(uint64(uint32(a / b)))
	case OpcodeI32DivU:
		b, a := uint32(s.pop()), uint32(s.pop())
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		s.push(uint64(a / b))
	case OpcodeI32RemS:
		b, a := int32(s.pop()), int32(s.pop())
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		if a == math.MinInt32 && b == -1 {
			s.push(0)
		} else {
			s.push(uint64(uint32(a % b)))
		}
	case OpcodeI32RemU:
		b, a := uint32(s.pop()), uint32(s.pop())
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		s.push(uint64(a % b))
	case OpcodeI32And:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(uint64(a & b))
	case OpcodeI32Or:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(uint64(a | b))
	case OpcodeI32Xor:
		b, a := uint32(s.pop()), uint32(s.pop())
		s.push(uint64(a ^ b))
	case OpcodeI32Shl:
		b, a := uint32(s.pop())&31, uint32(s.pop())
		s.push(uint64(a << b))
	case OpcodeI32ShrS:
		b, a := uint32(s.pop())&31, int32(s.pop())
		s.push(uint64(uint32(a >> b)))
	case OpcodeI32ShrU:
		b, a := uint32(s.pop())&31, uint32(s.pop())
		s.push(uint64(a >> b))
	case OpcodeI32Rotl:
		b, a := uint32(s.pop())&31, uint32(s.pop())
		s.push(uint64(bits.RotateLeft32(a, int(b))))
	case OpcodeI32Rotr:
		b, a := uint32(s.pop())&31, uint32(s.pop())
		s.push(uint64(bits.RotateLeft32(a, -int(b))))

	case OpcodeI64Clz:
		s.push(uint64(bits.LeadingZeros64(s.pop())))
	case OpcodeI64Ctz:
		s.push(uint64(bits.TrailingZeros64(s.pop())))
	case OpcodeI64Popcnt:
		s.push(uint64(bits.OnesCount64(s.pop())))
	case OpcodeI64Add:
		b, a := s.pop(), s.pop()
		s.push(a + b)
	case OpcodeI64Sub:
		b, a := s.pop(), s.pop()
		s.push(a - b)
	case OpcodeI64Mul:
		b, a := s.pop(), s.pop()
		s.push(a * b)
	case OpcodeI64DivS:
		b, a := int64(s.pop()), int64(s.pop())
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		if a == math.MinInt64 && b == -1 {
			return wasmerr.CodeIntegerOverflow
		}
		s.push(uint64(a / b))
	case OpcodeI64DivU:
		b, a := s.pop(), s.pop()
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		s.push(a / b)
	case OpcodeI64RemS:
		b, a := int64(s.pop()), int64(s.pop())
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		if a == math.MinInt64 && b == -1 {
			s.push(0)
		} else {
			s.push(uint64(a % b))
		}
	case OpcodeI64RemU:
		b, a := s.pop(), s.pop()
		if b == 0 {
			return wasmerr.CodeDivideByZero
		}
		s.push(a % b)
	case OpcodeI64And:
		b, a := s.pop(), s.pop()
		s.push(a & b)
	case OpcodeI64Or:
		b, a := s.pop(), s.pop()
		s.push(a | b)
	case OpcodeI64Xor:
		b, a := s.pop(), s.pop()
		s.push(a ^ b)
	case OpcodeI64Shl:
		b, a := s.pop()&63, s.pop()
		s.push(a << b)
	case OpcodeI64ShrS:
		b, a := s.pop()&63, int64(s.pop())
		s.push(uint64(a >> b))
	case OpcodeI64ShrU:
		b, a := s.pop()&63, s.pop()
		s.push(a >> b)
	case OpcodeI64Rotl:
		b, a := s.pop()&63, s.pop()
		s.push(bits.RotateLeft64(a, int(b)))
	case OpcodeI64Rotr:
		b, a := s.pop()&63, s.pop()
		s.push(bits.RotateLeft64(a, -int(b)))

	case OpcodeF32Abs:
		s.push(u32bits(float32(math.Abs(float64(f32(s.pop()))))))
	case OpcodeF32Neg:
		s.push(u32bits(-f32(s.pop())))
	case OpcodeF32Ceil:
		s.push(u32bits(float32(math.Ceil(float64(f32(s.pop()))))))
	case OpcodeF32Floor:
		s.push(u32bits(float32(math.Floor(float64(f32(s.pop()))))))
	case OpcodeF32Trunc:
		s.push(u32bits(float32(math.Trunc(float64(f32(s.pop()))))))
	case OpcodeF32Nearest:
		s.push(u32bits(float32(math.RoundToEven(float64(f32(s.pop()))))))
	case OpcodeF32Sqrt:
		s.push(u32bits(float32(math.Sqrt(float64(f32(s.pop()))))))
	case OpcodeF32Add:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(a + b))
	case OpcodeF32Sub:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(a - b))
	case OpcodeF32Mul:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(a * b))
	case OpcodeF32Div:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(a / b))
	case OpcodeF32Min:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(float32(fmin(float64(a), float64(b)))))
	case OpcodeF32Max:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(float32(fmax(float64(a), float64(b)))))
	case OpcodeF32Copysign:
		b, a := f32(s.pop()), f32(s.pop())
		s.push(u32bits(float32(math.Copysign(float64(a), float64(b)))))

	case OpcodeF64Abs:
		s.push(u64bits(math.Abs(f64(s.pop()))))
	case OpcodeF64Neg:
		s.push(u64bits(-f64(s.pop())))
	case OpcodeF64Ceil:
		s.push(u64bits(math.Ceil(f64(s.pop()))))
	case OpcodeF64Floor:
		s.push(u64bits(math.Floor(f64(s.pop()))))
	case OpcodeF64Trunc:
		s.push(u64bits(math.Trunc(f64(s.pop()))))
	case OpcodeF64Nearest:
		s.push(u64bits(math.RoundToEven(f64(s.pop()))))
	case OpcodeF64Sqrt:
		s.push(u64bits(math.Sqrt(f64(s.pop()))))
	case OpcodeF64Add:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(a + b))
	case OpcodeF64Sub:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(a - b))
	case OpcodeF64Mul:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(a * b))
	case OpcodeF64Div:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(a / b))
	case OpcodeF64Min:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(fmin(a, b)))
	case OpcodeF64Max:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(fmax(a, b)))
	case OpcodeF64Copysign:
		b, a := f64(s.pop()), f64(s.pop())
		s.push(u64bits(math.Copysign(a, b)))

	case OpcodeI32WrapI64:
		s.push(uint64(uint32(s.pop())))
	case OpcodeI64ExtendI32S:
		s.push(uint64(int64(int32(uint32(s.pop())))))
	case OpcodeI64ExtendI32U:
		s.push(uint64(uint32(s.pop())))

	case OpcodeI32TruncF32S:
		v, trap := truncToInt(float64(f32(s.pop())), math.MinInt32, math.MaxInt32)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(uint64(uint32(int32(v))))
	case OpcodeI32TruncF32U:
		v, trap := truncToUint(float64(f32(s.pop())), math.MaxUint32)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(uint64(uint32(v)))
	case OpcodeI32TruncF64S:
		v, trap := truncToInt(f64(s.pop()), math.MinInt32, math.MaxInt32)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(uint64(uint32(int32(v))))
	case OpcodeI32TruncF64U:
		v, trap := truncToUint(f64(s.pop()), math.MaxUint32)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(uint64(uint32(v)))
	case OpcodeI64TruncF32S:
		v, trap := truncToInt(float64(f32(s.pop())), math.MinInt64, math.MaxInt64)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(uint64(v))
	case OpcodeI64TruncF32U:
		v, trap := truncToUint(float64(f32(s.pop())), math.MaxUint64)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(v)
	case OpcodeI64TruncF64S:
		v, trap := truncToInt(f64(s.pop()), math.MinInt64, math.MaxInt64)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(uint64(v))
	case OpcodeI64TruncF64U:
		v, trap := truncToUint(f64(s.pop()), math.MaxUint64)
		if trap != wasmerr.CodeOK {
			return trap
		}
		s.push(v)

	case OpcodeF32ConvertI32S:
		s.push(u32bits(float32(int32(s.pop()))))
	case OpcodeF32ConvertI32U:
		s.push(u32bits(float32(uint32(s.pop()))))
	case OpcodeF32ConvertI64S:
		s.push(u32bits(float32(int64(s.pop()))))
	case OpcodeF32ConvertI64U:
		s.push(u32bits(float32(s.pop())))
	case OpcodeF32DemoteF64:
		s.push(u32bits(float32(f64(s.pop()))))
	case OpcodeF64ConvertI32S:
		s.push(u64bits(float64(int32(s.pop()))))
	case OpcodeF64ConvertI32U:
		s.push(u64bits(float64(uint32(s.pop()))))
	case OpcodeF64ConvertI64S:
		s.push(u64bits(float64(int64(s.pop()))))
	case OpcodeF64ConvertI64U:
		s.push(u64bits(float64(s.pop())))
	case OpcodeF64PromoteF32:
		s.push(u64bits(float64(f32(s.pop()))))

	case OpcodeI32ReinterpretF32:
		s.push(uint64(uint32(s.pop())))
	case OpcodeI64ReinterpretF64:
		s.push(s.pop())
	case OpcodeF32ReinterpretI32:
		s.push(uint64(uint32(s.pop())))
	case OpcodeF64ReinterpretI64:
		s.push(s.pop())

	case OpcodeI32Extend8S:
		s.push(uint64(uint32(int32(int8(uint8(s.pop()))))))
	case OpcodeI32Extend16S:
		s.push(uint64(uint32(int32(int16(uint16(s.pop()))))))
	case OpcodeI64Extend8S:
		s.push(uint64(int64(int8(uint8(s.pop())))))
	case OpcodeI64Extend16S:
		s.push(uint64(int64(int16(uint16(s.pop())))))
	case OpcodeI64Extend32S:
		s.push(uint64(int64(int32(uint32(s.pop())))))

	default:
		return wasmerr.CodeUnsupportedParametric
	}
	in.pc++
	return wasmerr.CodeOK
}

func truncToInt(v float64, min, max int64) (int64, wasmerr.Code) {
	if math.IsNaN(v) {
		return 0, wasmerr.CodeInvalidConversionToInteger
	}
	t := math.Trunc(v)
	if t < float64(min) || t > float64(max) {
		return 0, wasmerr.CodeIntegerOverflow
	}
	return int64(t), wasmerr.CodeOK
}

func truncToUint(v float64, max uint64) (uint64, wasmerr.Code) {
	if math.IsNaN(v) {
		return 0, wasmerr.CodeInvalidConversionToInteger
	}
	t := math.Trunc(v)
	if t < 0 || (max != math.MaxUint64 && t > float64(max)) {
		return 0, wasmerr.CodeIntegerOverflow
	}
	if max == math.MaxUint64 && t >= 18446744073709551616.0 {
		return 0, wasmerr.CodeIntegerOverflow
	}
	return uint64(t), wasmerr.CodeOK
}

func fmin(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return math.Min(a, b)
}

func fmax(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return math.Max(a, b)
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func f32(bits uint64) float32 { return math.Float32frombits(uint32(bits)) }
func f64(bits uint64) float64 { return math.Float64frombits(bits) }
func u32bits(f float32) uint64 { return uint64(math.Float32bits(f)) }
func u64bits(f float64) uint64 { return math.Float64bits(f) }
