package wasm

import (
	"github.com/xehp/drekkar-webasm/internal/memregion"
)

// Status is the Tick control-status, distinct from a trap: CodeOK and
// CodeNeedMoreGas are never errors (spec.md §7).
type Status int

// InstantiateOption configures Instantiate; see WithGasLimitOpt et al. in
// instantiate.go.
type InstantiateOption func(*instOptions)

type instOptions struct {
	gasLimit        int64
	operandStackLen int
	memoryMaxPages  uint32
}

// Instance is the per-invocation mutable state described in spec.md §3/§2
// item 4 ("Data"): operand stack, frame pointer, block/call stack, linear
// memory, gas counter, exception buffer. Many Instances may share one
// Program (spec.md §3 lifecycle note); concurrency across Instances is not
// provided.
type Instance struct {
	prog *Program

	stack  *operandStack
	blocks *blockStack
	fp     uint32 // frame pointer: operand-stack index where current locals begin

	mem     *memregion.Region
	globals []uint64
	table   []uint32

	gas int64

	exception string

	pc int // current byte offset into prog.Code; kept across Tick calls so a suspended run resumes here

	logger Logger
}

// Program returns the Instance's immutable backing Program.
func (in *Instance) Program() *Program { return in.prog }

// Gas returns the instance's current gas balance.
func (in *Instance) Gas() int64 { return in.gas }

// SetGas replaces the instance's gas balance, letting the host resume a
// suspended instance with a fresh budget (spec.md §5).
func (in *Instance) SetGas(gas int64) { in.gas = gas }

// Exception returns the current exception-buffer contents; non-empty means
// a trap has been signalled (spec.md §3).
func (in *Instance) Exception() string { return in.exception }

// Global reads global i.
func (in *Instance) Global(i uint32) uint64 { return in.globals[i] }

// SetGlobal writes global i. Hosts should not call this for immutable
// globals; the interpreter does not check mutability, neither here nor in
// global.set, per spec.md's scope (validation is not re-specified there).
func (in *Instance) SetGlobal(i uint32, v uint64) { in.globals[i] = v }

// MemoryPages returns the current committed page count.
func (in *Instance) MemoryPages() uint32 { return in.mem.Pages() }

// Translate converts a guest address range to host bytes, growing memory
// lazily per spec.md §4.7. Exposed so host functions (api.Call
// implementations) can read/write guest buffers.
func (in *Instance) Translate(addr uint32, n uint32) ([]byte, error) {
	b, err := in.mem.Translate(uint64(addr), uint64(n))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WriteArguments copies data into the fixed-base arguments region at offset
// off (relative to memregion.ArgumentsBase), growing it as needed. Used by
// the host to marshal argv/argc into guest memory before a call, per
// spec.md §3's arguments-region note.
func (in *Instance) WriteArguments(off int, data []byte) {
	in.mem.WriteArguments(off, data)
}

// Close releases the Instance's backing storage. The Instance must not be
// used afterward.
func (in *Instance) Close() {
	in.stack = nil
	in.blocks = nil
	in.globals = nil
	in.table = nil
}

// sentinelIntact reports the stack-sentinel universal invariant (spec.md §8).
func (in *Instance) sentinelIntact() bool { return in.stack.sentinelIntact() }

// blockStackPointersMonotonic reports the second universal invariant in
// spec.md §8: every active block entry's saved operand-stack pointer is at
// or below the current operand-stack pointer.
func (in *Instance) blockStackPointersMonotonic() bool {
	for i := 0; i < in.blocks.len(); i++ {
		if in.blocks.at(i).savedOperandSP > in.stack.sp+1 {
			return false
		}
	}
	return true
}
