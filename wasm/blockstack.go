package wasm

// blockKind tags a blockEntry's shape, per spec.md §3 "Block-stack entry":
// init-expr, block, loop, if, or internal-function.
type blockKind int

const (
	blockKindInitExpr blockKind = iota
	blockKindBlock
	blockKindLoop
	blockKindIf
	blockKindFunction
)

// blockEntry is one entry of the block/call stack (spec.md §3). It is a
// tagged variant with per-kind payloads, grounded on the historical
// wazero wasm.Label type (wasm/vm_stack_test.go, wasm/vm_control_test.go):
// Label{Arity, ContinuationPC, OperandSP} generalized to also carry
// function-call frames, since this repo folds the call stack and the
// control stack into one structure as spec.md §3 specifies.
type blockEntry struct {
	kind blockKind

	// typeIndex identifies the block signature: an index into
	// Program.Types for a multi-value signature, or -64 for the reserved
	// empty inline encoding, or -1/-2/-3/-4 for the reserved i32/i64/f32/f64
	// single-result inline encodings (mirrors the 33-bit signed LEB decode
	// of spec.md §4.1/§9).
	typeIndex int64

	// branchAddr is the branch target: the byte after the matching end for
	// block and if, head-of-loop for loop. Unused for function/init-expr.
	branchAddr int

	// elseAddr/endAddr are only meaningful for blockKindIf: elseAddr is 0
	// if the if has no else clause.
	elseAddr int
	endAddr  int

	// savedOperandSP is the operand-stack pointer at block entry; on end,
	// result values are shifted down to this pointer, dropping any
	// locals/intermediates in between (spec.md §4.6 "On reaching end").
	savedOperandSP uint32

	// Function-frame payload (blockKindFunction only).
	callerFramePointer uint32
	returnPC           int
	funcIndex          uint32
}

func (e *blockEntry) resultCount(p *Program) int {
	switch {
	case e.typeIndex == -64:
		return 0
	case e.typeIndex < 0:
		return 1
	default:
		return len(p.Types[e.typeIndex].Results)
	}
}

// blockStack is the owned array of blockEntry, analogous to the historical
// wazero VirtualMachineLabelStack (wasm/vm_stack_test.go).
type blockStack struct {
	entries []blockEntry
}

func newBlockStack() *blockStack {
	return &blockStack{entries: make([]blockEntry, 0, 64)}
}

func (s *blockStack) push(e blockEntry) {
	s.entries = append(s.entries, e)
}

func (s *blockStack) pop() blockEntry {
	n := len(s.entries) - 1
	e := s.entries[n]
	s.entries = s.entries[:n]
	return e
}

func (s *blockStack) top() *blockEntry {
	return &s.entries[len(s.entries)-1]
}

// at returns the entry depth levels from the top: at(0) == top().
func (s *blockStack) at(depth int) *blockEntry {
	return &s.entries[len(s.entries)-1-depth]
}

func (s *blockStack) len() int { return len(s.entries) }

// truncateTo drops entries above and including index keep+1..top, i.e.
// leaves exactly keep+1 entries (indices 0..keep).
func (s *blockStack) truncateTo(keep int) {
	s.entries = s.entries[:keep+1]
}
