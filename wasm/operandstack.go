package wasm

// DefaultOperandStackSize is the default operand-stack capacity in 8-byte
// cells: a power of two, per spec.md §3.
const DefaultOperandStackSize = 65536

// sentinelValue is written to the last slot at init and checked on every
// control-flow step; if it ever changes, something wrote past the logical
// top of the stack (spec.md §3/§8).
const sentinelValue uint64 = 0xDEADBEEFCAFEBABE

// operandStack is the fixed-size power-of-two ring described in spec.md
// §3: the stack pointer is an unsigned integer masked modulo capacity,
// starting at all-ones (so sp+1 == 0 is the first push), which makes
// overflow unable to corrupt memory outside the ring even before the
// sentinel check catches it. Grounded on the historical wazero
// VirtualMachineOperandStack (wasm/vm_stack_test.go), adapted from a
// grow-on-demand slice to the fixed-capacity ring spec.md specifies.
type operandStack struct {
	cells []uint64
	mask  uint32
	sp    uint32 // unsigned; starts at ^uint32(0)
}

func newOperandStack(size int) *operandStack {
	if size <= 0 {
		size = DefaultOperandStackSize
	}
	n := 1
	for n < size {
		n *= 2
	}
	cells := make([]uint64, n)
	cells[n-1] = sentinelValue
	return &operandStack{
		cells: cells,
		mask:  uint32(n - 1),
		sp:    ^uint32(0),
	}
}

// sentinelIntact reports whether the guard slot is unmodified, the
// universal invariant spec.md §8 requires to hold after every tick unless
// a trap was returned.
func (s *operandStack) sentinelIntact() bool {
	return s.cells[len(s.cells)-1] == sentinelValue || uint32(len(s.cells)-1) != s.mask
}

// len returns the number of live values currently on the stack.
func (s *operandStack) len() uint32 { return s.sp + 1 }

func (s *operandStack) push(v uint64) {
	s.sp++
	s.cells[s.sp&s.mask] = v
}

func (s *operandStack) pop() uint64 {
	v := s.cells[s.sp&s.mask]
	s.sp--
	return v
}

func (s *operandStack) peek() uint64 {
	return s.cells[s.sp&s.mask]
}

func (s *operandStack) peekAt(depthFromTop uint32) uint64 {
	return s.cells[(s.sp-depthFromTop)&s.mask]
}

func (s *operandStack) get(index uint32) uint64 {
	return s.cells[index&s.mask]
}

func (s *operandStack) set(index uint32, v uint64) {
	s.cells[index&s.mask] = v
}

// truncateTo drops the stack down to exactly n live values (n == sp+1).
func (s *operandStack) truncateTo(n uint32) {
	s.sp = n - 1
}
