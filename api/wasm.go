// Package api defines the host-function registration surface described in
// spec.md §6: the interface an embedding host sees when one of its
// registered functions is invoked from guest code. Named api to match
// wazero's own public package of the same name and purpose.
package api

// ValueType identifies the static WebAssembly value type of an operand
// stack cell. The cell itself carries no runtime tag; the type is always
// known statically from the bytecode, per spec.md §3/§9.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Call is the handle a HostFunc receives when invoked. Parameters are
// popped in reverse declaration order: the last-declared parameter pops
// first, mirroring the operand stack order at the call site.
type Call interface {
	PopI32() uint32
	PopI64() uint64
	PopF32() float32
	PopF64() float64

	PushI32(uint32)
	PushI64(uint64)
	PushF32(float32)
	PushF64(float64)

	// Translate converts a guest linear-memory address into a host byte
	// slice of length n, growing linear memory if needed. It returns an
	// error if the range cannot be satisfied (out of range, over quota).
	Translate(addr uint32, n uint32) ([]byte, error)

	// SetException marks the instance trapped with msg; a non-empty
	// exception string after a host call signals the interpreter to stop.
	SetException(msg string)
}

// HostFunc is a function the embedding host registers under
// "module/field" and the guest invokes via a function import.
type HostFunc func(Call) error
