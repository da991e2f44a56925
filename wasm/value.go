package wasm

import "github.com/xehp/drekkar-webasm/api"

// ValueType re-exports api.ValueType: the static, bytecode-known type of an
// operand stack cell (spec.md §3, §9 "Dynamic dispatch over value types" —
// no runtime tag is carried on the 64-bit cell itself).
type ValueType = api.ValueType

const (
	ValueTypeI32 = api.ValueTypeI32
	ValueTypeI64 = api.ValueTypeI64
	ValueTypeF32 = api.ValueTypeF32
	ValueTypeF64 = api.ValueTypeF64
)

// Hard limits from spec.md §3.
const (
	MaxParams  = 32
	MaxResults = 8
)

// FunctionType is (params, results), an ordered sequence of value-type
// codes each.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

func (ft *FunctionType) equals(other *FunctionType) bool {
	if ft == other {
		return true
	}
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}
