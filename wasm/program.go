package wasm

import "github.com/xehp/drekkar-webasm/api"

// FuncDesc is the tagged variant described in spec.md §3 "Function
// descriptor": imported and internal functions share a type-index header
// but carry different payloads. Functions are numbered contiguously across
// both kinds, imported first.
type FuncDesc struct {
	TypeIndex uint32
	Imported  bool

	// Imported payload.
	HostFunc    api.HostFunc
	ImportModule string
	ImportField  string

	// Internal payload: byte offsets into Program.Code, local slot count.
	CodeStart  int
	CodeEnd    int
	NumLocals  uint32
	LocalTypes []ValueType
}

// Program is the image produced once per module by Decode (spec.md §2
// item 3, "Prog"). Apart from InstantiateFromConfig binding HostFunc on
// imported FuncDescs, it is not modified after decoding. It owns no
// per-invocation mutable state; many Instances may share one Program.
type Program struct {
	Types []*FunctionType
	Funcs []*FuncDesc // imported funcs precede internal funcs

	// Exports maps an exported function name to its index in Funcs.
	Exports map[string]uint32
	// Imports maps "module/field" to its index in Funcs; InstantiateFromConfig
	// uses it to bind host functions, and the host pointer itself lives on
	// the FuncDesc.
	Imports map[string]uint32

	StartFunc int32 // -1 if absent

	TableInit []uint32 // initial function-table contents from element segments

	MemoryInitialPages uint32
	MemoryMaxPages     uint32

	Globals     []uint64 // initial values, computed by init-expressions
	GlobalTypes []ValueType
	GlobalMut   []bool

	Code []byte // the whole module image; FuncDesc offsets index into this

	DataSegments []DataSegment

	// Names, populated from an optional custom "name" subsection
	// (spec.md §4.4 section 0).
	FuncNames map[uint32]string
}

type DataSegment struct {
	Offset uint64
	Bytes  []byte
}

// ImportCount returns how many of Funcs are imported (and therefore precede
// the internal ones).
func (p *Program) ImportCount() uint32 {
	var n uint32
	for _, f := range p.Funcs {
		if f.Imported {
			n++
		} else {
			break
		}
	}
	return n
}

// Close releases the Program's backing storage. Programs are otherwise
// immutable and may be shared by many Instances, per spec.md §3's
// lifecycle note.
func (p *Program) Close() {
	p.Code = nil
	p.DataSegments = nil
}
