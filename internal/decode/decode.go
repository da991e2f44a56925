// Package decode implements the program decoder of spec.md §4.4: it reads
// a WebAssembly 1.0 binary module into a *wasm.Program. Grounded on
// dwac_parse_prog_sections in drekkar_wa_core.c (magic/version check,
// per-section-id dispatch, cursor-alignment check after every section) and
// on the historical wazero wasm package's section-reader shape, visible via
// its surviving *_test.go files in the retrieval pack.
//
// Lives outside package wasm, mirroring wazero's binary -> wasm one-way
// dependency, so wasm itself never needs to import a decoder.
package decode

import (
	"fmt"

	"github.com/xehp/drekkar-webasm/leb128"
	"github.com/xehp/drekkar-webasm/wasm"
	"github.com/xehp/drekkar-webasm/wasmerr"
)

const (
	wasmMagic   = 0x6d736100
	wasmVersion = 0x00000001

	sectionCustom    = 0
	sectionType      = 1
	sectionImport    = 2
	sectionFunction  = 3
	sectionTable     = 4
	sectionMemory    = 5
	sectionGlobal    = 6
	sectionExport    = 7
	sectionStart     = 8
	sectionElement   = 9
	sectionCode      = 10
	sectionData      = 11
	sectionDataCount = 12

	importKindFunc   = 0
	importKindTable  = 1
	importKindMemory = 2
	importKindGlobal = 3

	exportKindFunc = 0

	endOpcode = 0x0b
)

// Decode parses a complete WebAssembly 1.0 module image into a *wasm.Program.
// Each function import (spec.md §4.4 section 2) is recorded with a nil
// HostFunc; wasm.InstantiateFromConfig later binds it from the runtime
// config's host functions, keyed by "module/field", or rejects it if none
// matches.
func Decode(bytes []byte) (*wasm.Program, error) {
	maxEntries := 16 + len(bytes)/16

	r := leb128.NewReader(bytes)
	magic := r.ReadU32LE()
	version := r.ReadU32LE()
	if magic != wasmMagic {
		return nil, wasmerr.New(wasmerr.CodeBadMagic, fmt.Sprintf("bad magic 0x%08x", magic))
	}
	if version != wasmVersion {
		return nil, wasmerr.New(wasmerr.CodeUnsupportedVersion, fmt.Sprintf("unsupported version %d", version))
	}

	p := &wasm.Program{
		Exports:   map[string]uint32{},
		Imports:   map[string]uint32{},
		StartFunc: -1,
		Code:      bytes,
		FuncNames: map[uint32]string{},
	}

	var funcTypeIndices []uint32 // type index per internal function, parsed from section 3
	var sawCode bool

	for r.Pos() < len(bytes) {
		id := r.ReadByte()
		size := r.ReadUnsigned(32)
		sectionBegin := r.Pos()
		sectionEnd := sectionBegin + int(size)

		var err error
		switch id {
		case sectionCustom:
			decodeCustom(r, sectionEnd, p)
		case sectionType:
			err = decodeTypes(r, p, maxEntries)
		case sectionImport:
			err = decodeImports(r, p, maxEntries)
		case sectionFunction:
			funcTypeIndices, err = decodeFunctionSection(r, maxEntries)
		case sectionTable:
			err = decodeTable(r, p)
		case sectionMemory:
			err = decodeMemory(r, p)
		case sectionGlobal:
			err = decodeGlobals(r, p, maxEntries)
		case sectionExport:
			err = decodeExports(r, p, maxEntries)
		case sectionStart:
			p.StartFunc = int32(r.ReadUnsigned(32))
		case sectionElement:
			err = decodeElements(r, p, maxEntries)
		case sectionCode:
			err = decodeCode(r, p, funcTypeIndices, maxEntries)
			sawCode = true
		case sectionData:
			err = decodeData(r, p, maxEntries)
		case sectionDataCount:
			r.ReadUnsigned(32)
		default:
			return nil, wasmerr.New(wasmerr.CodeUnknownSection, fmt.Sprintf("unknown section id %d", id))
		}
		if err != nil {
			return nil, err
		}
		if r.Err() {
			return nil, wasmerr.New(wasmerr.CodeTruncatedInput, "truncated module")
		}
		if r.Pos() != sectionEnd {
			return nil, wasmerr.New(wasmerr.CodeSectionMisaligned,
				fmt.Sprintf("section %d ended at %d, expected %d", id, r.Pos(), sectionEnd))
		}
	}

	if !sawCode && len(funcTypeIndices) > 0 {
		return nil, wasmerr.New(wasmerr.CodeTruncatedInput, "function section present without code section")
	}
	return p, nil
}

func decodeCustom(r *leb128.Reader, sectionEnd int, p *wasm.Program) {
	name := r.ReadString()
	if name != "name" {
		r.SeekTo(sectionEnd)
		return
	}
	decodeNameSection(r, sectionEnd, p)
	if r.Pos() < sectionEnd {
		r.SeekTo(sectionEnd)
	}
}

// decodeNameSection parses the function-name subsection (id 1) of the
// custom "name" section, per spec.md §4.4 section 0's optional note. Other
// subsections (module names, local names) are skipped.
func decodeNameSection(r *leb128.Reader, sectionEnd int, p *wasm.Program) {
	for r.Pos() < sectionEnd {
		subID := r.ReadByte()
		subSize := r.ReadUnsigned(32)
		subEnd := r.Pos() + int(subSize)
		if subID == 1 {
			count := r.ReadUnsigned(32)
			for i := uint64(0); i < count && r.Pos() < subEnd; i++ {
				idx := r.ReadUnsigned(32)
				name := r.ReadString()
				p.FuncNames[uint32(idx)] = name
			}
		}
		r.SeekTo(subEnd)
		if r.Err() {
			return
		}
	}
}

func decodeTypes(r *leb128.Reader, p *wasm.Program, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many function types")
	}
	p.Types = make([]*wasm.FunctionType, 0, count)
	for i := uint64(0); i < count; i++ {
		tag := r.ReadByte()
		if tag != 0x60 {
			return wasmerr.New(wasmerr.CodeTruncatedInput, "function type must begin with 0x60")
		}
		params, err := readValueTypes(r, maxEntries)
		if err != nil {
			return err
		}
		results, err := readValueTypes(r, maxEntries)
		if err != nil {
			return err
		}
		if len(params) > wasm.MaxParams || len(results) > wasm.MaxResults {
			return wasmerr.New(wasmerr.CodeTooManyEntries, "function type exceeds param/result limit")
		}
		p.Types = append(p.Types, &wasm.FunctionType{Params: params, Results: results})
	}
	return nil
}

func readValueTypes(r *leb128.Reader, maxEntries int) ([]wasm.ValueType, error) {
	n := r.ReadUnsigned(32)
	if int(n) > maxEntries {
		return nil, wasmerr.New(wasmerr.CodeTooManyEntries, "too many value types")
	}
	out := make([]wasm.ValueType, n)
	for i := range out {
		out[i] = wasm.ValueType(r.ReadByte())
	}
	return out, nil
}

func decodeImports(r *leb128.Reader, p *wasm.Program, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many imports")
	}
	for i := uint64(0); i < count; i++ {
		mod := r.ReadString()
		field := r.ReadString()
		if len(mod) > 64 || len(field) > 64 {
			return wasmerr.New(wasmerr.CodeNameTooLong, "import name too long")
		}
		kind := r.ReadByte()
		switch kind {
		case importKindFunc:
			typeIdx := uint32(r.ReadUnsigned(32))
			idx := uint32(len(p.Funcs))
			p.Funcs = append(p.Funcs, &wasm.FuncDesc{
				TypeIndex:    typeIdx,
				Imported:     true,
				ImportModule: mod,
				ImportField:  field,
			})
			p.Imports[mod+"/"+field] = idx
		default:
			return wasmerr.New(wasmerr.CodeUnsupportedImportKind,
				fmt.Sprintf("import kind %d not supported, only function imports", kind))
		}
	}
	return nil
}

func decodeFunctionSection(r *leb128.Reader, maxEntries int) ([]uint32, error) {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return nil, wasmerr.New(wasmerr.CodeTooManyEntries, "too many functions")
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = uint32(r.ReadUnsigned(32))
	}
	return out, nil
}

func readLimits(r *leb128.Reader) (min uint32, max uint32, hasMax bool) {
	flag := r.ReadByte()
	min = uint32(r.ReadUnsigned(32))
	if flag == 1 {
		max = uint32(r.ReadUnsigned(32))
		hasMax = true
	}
	return min, max, hasMax
}

func decodeTable(r *leb128.Reader, p *wasm.Program) error {
	count := r.ReadUnsigned(32)
	if count > 1 {
		return wasmerr.New(wasmerr.CodeUnsupportedMultiTable, "only one table is supported")
	}
	for i := uint64(0); i < count; i++ {
		elemType := r.ReadByte()
		if elemType != wasm.RefFuncTypeByte {
			return wasmerr.New(wasmerr.CodeUnsupportedImportKind, "table element type must be funcref")
		}
		min, _, _ := readLimits(r)
		p.TableInit = make([]uint32, min)
		for j := range p.TableInit {
			p.TableInit[j] = ^uint32(0) // unfilled slot: any call_indirect through it traps
		}
	}
	return nil
}

func decodeMemory(r *leb128.Reader, p *wasm.Program) error {
	count := r.ReadUnsigned(32)
	if count > 1 {
		return wasmerr.New(wasmerr.CodeUnsupportedMultiMemory, "only one memory is supported")
	}
	for i := uint64(0); i < count; i++ {
		min, max, hasMax := readLimits(r)
		p.MemoryInitialPages = min
		if hasMax {
			if max < min {
				return wasmerr.New(wasmerr.CodeMemoryInitGreaterThanMax, "memory max less than initial")
			}
			p.MemoryMaxPages = max
		} else {
			p.MemoryMaxPages = 0 // 0 means "use implementation max", per memregion.New
		}
	}
	return nil
}

// evalInitExpr evaluates a constant init-expression (spec.md §4.4 sections
// 6/9/11): one of i32.const/i64.const/f32.const/f64.const/global.get,
// followed by the end opcode.
func evalInitExpr(r *leb128.Reader, globals []uint64) (uint64, error) {
	op := r.ReadByte()
	var v uint64
	switch op {
	case 0x41: // i32.const
		v = uint64(uint32(int32(r.ReadSigned(32))))
	case 0x42: // i64.const
		v = uint64(r.ReadSigned(64))
	case 0x43: // f32.const
		v = uint64(r.ReadU32LE())
	case 0x44: // f64.const
		v = r.ReadU64LE()
	case 0x23: // global.get
		idx := r.ReadUnsigned(32)
		if int(idx) >= len(globals) {
			return 0, wasmerr.New(wasmerr.CodeTruncatedInput, "global.get index out of range in init expression")
		}
		v = globals[idx]
	default:
		return 0, wasmerr.New(wasmerr.CodeTruncatedInput, fmt.Sprintf("unsupported init-expression opcode 0x%x", op))
	}
	end := r.ReadByte()
	if end != endOpcode {
		return 0, wasmerr.New(wasmerr.CodeMissingEndOpcode, "init expression missing end opcode")
	}
	return v, nil
}

func decodeGlobals(r *leb128.Reader, p *wasm.Program, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many globals")
	}
	for i := uint64(0); i < count; i++ {
		valType := wasm.ValueType(r.ReadByte())
		mutByte := r.ReadByte()
		v, err := evalInitExpr(r, p.Globals)
		if err != nil {
			return err
		}
		p.Globals = append(p.Globals, v)
		p.GlobalTypes = append(p.GlobalTypes, valType)
		p.GlobalMut = append(p.GlobalMut, mutByte != 0)
	}
	return nil
}

func decodeExports(r *leb128.Reader, p *wasm.Program, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many exports")
	}
	for i := uint64(0); i < count; i++ {
		name := r.ReadString()
		kind := r.ReadByte()
		idx := uint32(r.ReadUnsigned(32))
		if kind == exportKindFunc {
			p.Exports[name] = idx
		}
		// table/memory/global exports are recognised but ignored, per
		// spec.md §4.4 section 7.
	}
	return nil
}

func decodeElements(r *leb128.Reader, p *wasm.Program, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many element segments")
	}
	for i := uint64(0); i < count; i++ {
		tableIdx := r.ReadUnsigned(32)
		if tableIdx != 0 {
			return wasmerr.New(wasmerr.CodeUnsupportedMultiTable, "element segment targets a table other than 0")
		}
		offset, err := evalInitExpr(r, p.Globals)
		if err != nil {
			return err
		}
		n := r.ReadUnsigned(32)
		if int(n) > maxEntries {
			return wasmerr.New(wasmerr.CodeTooManyEntries, "too many element entries")
		}
		for j := uint64(0); j < n; j++ {
			fnIdx := uint32(r.ReadUnsigned(32))
			pos := int(offset) + int(j)
			for pos >= len(p.TableInit) {
				p.TableInit = append(p.TableInit, ^uint32(0))
			}
			p.TableInit[pos] = fnIdx
		}
	}
	return nil
}

func decodeCode(r *leb128.Reader, p *wasm.Program, funcTypeIndices []uint32, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) != len(funcTypeIndices) {
		return wasmerr.New(wasmerr.CodeTruncatedInput, "code section count does not match function section")
	}
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many function bodies")
	}

	for i := uint64(0); i < count; i++ {
		bodySize := r.ReadUnsigned(32)
		bodyStart := r.Pos()
		bodyEnd := bodyStart + int(bodySize)

		localDeclCount := r.ReadUnsigned(32)
		if int(localDeclCount) > maxEntries {
			return wasmerr.New(wasmerr.CodeTooManyEntries, "too many local declarations")
		}
		var numLocals uint32
		var localTypes []wasm.ValueType
		for j := uint64(0); j < localDeclCount; j++ {
			n := r.ReadUnsigned(32)
			t := wasm.ValueType(r.ReadByte())
			for k := uint64(0); k < n; k++ {
				localTypes = append(localTypes, t)
			}
			numLocals += uint32(n)
		}

		codeStart := r.Pos()
		codeEnd := bodyEnd - 1
		if codeEnd < codeStart || codeEnd >= len(r.Bytes()) || r.Bytes()[codeEnd] != endOpcode {
			return wasmerr.New(wasmerr.CodeMissingEndOpcode, "function body missing closing end opcode")
		}

		p.Funcs = append(p.Funcs, &wasm.FuncDesc{
			TypeIndex:  funcTypeIndices[i],
			CodeStart:  codeStart,
			CodeEnd:    codeEnd,
			NumLocals:  numLocals,
			LocalTypes: localTypes,
		})
		r.SeekTo(bodyEnd)
	}
	return nil
}

func decodeData(r *leb128.Reader, p *wasm.Program, maxEntries int) error {
	count := r.ReadUnsigned(32)
	if int(count) > maxEntries {
		return wasmerr.New(wasmerr.CodeTooManyEntries, "too many data segments")
	}
	for i := uint64(0); i < count; i++ {
		memIdx := r.ReadUnsigned(32)
		if memIdx != 0 {
			return wasmerr.New(wasmerr.CodeUnsupportedMultiMemory, "data segment targets a memory other than 0")
		}
		offset, err := evalInitExpr(r, p.Globals)
		if err != nil {
			return err
		}
		n := r.ReadUnsigned(32)
		bytes := r.ReadBytes(int(n))
		p.DataSegments = append(p.DataSegments, wasm.DataSegment{
			Offset: offset,
			Bytes:  append([]byte(nil), bytes...),
		})
	}
	return nil
}
