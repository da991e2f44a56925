package decode

import (
	"testing"

	"github.com/xehp/drekkar-webasm/wasmerr"
)

// uleb encodes an unsigned LEB128 value, used to hand-assemble minimal
// module byte streams the same way the seed-scenario fixtures in spec.md §8
// are described.
func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(payload)))...)
	out = append(out, payload...)
	return out
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

// minimalModule builds a one-function module: type (i32,i32)->i32, a single
// internal function exported as "run" whose body is exactly the given code
// (the caller supplies the trailing end opcode).
func minimalModule(params, results []byte, body []byte) []byte {
	typeSec := []byte{0x01} // count=1
	typeSec = append(typeSec, 0x60)
	typeSec = append(typeSec, uleb(uint64(len(params)))...)
	typeSec = append(typeSec, params...)
	typeSec = append(typeSec, uleb(uint64(len(results)))...)
	typeSec = append(typeSec, results...)

	funcSec := []byte{0x01, 0x00} // count=1, type index 0

	exportSec := []byte{0x01} // count=1
	exportSec = append(exportSec, uleb(uint64(len("run")))...)
	exportSec = append(exportSec, []byte("run")...)
	exportSec = append(exportSec, 0x00) // export kind func
	exportSec = append(exportSec, 0x00) // func index 0

	funcBody := []byte{0x00} // local-decl count 0
	funcBody = append(funcBody, body...)
	codeSec := []byte{0x01} // count=1
	codeSec = append(codeSec, uleb(uint64(len(funcBody)))...)
	codeSec = append(codeSec, funcBody...)

	out := header()
	out = append(out, section(sectionType, typeSec)...)
	out = append(out, section(sectionFunction, funcSec)...)
	out = append(out, section(sectionExport, exportSec)...)
	out = append(out, section(sectionCode, codeSec)...)
	return out
}

func TestDecodeBadMagic(t *testing.T) {
	bytes := append([]byte{0xde, 0xad, 0xbe, 0xef}, header()[4:]...)
	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeBadMagic {
		t.Fatalf("got %v, want CodeBadMagic", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	bytes := append([]byte{0x00, 0x61, 0x73, 0x6d}, []byte{0x02, 0x00, 0x00, 0x00}...)
	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeUnsupportedVersion {
		t.Fatalf("got %v, want CodeUnsupportedVersion", err)
	}
}

func TestDecodeMinimalModule(t *testing.T) {
	// local.get 0; local.get 1; i32.add; end
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}
	bytes := minimalModule([]byte{0x7f, 0x7f}, []byte{0x7f}, body)

	prog, err := Decode(bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	idx, ok := prog.Exports["run"]
	if !ok || idx != 0 {
		t.Fatalf("export 'run' not found or wrong index: %v", prog.Exports)
	}
	if len(prog.Types) != 1 || len(prog.Types[0].Params) != 2 || len(prog.Types[0].Results) != 1 {
		t.Fatalf("unexpected type table: %+v", prog.Types)
	}
	f := prog.Funcs[0]
	if f.Imported {
		t.Fatal("function should not be marked imported")
	}
	if prog.Code[f.CodeEnd] != endOpcode {
		t.Fatalf("bytes[CodeEnd] = %#x, want 0x0b", prog.Code[f.CodeEnd])
	}
	if prog.Code[f.CodeStart] != 0x20 {
		t.Fatalf("CodeStart does not point at the first instruction byte")
	}
}

func TestDecodeMissingEndOpcode(t *testing.T) {
	// body with no trailing end opcode
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6a}
	bytes := minimalModule([]byte{0x7f, 0x7f}, []byte{0x7f}, body)

	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeMissingEndOpcode {
		t.Fatalf("got %v, want CodeMissingEndOpcode", err)
	}
}

func TestDecodeSectionMisaligned(t *testing.T) {
	body := []byte{0x0b}
	bytes := minimalModule(nil, nil, body)
	// Corrupt the type section's declared size (byte 9, right after the
	// section id) to be one larger than its actual payload.
	bytes[9] = bytes[9] + 1

	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeSectionMisaligned {
		t.Fatalf("got %v, want CodeSectionMisaligned", err)
	}
}

func TestDecodeMemoryInitGreaterThanMax(t *testing.T) {
	memSec := []byte{0x01, 0x01, 0x05, 0x02} // count=1, flag=1 (has max), min=5, max=2
	bytes := append(header(), section(sectionMemory, memSec)...)

	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeMemoryInitGreaterThanMax {
		t.Fatalf("got %v, want CodeMemoryInitGreaterThanMax", err)
	}
}

func TestDecodeUnknownSection(t *testing.T) {
	bytes := append(header(), section(0x42, []byte{0x00})...)
	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeUnknownSection {
		t.Fatalf("got %v, want CodeUnknownSection", err)
	}
}

func TestDecodeNameSection(t *testing.T) {
	body := []byte{0x0b}
	bytes := minimalModule(nil, nil, body)

	nameSub := []byte{0x01} // count=1
	nameSub = append(nameSub, 0x00)
	nameSub = append(nameSub, uleb(uint64(len("run")))...)
	nameSub = append(nameSub, []byte("run")...)
	funcNamesSub := section(1, nameSub)

	customPayload := []byte{}
	customPayload = append(customPayload, uleb(uint64(len("name")))...)
	customPayload = append(customPayload, []byte("name")...)
	customPayload = append(customPayload, funcNamesSub...)

	bytes = append(bytes, section(sectionCustom, customPayload)...)

	prog, err := Decode(bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prog.FuncNames[0] != "run" {
		t.Fatalf("FuncNames[0] = %q, want \"run\"", prog.FuncNames[0])
	}
}

func TestDecodeUnsupportedImportKind(t *testing.T) {
	importSec := []byte{0x01} // count=1
	importSec = append(importSec, uleb(uint64(len("env")))...)
	importSec = append(importSec, []byte("env")...)
	importSec = append(importSec, uleb(uint64(len("tbl")))...)
	importSec = append(importSec, []byte("tbl")...)
	importSec = append(importSec, importKindTable) // unsupported kind
	importSec = append(importSec, 0x70, 0x00, 0x01)

	bytes := append(header(), section(sectionImport, importSec)...)
	_, err := Decode(bytes)
	werr, ok := err.(*wasmerr.Error)
	if !ok || werr.Code != wasmerr.CodeUnsupportedImportKind {
		t.Fatalf("got %v, want CodeUnsupportedImportKind", err)
	}
}
