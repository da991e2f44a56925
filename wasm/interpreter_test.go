package wasm

import (
	"testing"

	"github.com/xehp/drekkar-webasm/wasmerr"
)

// runToDone drives Tick to completion, resuming on need-more-gas, and fails
// the test on any trap.
func runToDone(t *testing.T, in *Instance) {
	t.Helper()
	for {
		status, terr := in.Tick()
		if terr != nil {
			t.Fatalf("unexpected trap: %s", terr.Error())
		}
		if status == Status(wasmerr.CodeNeedMoreGas) {
			continue
		}
		return
	}
}

func oneFuncProgram(params, results []ValueType, code []byte, numLocals uint32) *Program {
	body := append(append([]byte{}, code...), byte(OpcodeEnd))
	return &Program{
		Types: []*FunctionType{{Params: params, Results: results}},
		Funcs: []*FuncDesc{{
			TypeIndex: 0,
			CodeStart: 0,
			CodeEnd:   len(body) - 1,
			NumLocals: numLocals,
		}},
		Exports:   map[string]uint32{"run": 0},
		Imports:   map[string]uint32{},
		StartFunc: -1,
		Code:      body,
		FuncNames: map[uint32]string{},
	}
}

// Seed scenario: integer wrap. (i64)->i32, local.get 0; i32.wrap_i64.
// 0x1_0000_0001 truncates to 1 (spec.md §8).
func TestIntegerWrap(t *testing.T) {
	p := oneFuncProgram(
		[]ValueType{ValueTypeI64}, []ValueType{ValueTypeI32},
		[]byte{byte(OpcodeLocalGet), 0x00, byte(OpcodeI32WrapI64)}, 0,
	)
	in, err := Instantiate(p)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := in.CallExported("run", 0x100000001); err != nil {
		t.Fatalf("call: %v", err)
	}
	runToDone(t, in)
	got := in.Results(1)
	if got[0] != 1 {
		t.Fatalf("got %d, want 1", got[0])
	}
	if !in.sentinelIntact() {
		t.Fatal("sentinel corrupted")
	}
}

// Round trip: i32.wrap_i64 then i64.extend_i32_s recovers the sign-extended
// low 32 bits (spec.md §8 idempotence laws).
func TestWrapExtendRoundTrip(t *testing.T) {
	p := oneFuncProgram(
		[]ValueType{ValueTypeI64}, []ValueType{ValueTypeI64},
		[]byte{byte(OpcodeLocalGet), 0x00, byte(OpcodeI32WrapI64), byte(OpcodeI64ExtendI32S)}, 0,
	)
	in, err := Instantiate(p)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := in.CallExported("run", 0xFFFFFFFFFFFFFFFF); err != nil {
		t.Fatalf("call: %v", err)
	}
	runToDone(t, in)
	got := in.Results(1)
	if int64(got[0]) != -1 {
		t.Fatalf("got %d, want -1", int64(got[0]))
	}
}

// Seed scenario: if/else. (i32)->i32: local.get 0; if (result i32)
// i32.const 1 else i32.const 2 end. The true branch falls off the end of
// the then-clause onto the else opcode, which must behave exactly like the
// if's own end (pop the block entry, shift the one i32 result down) rather
// than leaking the if entry on the block stack (spec.md §4.6).
func TestIfElse(t *testing.T) {
	body := []byte{
		byte(OpcodeLocalGet), 0x00,
		byte(OpcodeIf), 0x7f, // if (result i32), block type -1
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeElse),
		byte(OpcodeI32Const), 0x02,
		byte(OpcodeEnd), // closes the if
	}

	t.Run("true branch falls through else", func(t *testing.T) {
		p := oneFuncProgram([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, body, 0)
		in, err := Instantiate(p)
		if err != nil {
			t.Fatalf("instantiate: %v", err)
		}
		if err := in.CallExported("run", 1); err != nil {
			t.Fatalf("call: %v", err)
		}
		runToDone(t, in)
		got := in.Results(1)
		if got[0] != 1 {
			t.Fatalf("got %d, want 1", got[0])
		}
		if !in.sentinelIntact() {
			t.Fatal("sentinel corrupted")
		}
		if in.blocks.len() != 0 {
			t.Fatalf("block stack not empty after return: len=%d", in.blocks.len())
		}
	})

	t.Run("false branch runs else body", func(t *testing.T) {
		p := oneFuncProgram([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, body, 0)
		in, err := Instantiate(p)
		if err != nil {
			t.Fatalf("instantiate: %v", err)
		}
		if err := in.CallExported("run", 0); err != nil {
			t.Fatalf("call: %v", err)
		}
		runToDone(t, in)
		got := in.Results(1)
		if got[0] != 2 {
			t.Fatalf("got %d, want 2", got[0])
		}
		if !in.sentinelIntact() {
			t.Fatal("sentinel corrupted")
		}
	})
}

// Seed scenario: division traps. (i32,i32)->i32, local.get 0; local.get 1;
// i32.div_s. INT_MIN/-1 overflows; n/0 divides by zero. Both must leave the
// operand-stack sentinel intact (spec.md §8).
func TestDivisionTraps(t *testing.T) {
	body := []byte{
		byte(OpcodeLocalGet), 0x00,
		byte(OpcodeLocalGet), 0x01,
		byte(OpcodeI32DivS),
	}

	t.Run("overflow", func(t *testing.T) {
		p := oneFuncProgram([]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}, body, 0)
		in, err := Instantiate(p)
		if err != nil {
			t.Fatalf("instantiate: %v", err)
		}
		if err := in.CallExported("run", uint64(uint32(0x80000000)), uint64(uint32(0xFFFFFFFF))); err != nil {
			t.Fatalf("call: %v", err)
		}
		_, terr := in.Tick()
		if terr == nil || terr.Code != wasmerr.CodeIntegerOverflow {
			t.Fatalf("got %v, want CodeIntegerOverflow", terr)
		}
		if !in.sentinelIntact() {
			t.Fatal("sentinel corrupted after trap")
		}
	})

	t.Run("divide by zero", func(t *testing.T) {
		p := oneFuncProgram([]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}, body, 0)
		in, err := Instantiate(p)
		if err != nil {
			t.Fatalf("instantiate: %v", err)
		}
		if err := in.CallExported("run", 5, 0); err != nil {
			t.Fatalf("call: %v", err)
		}
		_, terr := in.Tick()
		if terr == nil || terr.Code != wasmerr.CodeDivideByZero {
			t.Fatalf("got %v, want CodeDivideByZero", terr)
		}
		if !in.sentinelIntact() {
			t.Fatal("sentinel corrupted after trap")
		}
	})
}

// i32.rem_s of MinInt32/-1 does not trap and yields 0 (spec.md §3 numeric
// trap table: only div_s overflows on this pair).
func TestRemainderOfMinIntByNegOneIsZero(t *testing.T) {
	p := oneFuncProgram(
		[]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32},
		[]byte{byte(OpcodeLocalGet), 0x00, byte(OpcodeLocalGet), 0x01, byte(OpcodeI32RemS)}, 0,
	)
	in, err := Instantiate(p)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := in.CallExported("run", uint64(uint32(0x80000000)), uint64(uint32(0xFFFFFFFF))); err != nil {
		t.Fatalf("call: %v", err)
	}
	runToDone(t, in)
	got := in.Results(1)
	if int32(got[0]) != 0 {
		t.Fatalf("got %d, want 0", int32(got[0]))
	}
}

// Seed scenario: gas resumption. A loop whose control opcodes are loop,
// br_if and end eventually exhausts a small gas budget and Tick must report
// CodeNeedMoreGas without losing progress; resuming with fresh gas lets it
// finish, and total gas consumed across every resumption must match the
// number of control-flow opcodes executed (spec.md §5, §8).
func TestGasResumption(t *testing.T) {
	// (i32)->i32: loop { local.get 0; i32.const 1; i32.sub; local.tee 0;
	// br_if 0 } ; local.get 0
	// counts down the input to zero, one control-flow decrement per br_if
	// (1000 of them) plus one for the loop opcode itself, one for the loop's
	// end and one for the function's end: 1003 in all.
	body := []byte{
		byte(OpcodeLoop), 0x40,
		byte(OpcodeLocalGet), 0x00,
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeI32Sub),
		byte(OpcodeLocalTee), 0x00,
		byte(OpcodeBrIf), 0x00,
		byte(OpcodeEnd),
		byte(OpcodeLocalGet), 0x00,
	}
	p := oneFuncProgram([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, body, 0)

	in, err := Instantiate(p, WithGasLimitOpt(5))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := in.CallExported("run", 1000); err != nil {
		t.Fatalf("call: %v", err)
	}

	var totalUsed int64
	resumptions := 0
	for {
		startGas := in.Gas()
		status, terr := in.Tick()
		if terr != nil {
			t.Fatalf("unexpected trap: %s", terr.Error())
		}
		totalUsed += startGas - in.Gas()
		if status == Status(wasmerr.CodeNeedMoreGas) {
			resumptions++
			in.SetGas(5)
			continue
		}
		break
	}
	if resumptions == 0 {
		t.Fatal("expected at least one need-more-gas resumption for a 1000-iteration loop with gas=5")
	}
	if totalUsed != 1003 {
		t.Fatalf("total gas used = %d, want 1003", totalUsed)
	}
	got := in.Results(1)
	if got[0] != 0 {
		t.Fatalf("got %d, want 0", got[0])
	}
}

// Seed scenario: indirect-call type mismatch. Table slot 0 holds a function
// of type (i32)->i32; calling it through a (i64)->i64 signature must trap
// without performing the call, leaving the stack sentinel intact (spec.md
// §8).
func TestIndirectCallTypeMismatch(t *testing.T) {
	calleeBody := []byte{byte(OpcodeLocalGet), 0x00, byte(OpcodeEnd)}
	callerBody := []byte{
		byte(OpcodeI32Const), 0x00, // table index 0
		byte(OpcodeCallIndirect), 0x01, 0x00, // type index 1, table index 0
		byte(OpcodeEnd),
	}

	calleeCode := calleeBody
	callerStart := len(calleeCode)
	code := append(append([]byte{}, calleeCode...), callerBody...)

	p := &Program{
		Types: []*FunctionType{
			{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}},
			{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeI64}},
		},
		Funcs: []*FuncDesc{
			{TypeIndex: 0, CodeStart: 0, CodeEnd: len(calleeCode) - 1},
			{TypeIndex: 1, CodeStart: callerStart, CodeEnd: len(code) - 1},
		},
		Exports:   map[string]uint32{"run": 1},
		Imports:   map[string]uint32{},
		StartFunc: -1,
		TableInit: []uint32{0},
		Code:      code,
		FuncNames: map[uint32]string{},
	}

	in, err := Instantiate(p)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	// run itself has type (i64)->i64, so it takes one argument.
	if err := in.CallExported("run", 0); err != nil {
		t.Fatalf("call: %v", err)
	}
	_, terr := in.Tick()
	if terr == nil || terr.Code != wasmerr.CodeIndirectCallTypeMismatch {
		t.Fatalf("got %v, want CodeIndirectCallTypeMismatch", terr)
	}
	if !in.sentinelIntact() {
		t.Fatal("sentinel corrupted after trap")
	}
}

// rotl(rotr(x, k), k) == x for i32 (spec.md §8 idempotence laws).
func TestRotateRoundTrip(t *testing.T) {
	body32 := []byte{
		byte(OpcodeLocalGet), 0x00,
		byte(OpcodeLocalGet), 0x01,
		byte(OpcodeI32Rotr),
		byte(OpcodeLocalGet), 0x01,
		byte(OpcodeI32Rotl),
	}
	p := oneFuncProgram([]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}, body32, 0)
	in, err := Instantiate(p)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := in.CallExported("run", 0x12345678, 7); err != nil {
		t.Fatalf("call: %v", err)
	}
	runToDone(t, in)
	got := in.Results(1)
	if got[0] != 0x12345678 {
		t.Fatalf("got %#x, want %#x", got[0], 0x12345678)
	}
}

// After memory.grow by one page (its result is dropped), a subsequent
// memory.size observes the new, larger count (spec.md §8).
func TestMemoryGrowThenSize(t *testing.T) {
	body := []byte{
		byte(OpcodeI32Const), 0x01, // grow by 1 page
		byte(OpcodeMemoryGrow), 0x00,
		byte(OpcodeDrop),
		byte(OpcodeMemorySize), 0x00,
	}
	p := oneFuncProgram(nil, []ValueType{ValueTypeI32}, body, 0)
	p.MemoryInitialPages = 1
	p.MemoryMaxPages = 4

	in, err := Instantiate(p)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := in.CallExported("run"); err != nil {
		t.Fatalf("call: %v", err)
	}
	runToDone(t, in)
	got := in.Results(1)
	if got[0] != 2 {
		t.Fatalf("memory.size after grow returned %d, want 2", got[0])
	}
	if in.MemoryPages() != 2 {
		t.Fatalf("pages after grow = %d, want 2", in.MemoryPages())
	}
}
