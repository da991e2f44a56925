package wasi

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// fakeCall is a minimal api.Call double backed by a plain byte slice and a
// LIFO stack, enough to exercise the host functions in this package without
// an Instance.
type fakeCall struct {
	stack     []uint64
	mem       []byte
	exception string
}

func newFakeCall(memSize int) *fakeCall {
	return &fakeCall{mem: make([]byte, memSize)}
}

func (c *fakeCall) push(v uint64) { c.stack = append(c.stack, v) }

func (c *fakeCall) pop() uint64 {
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v
}

func (c *fakeCall) PopI32() uint32   { return uint32(c.pop()) }
func (c *fakeCall) PopI64() uint64   { return c.pop() }
func (c *fakeCall) PopF32() float32  { panic("unused") }
func (c *fakeCall) PopF64() float64  { panic("unused") }
func (c *fakeCall) PushI32(v uint32)  { c.push(uint64(v)) }
func (c *fakeCall) PushI64(v uint64)  { c.push(v) }
func (c *fakeCall) PushF32(float32)   { panic("unused") }
func (c *fakeCall) PushF64(float64)   { panic("unused") }

func (c *fakeCall) Translate(addr uint32, n uint32) ([]byte, error) {
	end := int(addr) + int(n)
	for end > len(c.mem) {
		c.mem = append(c.mem, 0)
	}
	return c.mem[addr:end], nil
}

func (c *fakeCall) SetException(msg string) { c.exception = msg }

// fd_write writes "hello" through a single iovec and reports the byte count
// written, grounded on drekkar_env.c's wa_fd_write.
func TestFdWrite(t *testing.T) {
	const iovsPtr, bufPtr, nwrittenPtr = 100, 200, 300
	msg := "hello"

	call := newFakeCall(512)
	copy(call.mem[bufPtr:], msg)
	binary.LittleEndian.PutUint32(call.mem[iovsPtr:], bufPtr)
	binary.LittleEndian.PutUint32(call.mem[iovsPtr+4:], uint32(len(msg)))

	var out bytes.Buffer
	e := &Environment{Stdout: &out}

	call.push(1)            // fd
	call.push(iovsPtr)
	call.push(1)            // iovs_len
	call.push(nwrittenPtr)

	if err := e.fdWrite(call); err != nil {
		t.Fatalf("fdWrite: %v", err)
	}
	if out.String() != msg {
		t.Fatalf("wrote %q, want %q", out.String(), msg)
	}
	errno := call.pop()
	if errno != errnoSuccess {
		t.Fatalf("errno = %d, want %d", errno, errnoSuccess)
	}
	written := binary.LittleEndian.Uint32(call.mem[nwrittenPtr:])
	if written != uint32(len(msg)) {
		t.Fatalf("nwritten = %d, want %d", written, len(msg))
	}
}

// fd_write on an fd other than 1 or 2 must fail with errnoBadF, per
// drekkar_env.c's wa_fd_write.
func TestFdWriteBadFD(t *testing.T) {
	call := newFakeCall(64)
	call.push(7) // fd
	call.push(0)
	call.push(0)
	call.push(0)

	if err := (&Environment{}).fdWrite(call); err != nil {
		t.Fatalf("fdWrite: %v", err)
	}
	if errno := call.pop(); errno != errnoBadF {
		t.Fatalf("errno = %d, want %d", errno, errnoBadF)
	}
}

// args_sizes_get reports argc and the argv buffer size, and args_get writes
// the argv pointers and strings for the same arguments (spec.md §6).
func TestArgsSizesGetAndArgsGet(t *testing.T) {
	e := &Environment{Args: []string{"prog", "a", "bb"}}
	call := newFakeCall(256)

	const argcPtr, bufSizePtr = 8, 12
	call.push(argcPtr)
	call.push(bufSizePtr)
	if err := e.argsSizesGet(call); err != nil {
		t.Fatalf("argsSizesGet: %v", err)
	}
	call.pop() // errno

	argc := binary.LittleEndian.Uint32(call.mem[argcPtr:])
	bufSize := binary.LittleEndian.Uint32(call.mem[bufSizePtr:])
	if argc != 3 {
		t.Fatalf("argc = %d, want 3", argc)
	}
	wantBufSize := uint32(len("prog") + 1 + len("a") + 1 + len("bb") + 1)
	if bufSize != wantBufSize {
		t.Fatalf("bufSize = %d, want %d", bufSize, wantBufSize)
	}

	const argvPtr, argvBufPtr = 40, 80
	call.push(argvPtr)
	call.push(argvBufPtr)
	if err := e.argsGet(call); err != nil {
		t.Fatalf("argsGet: %v", err)
	}
	call.pop() // errno

	for i, want := range e.Args {
		ptr := binary.LittleEndian.Uint32(call.mem[argvPtr+4*i:])
		n := len(want)
		got := string(call.mem[ptr : ptr+uint32(n)])
		if got != want {
			t.Fatalf("arg %d = %q, want %q", i, got, want)
		}
		if call.mem[ptr+uint32(n)] != 0 {
			t.Fatalf("arg %d not nul-terminated", i)
		}
	}
}

// proc_exit must record the exit code and trap the instance via
// SetException so the interpreter's Tick loop stops (spec.md §6).
func TestProcExit(t *testing.T) {
	e := &Environment{}
	call := newFakeCall(8)
	call.push(42)

	if err := e.procExit(call); err != nil {
		t.Fatalf("procExit: %v", err)
	}
	code, exited := e.Exited()
	if !exited || code != 42 {
		t.Fatalf("Exited() = (%d, %v), want (42, true)", code, exited)
	}
	if call.exception == "" {
		t.Fatal("expected SetException to be called")
	}
}
