// Package wasi implements the minimal slice of WASI preview1 this
// interpreter supports: fd_write, proc_exit, args_sizes_get, and args_get
// (spec.md §6). Grounded on the original project's own WASI note ("the
// ambition was to support a wasi environment... currently only fd_write is
// implemented") in drekkar_env.c, extended here to cover argv/argc so a
// guest compiled against a libc expecting args_get can read them.
package wasi

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/xehp/drekkar-webasm/api"
	"github.com/xehp/drekkar-webasm/internal/memregion"
	"github.com/xehp/drekkar-webasm/wasm"
)

const (
	errnoSuccess = 0
	errnoBadF    = 8
)

// ModuleName is the import module name guests compiled against a standard
// WASI libc expect these functions under.
const ModuleName = "wasi_snapshot_preview1"

// Environment holds the command-line arguments exposed to a guest through
// args_sizes_get/args_get, and the stdout/stderr streams fd_write writes
// to.
type Environment struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer

	exitCode int32
	exited   bool
}

// NewEnvironment returns an Environment that writes to the process's
// standard streams.
func NewEnvironment(args []string) *Environment {
	return &Environment{Args: args, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Register installs this Environment's host functions on cfg under
// ModuleName, for use with wasm.InstantiateFromConfig.
func (e *Environment) Register(cfg *wasm.RuntimeConfig) *wasm.RuntimeConfig {
	cfg = cfg.WithHostFunc(ModuleName, "fd_write", e.fdWrite)
	cfg = cfg.WithHostFunc(ModuleName, "proc_exit", e.procExit)
	cfg = cfg.WithHostFunc(ModuleName, "args_sizes_get", e.argsSizesGet)
	cfg = cfg.WithHostFunc(ModuleName, "args_get", e.argsGet)
	return cfg
}

// Exited reports whether proc_exit was called, and with what code.
func (e *Environment) Exited() (code int32, ok bool) {
	return e.exitCode, e.exited
}

// argsSizesGet implements
// args_sizes_get(argc_ptr i32, argv_buf_size_ptr i32) -> errno i32.
func (e *Environment) argsSizesGet(call api.Call) error {
	argvBufSizePtr := call.PopI32()
	argcPtr := call.PopI32()

	bufSize := 0
	for _, a := range e.Args {
		bufSize += len(a) + 1
	}

	if b, err := call.Translate(argcPtr, 4); err == nil {
		binary.LittleEndian.PutUint32(b, uint32(len(e.Args)))
	}
	if b, err := call.Translate(argvBufSizePtr, 4); err == nil {
		binary.LittleEndian.PutUint32(b, uint32(bufSize))
	}
	call.PushI32(errnoSuccess)
	return nil
}

// argsGet implements args_get(argv_ptr i32, argv_buf_ptr i32) -> errno i32:
// argv_ptr receives len(Args) pointers into argv_buf_ptr, where each
// argument is written nul-terminated in order.
func (e *Environment) argsGet(call api.Call) error {
	argvBufPtr := call.PopI32()
	argvPtr := call.PopI32()

	pos := argvBufPtr
	for i, a := range e.Args {
		if ptrSlot, err := call.Translate(argvPtr+uint32(4*i), 4); err == nil {
			binary.LittleEndian.PutUint32(ptrSlot, pos)
		}
		n := uint32(len(a))
		if buf, err := call.Translate(pos, n+1); err == nil {
			copy(buf, a)
			buf[n] = 0
		}
		pos += n + 1
	}
	call.PushI32(errnoSuccess)
	return nil
}

// wasiCIOVec mirrors the wasi __wasi_ciovec_t layout: a guest pointer
// followed by a length, both 4 bytes, named after drekkar_env.c's
// wa_ciovec_type.
const ciovecSize = 8

// fdWrite implements
// fd_write(fd i32, iovs i32, iovs_len i32, nwritten_ptr i32) -> errno i32,
// grounded on drekkar_env.c's wa_fd_write: only stdout (fd 1) and stderr
// (fd 2) are accepted.
func (e *Environment) fdWrite(call api.Call) error {
	nwrittenPtr := call.PopI32()
	iovsLen := call.PopI32()
	iovsPtr := call.PopI32()
	fd := call.PopI32()

	var w io.Writer
	switch fd {
	case 1:
		w = e.Stdout
	case 2:
		w = e.Stderr
	default:
		call.PushI32(errnoBadF)
		return nil
	}

	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		entry, err := call.Translate(iovsPtr+i*ciovecSize, ciovecSize)
		if err != nil {
			call.PushI32(errnoBadF)
			return nil
		}
		bufPtr := binary.LittleEndian.Uint32(entry[0:4])
		bufLen := binary.LittleEndian.Uint32(entry[4:8])
		if bufLen == 0 {
			continue
		}
		data, err := call.Translate(bufPtr, bufLen)
		if err != nil {
			call.PushI32(errnoBadF)
			return nil
		}
		n, _ := w.Write(data)
		total += uint32(n)
	}

	if b, err := call.Translate(nwrittenPtr, 4); err == nil {
		binary.LittleEndian.PutUint32(b, total)
	}
	call.PushI32(errnoSuccess)
	return nil
}

// WriteArgs marshals args into the instance's arguments region in the
// layout a direct C `int main(int argc, char **argv)` entry point expects:
// an argc-length array of pointers at ArgumentsBase, followed immediately
// by the nul-terminated argument bytes it points into. Grounded on
// dwac_set_command_line_arguments in drekkar_wa_core.c, for guests called
// through "main" or "__main_argc_argv" rather than through WASI's
// args_get/args_sizes_get imports.
func WriteArgs(in *wasm.Instance, args []string) (argc uint32, argvPtr uint32) {
	base := uint32(memregion.ArgumentsBase)
	ptrArraySize := 4 * len(args)

	ptrBytes := make([]byte, ptrArraySize)
	var strBytes []byte
	pos := base + uint32(ptrArraySize)
	for i, a := range args {
		binary.LittleEndian.PutUint32(ptrBytes[4*i:4*i+4], pos)
		strBytes = append(strBytes, a...)
		strBytes = append(strBytes, 0)
		pos += uint32(len(a)) + 1
	}

	in.WriteArguments(0, ptrBytes)
	in.WriteArguments(ptrArraySize, strBytes)
	return uint32(len(args)), base
}

// procExit implements proc_exit(code i32), a noreturn WASI import: it
// records the requested exit code and traps the instance via
// SetException so Instance.Tick stops, the same way drekkar_env.c treats
// any host-detected fatal condition.
func (e *Environment) procExit(call api.Call) error {
	code := call.PopI32()
	e.exitCode = int32(code)
	e.exited = true
	call.SetException("proc_exit")
	return nil
}
