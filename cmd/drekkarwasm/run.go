package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xehp/drekkar-webasm/internal/decode"
	"github.com/xehp/drekkar-webasm/wasi"
	"github.com/xehp/drekkar-webasm/wasm"
	"github.com/xehp/drekkar-webasm/wasmerr"
	"go.uber.org/zap"
)

type runOptions struct {
	wasmFile     string
	guestArgs    []string
	loggingOn    bool
	functionName string
	gasLimit     int64
}

// entryPointNames is the search order spec.md §6 specifies for the implicit
// entry point when --function_name is not given, grounded on
// find_main in drekkar_env.c.
var entryPointNames = []string{"__main_argc_argv", "main", "_start", "start", "test"}

// run loads and executes one module, returning the process exit code: a
// trap code, or the guest's i32 return value modulo 128, per spec.md §6.
func run(opts runOptions) (int, error) {
	logger := zap.NewNop()
	if opts.loggingOn {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.OutputPaths = []string{"stdout"}
		l, _ := zcfg.Build()
		logger = l
	}

	bytes, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return int(wasmerr.CodeFileNotFound), fmt.Errorf("file not found '%s'", opts.wasmFile)
	}
	logger.Info("bytes loaded from file", zap.String("path", opts.wasmFile), zap.Int("size", len(bytes)))

	prog, err := decode.Decode(bytes)
	if err != nil {
		return exitCodeFor(err), err
	}
	defer prog.Close()

	env := wasi.NewEnvironment(append([]string{opts.wasmFile}, opts.guestArgs...))
	cfg := wasm.NewRuntimeConfig().WithGasLimit(opts.gasLimit).WithLogger(logger)
	cfg = env.Register(cfg)

	in, err := wasm.InstantiateFromConfig(prog, cfg)
	if err != nil {
		return exitCodeFor(err), err
	}
	defer in.Close()

	var name string
	var callArgs []uint64
	if opts.functionName != "" {
		name = opts.functionName
		callArgs, err = parseGuestArgs(opts.guestArgs)
		if err != nil {
			return 1, err
		}
	} else {
		name, err = findEntryPoint(prog)
		if err != nil {
			return int(wasmerr.CodeFunctionIndexOutOfRange), err
		}
		if requiresArgcArgv(prog, name) {
			argc, argvPtr := wasi.WriteArgs(in, env.Args)
			callArgs = []uint64{uint64(argc), uint64(argvPtr)}
		}
	}

	if err := in.CallExported(name, callArgs...); err != nil {
		return 1, err
	}
	return runToCompletion(in, logger, exportResultCount(prog, name))
}

func exportResultCount(prog *wasm.Program, name string) int {
	idx, ok := prog.Exports[name]
	if !ok {
		return 0
	}
	f := prog.Funcs[idx]
	return len(prog.Types[f.TypeIndex].Results)
}

func requiresArgcArgv(prog *wasm.Program, name string) bool {
	idx, ok := prog.Exports[name]
	if !ok {
		return false
	}
	f := prog.Funcs[idx]
	return len(prog.Types[f.TypeIndex].Params) == 2
}

func findEntryPoint(prog *wasm.Program) (string, error) {
	for _, n := range entryPointNames {
		if _, ok := prog.Exports[n]; ok {
			return n, nil
		}
	}
	return "", fmt.Errorf("did not find main or start function")
}

func parseGuestArgs(args []string) ([]uint64, error) {
	out := make([]uint64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q is not an integer: %w", a, err)
		}
		out[i] = uint64(v)
	}
	return out, nil
}

// runToCompletion drives Instance.Tick to completion, resuming on
// need-more-gas with the gas balance refilled to its initial value,
// mirroring call_and_run_exported_function in drekkar_env.c.
func runToCompletion(in *wasm.Instance, logger *zap.Logger, wantResults int) (int, error) {
	initialGas := in.Gas()
	var totalGasUsed int64
	for {
		startGas := in.Gas()
		status, terr := in.Tick()
		if startGas >= 0 {
			totalGasUsed += startGas - in.Gas()
		}
		if terr != nil {
			if terr.Code == wasmerr.CodeHostCallException && in.Exception() == "proc_exit" {
				break
			}
			fmt.Printf("exception %d '%s'\n", int(terr.Code), terr.Error())
			return int(terr.Code), terr
		}
		if status == wasm.Status(wasmerr.CodeNeedMoreGas) {
			in.SetGas(initialGas)
			continue
		}
		break
	}

	logger.Info("run complete", zap.Int64("total_gas_used", totalGasUsed), zap.Uint32("memory_pages", in.MemoryPages()))

	results := in.Results(wantResults)
	if len(results) > 0 {
		return int(int32(results[len(results)-1])) & 0x7f, nil
	}
	return 0, nil
}

func exitCodeFor(err error) int {
	if werr, ok := err.(*wasmerr.Error); ok {
		return int(werr.Code)
	}
	return 1
}
