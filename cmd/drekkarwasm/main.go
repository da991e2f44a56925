// Command drekkarwasm is the CLI surface described in spec.md §6: it loads
// a WebAssembly 1.0 module, registers the minimal WASI shim (package wasi),
// finds an entry point, and runs it to completion, resuming on
// need-more-gas and reporting a trap or the guest's return value on exit.
//
// Usage mirrors drekkar_env.c's own find_and_call/call_and_run_exported_function
// pair, rebuilt around cobra the way moby's own CLI commands are structured.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at release build time with -ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		loggingOn    bool
		functionName string
		gasLimit     int64
	)

	cmd := &cobra.Command{
		Use:                "drekkarwasm <wasm-file> [guest-args...]",
		Short:              "Run a WebAssembly 1.0 module under a gas-metered interpreter",
		Version:            version,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: false,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing wasm file")
			}
			exitCode, err := run(runOptions{
				wasmFile:     args[0],
				guestArgs:    args[1:],
				loggingOn:    loggingOn,
				functionName: functionName,
				gasLimit:     gasLimit,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			if exitCode != 0 {
				os.Exit(exitCode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&loggingOn, "logging-on", false, "emit load and run-summary diagnostics to stdout (sections are not logged individually)")
	cmd.Flags().StringVar(&functionName, "function_name", "", "call the named export with guest-args converted to integers, instead of calling main")
	cmd.Flags().Int64Var(&gasLimit, "gas-limit", -1, "initial gas budget; negative disables metering")

	return cmd
}
