package wasm

import (
	"sync"

	"go.uber.org/zap"
)

// Logger is the structured logger a RuntimeConfig carries and an Instance
// holds; this package itself writes no diagnostics to it. Defaults to a
// no-op logger unless a RuntimeConfig sets one with WithLogger, the same
// lazy-no-op pattern
// wippyai-wasm-runtime's engine.Logger() uses.
type Logger = *zap.Logger

var (
	defaultLogger     Logger
	defaultLoggerOnce sync.Once
)

// nopLogger returns the package default, a no-op *zap.Logger, memoized
// behind a sync.Once.
func nopLogger() Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zap.NewNop()
	})
	return defaultLogger
}
