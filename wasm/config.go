package wasm

import "github.com/xehp/drekkar-webasm/api"

// DefaultGasPerOp is the gas cost of a single control-flow opcode,
// reproduced from the original's step-cost constant in drekkar_wa_core.c.
const DefaultGasPerOp int64 = 1

// DefaultGasPerGrowPage is the additional gas charged per page requested
// by memory.grow, on top of DefaultGasPerOp, mirroring the original's
// heavier accounting for memory growth (spec.md §4.6 "every few memory-grow
// operations").
const DefaultGasPerGrowPage int64 = 4

// RuntimeConfig controls Instantiate behavior. Modeled on wazero's own
// config.go RuntimeConfig + clone() pattern: a value created through
// NewRuntimeConfig and functional options, copy-safe because every field
// has an explicit default.
type RuntimeConfig struct {
	gasLimit        int64
	operandStackLen int
	memoryMaxPages  uint32
	logger          Logger
	hostFuncs       map[string]map[string]api.HostFunc
}

// NewRuntimeConfig returns a RuntimeConfig with spec.md defaults: an
// unbounded gas limit (the host must call WithGasLimit to get resumable
// metering), a 65536-cell operand stack, and memory capped by the
// arguments-region address per spec.md §3.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		gasLimit:        -1,
		operandStackLen: DefaultOperandStackSize,
		memoryMaxPages:  0, // 0 means "use the program's own declared max"
		hostFuncs:       map[string]map[string]api.HostFunc{},
	}
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	hf := make(map[string]map[string]api.HostFunc, len(c.hostFuncs))
	for mod, fields := range c.hostFuncs {
		inner := make(map[string]api.HostFunc, len(fields))
		for k, v := range fields {
			inner[k] = v
		}
		hf[mod] = inner
	}
	return &RuntimeConfig{
		gasLimit:        c.gasLimit,
		operandStackLen: c.operandStackLen,
		memoryMaxPages:  c.memoryMaxPages,
		logger:          c.logger,
		hostFuncs:       hf,
	}
}

// WithGasLimit returns a copy of c with the initial gas budget set. A
// negative limit disables metering (Tick never returns CodeNeedMoreGas).
func (c *RuntimeConfig) WithGasLimit(gas int64) *RuntimeConfig {
	ret := c.clone()
	ret.gasLimit = gas
	return ret
}

// WithOperandStackSize returns a copy of c with the operand-stack capacity
// set; it is rounded up to the next power of two.
func (c *RuntimeConfig) WithOperandStackSize(n int) *RuntimeConfig {
	ret := c.clone()
	ret.operandStackLen = n
	return ret
}

// WithMemoryMaxPages returns a copy of c with an upper bound on linear
// memory pages, clamped against the program's own declared maximum.
func (c *RuntimeConfig) WithMemoryMaxPages(pages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = pages
	return ret
}

// WithLogger returns a copy of c that writes decode/instantiate/run
// diagnostics to logger.
func (c *RuntimeConfig) WithLogger(logger Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithHostFunc returns a copy of c with a host function registered under
// "module/field", to be matched against the module's import section at
// Instantiate time.
func (c *RuntimeConfig) WithHostFunc(module, field string, fn api.HostFunc) *RuntimeConfig {
	ret := c.clone()
	if ret.hostFuncs[module] == nil {
		ret.hostFuncs[module] = map[string]api.HostFunc{}
	}
	ret.hostFuncs[module][field] = fn
	return ret
}

func (c *RuntimeConfig) logOrDefault() Logger {
	if c.logger != nil {
		return c.logger
	}
	return nopLogger()
}
