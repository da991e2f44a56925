package wasm

import (
	"fmt"

	"github.com/xehp/drekkar-webasm/internal/memregion"
	"github.com/xehp/drekkar-webasm/wasmerr"
)

// Instantiate consumes Program and builds a fresh Instance: it copies each
// global's initial value (already computed from its init-expression by the
// decoder into Program.Globals), lays out the function table from element
// segments (already resolved into Program.TableInit by the decoder), and
// copies data segments into linear memory. Mirrors spec.md §2 item 5.
func Instantiate(p *Program, opts ...InstantiateOption) (*Instance, error) {
	cfg := &instOptions{
		gasLimit:        -1,
		operandStackLen: DefaultOperandStackSize,
		memoryMaxPages:  p.MemoryMaxPages,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.memoryMaxPages == 0 || (p.MemoryMaxPages != 0 && cfg.memoryMaxPages > p.MemoryMaxPages) {
		cfg.memoryMaxPages = p.MemoryMaxPages
	}

	in := &Instance{
		prog:    p,
		stack:   newOperandStack(cfg.operandStackLen),
		blocks:  newBlockStack(),
		mem:     memregion.New(p.MemoryInitialPages, cfg.memoryMaxPages),
		globals: append([]uint64(nil), p.Globals...),
		table:   append([]uint32(nil), p.TableInit...),
		gas:     cfg.gasLimit,
		logger:  nopLogger(),
	}

	for i := range p.DataSegments {
		seg := &p.DataSegments[i]
		if len(seg.Bytes) == 0 {
			continue
		}
		b, err := in.mem.Translate(seg.Offset, uint64(len(seg.Bytes)))
		if err != nil {
			return nil, wasmerr.Wrap(wasmerr.CodeMemoryOutOfRange, "data segment out of range", err)
		}
		copy(b, seg.Bytes)
	}

	return in, nil
}

// WithGasLimitOpt sets the initial gas budget on Instantiate; a negative
// value disables metering.
func WithGasLimitOpt(gas int64) InstantiateOption {
	return func(o *instOptions) { o.gasLimit = gas }
}

// WithOperandStackSizeOpt sets the operand-stack capacity, rounded to a
// power of two.
func WithOperandStackSizeOpt(n int) InstantiateOption {
	return func(o *instOptions) { o.operandStackLen = n }
}

// WithMemoryMaxPagesOpt caps linear memory, clamped to the program's own max.
func WithMemoryMaxPagesOpt(pages uint32) InstantiateOption {
	return func(o *instOptions) { o.memoryMaxPages = pages }
}

// InstantiateFromConfig builds Instance-level options from a RuntimeConfig,
// so cmd/drekkarwasm and tests can share one configuration object across
// decode and instantiate.
func InstantiateFromConfig(p *Program, cfg *RuntimeConfig) (*Instance, error) {
	in, err := Instantiate(p,
		WithGasLimitOpt(cfg.gasLimit),
		WithOperandStackSizeOpt(cfg.operandStackLen),
		WithMemoryMaxPagesOpt(cfg.memoryMaxPages),
	)
	if err != nil {
		return nil, err
	}
	in.logger = cfg.logOrDefault()

	for modName, fields := range cfg.hostFuncs {
		for fieldName, fn := range fields {
			idx, ok := p.Imports[modName+"/"+fieldName]
			if !ok {
				continue
			}
			p.Funcs[idx].HostFunc = fn
		}
	}
	for _, f := range p.Funcs {
		if f.Imported && f.HostFunc == nil {
			return nil, wasmerr.New(wasmerr.CodeHostFunctionNotFound,
				fmt.Sprintf("%s/%s", f.ImportModule, f.ImportField))
		}
	}
	return in, nil
}
