package wasm

import "github.com/xehp/drekkar-webasm/api"

// hostCall adapts an Instance's operand stack to the api.Call interface a
// registered host function sees, per spec.md §6. Parameters were already
// pushed by the guest in declaration order, so PopI32 et al. pop in reverse
// declaration order, matching a normal call's argument teardown.
type hostCall struct {
	in        *Instance
	remaining int
}

func newHostCall(in *Instance, paramCount int) *hostCall {
	return &hostCall{in: in, remaining: paramCount}
}

func (c *hostCall) pop() uint64 {
	if c.remaining <= 0 {
		return 0
	}
	c.remaining--
	return c.in.stack.pop()
}

func (c *hostCall) PopI32() uint32   { return uint32(c.pop()) }
func (c *hostCall) PopI64() uint64   { return c.pop() }
func (c *hostCall) PopF32() float32  { return f32(c.pop()) }
func (c *hostCall) PopF64() float64  { return f64(c.pop()) }

func (c *hostCall) PushI32(v uint32)  { c.in.stack.push(uint64(v)) }
func (c *hostCall) PushI64(v uint64)  { c.in.stack.push(v) }
func (c *hostCall) PushF32(v float32) { c.in.stack.push(u32bits(v)) }
func (c *hostCall) PushF64(v float64) { c.in.stack.push(u64bits(v)) }

func (c *hostCall) Translate(addr uint32, n uint32) ([]byte, error) {
	return c.in.Translate(addr, n)
}

func (c *hostCall) SetException(msg string) {
	c.in.exception = msg
}

var _ api.Call = (*hostCall)(nil)
