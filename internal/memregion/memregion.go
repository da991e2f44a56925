// Package memregion implements the three-region linear memory model of
// spec.md §3/§4.7: a lower byte buffer growing from address 0, an upper
// split-base window serving high addresses without filling the gap, and a
// fixed-base arguments region for host-supplied argv data.
package memregion

import (
	"github.com/xehp/drekkar-webasm/container"
	"github.com/xehp/drekkar-webasm/wasmerr"
)

// PageSize is the WebAssembly linear-memory page size in bytes.
const PageSize = 65536

// ArgumentsBase is the fixed guest address at which the arguments region
// starts. Guest addresses below this belong to lower or upper memory;
// addresses at or above it belong to the arguments region.
const ArgumentsBase uint64 = 0xFF000000

// mergeThreshold: once lower memory has grown to come within this many
// bytes of upper's begin, upper is folded into lower rather than grown
// further, per spec.md §4.7 step 4.
const mergeThreshold = 4 * PageSize

// lowAddressThreshold: a guest access below this address extends lower
// memory; at or above it (but below ArgumentsBase) extends upper memory
// instead, per spec.md §4.7 step 4's "extend lower...or upper" choice.
const lowAddressThreshold uint64 = 16 * 1024 * 1024

// Region is the per-instance linear memory: lower, upper, and arguments,
// kept pairwise disjoint (spec.md §8 universal invariant).
type Region struct {
	lower     *container.ByteBuffer
	upper     *container.SplitBuffer
	arguments *container.ByteBuffer

	maxPages uint32
}

// New returns a region with initialPages committed to lower memory and a
// cap of maxPages pages on lower memory (0, or anything above
// ArgumentsBase/PageSize, means ArgumentsBase/PageSize; spec.md §3). Upper
// memory is bounded by ArgumentsBase, not by maxPages.
func New(initialPages, maxPages uint32) *Region {
	cap := uint32(ArgumentsBase / PageSize)
	if maxPages > cap || maxPages == 0 {
		maxPages = cap
	}
	return &Region{
		lower:     container.NewByteBuffer(int(initialPages) * PageSize),
		upper:     container.NewSplitBuffer(PageSize),
		arguments: container.NewByteBuffer(0),
		maxPages:  maxPages,
	}
}

// Pages returns the current committed lower-memory page count, the value
// memory.size reports.
func (r *Region) Pages() uint32 {
	return uint32(r.lower.Len() / PageSize)
}

// MaxPages returns the instance's page cap.
func (r *Region) MaxPages() uint32 { return r.maxPages }

// Grow commits delta additional pages to lower memory, returning the
// previous page count as memory.grow does, or ok=false if the request
// would exceed MaxPages.
func (r *Region) Grow(delta uint32) (previous uint32, ok bool) {
	previous = r.Pages()
	if delta == 0 {
		return previous, true
	}
	newPages := previous + delta
	if newPages < previous || newPages > r.maxPages {
		return previous, false
	}
	r.lower.Grow(int(newPages) * PageSize)
	r.maybeMergeUpperIntoLower()
	return previous, true
}

// Translate converts a guest address range [addr,addr+n) to host bytes,
// growing whichever region owns it, per spec.md §4.7's five-step
// decision procedure.
func (r *Region) Translate(addr uint64, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	end := addr + n
	if end < addr {
		return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "address overflow")
	}

	// Step 1: already inside committed lower memory.
	if end <= uint64(r.lower.Len()) {
		return r.lower.Bytes()[addr:end], nil
	}

	// Step 2: already inside the upper window.
	if r.upper.Contains(addr, n) {
		return r.upper.Slice(addr, n), nil
	}

	// Step 3: inside the arguments region.
	if addr >= ArgumentsBase {
		off := addr - ArgumentsBase
		if off+n > uint64(r.arguments.Len()) {
			return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "arguments region overrun")
		}
		return r.arguments.Bytes()[off : off+n], nil
	}

	// Step 5 (checked early): crossing into the arguments region or past
	// the page limit without being serviced by lower/upper/arguments is a
	// trap.
	if end > ArgumentsBase {
		return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "access crosses arguments base")
	}
	maxByte := uint64(r.maxPages) * PageSize
	if end > maxByte && addr < lowAddressThreshold {
		return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "access exceeds page limit")
	}

	// Step 4: decide whether to extend lower or upper.
	r.maybeMergeUpperIntoLower()
	if r.upper.Contains(addr, n) {
		return r.upper.Slice(addr, n), nil
	}

	if addr < lowAddressThreshold {
		if end > maxByte {
			return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "access exceeds page limit")
		}
		pages := uint32((end + PageSize - 1) / PageSize)
		if pages > r.maxPages {
			return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "access exceeds page limit")
		}
		r.lower.Grow(int(pages) * PageSize)
		return r.lower.Bytes()[addr:end], nil
	}

	r.upper.Grow(addr, n, uint64(r.lower.Len()), ArgumentsBase)
	if !r.upper.Contains(addr, n) {
		return nil, wasmerr.New(wasmerr.CodeMemoryOutOfRange, "upper memory grow failed")
	}
	return r.upper.Slice(addr, n), nil
}

// WriteArguments copies argument bytes into the fixed-base arguments
// region starting at offset off (relative to ArgumentsBase), growing it as
// needed.
func (r *Region) WriteArguments(off int, data []byte) {
	copy(r.arguments.Slice(off, len(data)), data)
}

// maybeMergeUpperIntoLower folds the upper window into lower memory once
// lower has grown to within mergeThreshold bytes of upper's begin, keeping
// the three regions pairwise disjoint (spec.md §3/§9). That distance is the
// only trigger: how much of upper is in use is not considered, and upper is
// never discarded or merged on account of being largely empty.
func (r *Region) maybeMergeUpperIntoLower() {
	if r.upper.Len() == 0 {
		return
	}
	lowerLen := uint64(r.lower.Len())
	if r.upper.Begin() > lowerLen+mergeThreshold {
		return
	}
	newLen := r.upper.End()
	if newLen > ArgumentsBase {
		newLen = ArgumentsBase
	}
	if int(newLen) > r.lower.Len() {
		r.lower.Grow(int(newLen))
	}
	copy(r.lower.Bytes()[r.upper.Begin():], r.upper.Slice(r.upper.Begin(), r.upper.End()-r.upper.Begin()))
	r.upper.Reset()
}

// Disjoint reports the lower/upper part of the spec.md §8 universal
// invariant: lower's length is at or below upper's begin (or upper is
// empty). The arguments region is not checked, as its base is the constant
// ArgumentsBase. Used by tests.
func (r *Region) Disjoint() bool {
	if r.upper.Len() > 0 && uint64(r.lower.Len()) > r.upper.Begin() {
		return false
	}
	return true
}
