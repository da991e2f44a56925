package leb128

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadUnsigned32(t *testing.T) {
	for _, c := range []struct {
		bytes []byte
		exp   uint64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x01}, exp: 1},
		{bytes: []byte{0x04}, exp: 4},
		{bytes: []byte{0x80, 0x7f}, exp: 16256},
		{bytes: []byte{0xe5, 0x8e, 0x26}, exp: 624485},
		{bytes: []byte{0x80, 0x80, 0x80, 0x4f}, exp: 165675008},
		{bytes: []byte{0xff, 0xff, 0xff, 0xff, 0xf}, exp: 0xffffffff},
	} {
		r := NewReader(c.bytes)
		got := r.ReadUnsigned(32)
		require.Equal(t, c.exp, got)
		require.False(t, r.Err())
		require.Equal(t, len(c.bytes), r.Pos())
	}
}

func TestReadUnsignedUnderflowSetsErr(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80})
	r.ReadUnsigned(32)
	require.True(t, r.Err())
}

func TestReadSignedBasic(t *testing.T) {
	for _, c := range []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x02}, exp: 2},
		{bytes: []byte{0x7e}, exp: -2},
		{bytes: []byte{0xff, 0x00}, exp: 127},
		{bytes: []byte{0x81, 0x7f}, exp: -127},
	} {
		r := NewReader(c.bytes)
		got := r.ReadSigned(32)
		require.Equal(t, c.exp, got)
	}
}

// This is the single subtlest decoder bug surface called out in spec.md
// §9: 0x40 must decode to -64 (the empty block type), using 33-bit
// signed decoding, never as a positive type index.
func TestReadSignedBlockType33BitEmptyEncoding(t *testing.T) {
	r := NewReader([]byte{0x40})
	got := r.ReadSigned(33)
	require.Equal(t, int64(-64), got)
}

func TestReadSignedBlockTypeValueTypeEncodings(t *testing.T) {
	// i32 = 0x7f = -1, i64 = 0x7e = -2, f32 = 0x7d = -3, f64 = 0x7c = -4.
	for _, c := range []struct {
		b   byte
		exp int64
	}{
		{b: 0x7f, exp: -1},
		{b: 0x7e, exp: -2},
		{b: 0x7d, exp: -3},
		{b: 0x7c, exp: -4},
	} {
		r := NewReader([]byte{c.b})
		require.Equal(t, c.exp, r.ReadSigned(33))
	}
}

func TestReadU32LEAndU64LE(t *testing.T) {
	r := NewReader([]byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.Equal(t, uint32(1), r.ReadU32LE())
	require.Equal(t, uint64(2), r.ReadU64LE())
}

func TestReadString(t *testing.T) {
	// length-prefixed "hi"
	r := NewReader([]byte{0x02, 'h', 'i'})
	require.Equal(t, "hi", r.ReadString())
}

func TestReadStringTruncatedSetsErr(t *testing.T) {
	r := NewReader([]byte{0x05, 'h', 'i'})
	_ = r.ReadString()
	require.True(t, r.Err())
}
