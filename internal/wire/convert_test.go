package wire

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/arrbox/meta"
)

func le32(vals ...uint32) []byte {
	var b []byte
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

func TestConvertWiden(t *testing.T) {
	src := []byte{0x01, 0xFF} // int8 1, -1
	dst := make([]byte, 2*4)
	require.NoError(t, Convert(dst, meta.KindInt, src, meta.KindByte))
	assert.Equal(t, le32(1, 0xFFFFFFFF), dst)

	// The same bytes as unsigned widen without sign extension.
	require.NoError(t, Convert(dst, meta.KindInt, src, meta.KindUByte))
	assert.Equal(t, le32(1, 255), dst)
}

func TestConvertNarrowTruncates(t *testing.T) {
	src := le32(0x12345678)
	dst := make([]byte, 2)
	require.NoError(t, Convert(dst, meta.KindShort, src, meta.KindInt))
	assert.Equal(t, []byte{0x78, 0x56}, dst)
}

func TestConvertFloat(t *testing.T) {
	src := make([]byte, 8)
	binary.LittleEndian.PutUint64(src, math.Float64bits(2.5))

	dst := make([]byte, 4)
	require.NoError(t, Convert(dst, meta.KindFloat, src, meta.KindDouble))
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.LittleEndian.Uint32(dst)))

	// Float to int truncates toward zero.
	idst := make([]byte, 4)
	require.NoError(t, Convert(idst, meta.KindInt, src, meta.KindDouble))
	assert.Equal(t, le32(2), idst)

	// Unsigned source values above the signed range survive the float path.
	usrc := make([]byte, 8)
	binary.LittleEndian.PutUint64(usrc, math.MaxUint64)
	fdst := make([]byte, 8)
	require.NoError(t, Convert(fdst, meta.KindDouble, usrc, meta.KindUInt64))
	assert.InDelta(t, float64(math.MaxUint64), math.Float64frombits(binary.LittleEndian.Uint64(fdst)), 1e4)
}

func TestConvertSameKindCopies(t *testing.T) {
	src := le32(1, 2, 3)
	dst := make([]byte, len(src))
	require.NoError(t, Convert(dst, meta.KindInt, src, meta.KindInt))
	assert.Equal(t, src, dst)
}

func TestConvertRejectsBadBuffers(t *testing.T) {
	assert.Error(t, Convert(make([]byte, 4), meta.KindInt, make([]byte, 3), meta.KindInt))
	assert.Error(t, Convert(make([]byte, 8), meta.KindInt, make([]byte, 4), meta.KindInt))
	assert.Error(t, Convert(make([]byte, 4), meta.KindNone, make([]byte, 4), meta.KindInt))
	assert.Error(t, Convert(make([]byte, 4), meta.KindInt, nil, meta.KindString))
}

func TestDefaultFill(t *testing.T) {
	assert.Equal(t, []byte{0x81}, DefaultFill(meta.KindByte))
	assert.Equal(t, []byte{0}, DefaultFill(meta.KindChar))
	assert.Equal(t, uint32(0x80000001), binary.LittleEndian.Uint32(DefaultFill(meta.KindInt)))
	assert.Equal(t, uint64(0x8000000000000002), binary.LittleEndian.Uint64(DefaultFill(meta.KindInt64)))
	assert.Equal(t, 9.9692099683868690e+36, math.Float64frombits(binary.LittleEndian.Uint64(DefaultFill(meta.KindDouble))))
	assert.Empty(t, DefaultFill(meta.KindString))
}

func TestFillBytesTiles(t *testing.T) {
	dst := make([]byte, 7)
	FillBytes(dst, []byte{0xAB, 0xCD})
	assert.Equal(t, []byte{0xAB, 0xCD, 0xAB, 0xCD, 0xAB, 0xCD, 0xAB}, dst)

	FillBytes(dst, nil) // no pattern, no change
	assert.Equal(t, byte(0xAB), dst[0])
}
