package arrbox

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/arrbox/meta"
)

func i32buf(vals ...int32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, uint32(v))
	}
	return out
}

// seed writes 0..n-1 into the variable's backing array.
func seed(ds *recDataset, v meta.VarID, n int) {
	arr := ds.data[v]
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(arr[i*4:], uint32(i))
	}
}

func TestGetVarsDecomposition(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 8)
	seed(ds, v, 8)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	got := make([]byte, 4*4)
	require.NoError(t, s.GetVars(ctx, v, []uint64{0}, []uint64{4}, []uint64{2}, got, MemInt))
	assert.Equal(t, i32buf(0, 2, 4, 6), got)

	// A non-unit innermost stride means one sub-request per element.
	require.Len(t, ds.calls, 4)
	for i, c := range ds.calls {
		assert.Equal(t, "get", c.op)
		assert.Equal(t, []uint64{uint64(2 * i)}, c.start)
		assert.Equal(t, []uint64{1}, c.count)
	}
}

func TestGetVarsContiguousInnerRun(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("m", meta.Int, 2, 3)
	seed(ds, v, 6)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	// Unit stride along the innermost dimension keeps whole rows in one
	// sub-request each.
	got := make([]byte, 6*4)
	require.NoError(t, s.GetVars(ctx, v, []uint64{0, 0}, []uint64{2, 3}, []uint64{1, 1}, got, MemInt))
	assert.Equal(t, i32buf(0, 1, 2, 3, 4, 5), got)

	require.Len(t, ds.calls, 2)
	assert.Equal(t, []uint64{0, 0}, ds.calls[0].start)
	assert.Equal(t, []uint64{1, 3}, ds.calls[0].count)
	assert.Equal(t, []uint64{1, 0}, ds.calls[1].start)
}

func TestPutVarsRoundTrip(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 6)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	// Write 7,8,9 to the even positions.
	require.NoError(t, s.PutVars(ctx, v, []uint64{0}, []uint64{3}, []uint64{2}, i32buf(7, 8, 9), MemInt))

	full := make([]byte, 6*4)
	require.NoError(t, s.GetVara(ctx, v, []uint64{0}, []uint64{6}, full, MemInt))
	assert.Equal(t, i32buf(7, 0, 8, 0, 9, 0), full)
}

func TestStridedValidation(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 8)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	err := s.GetVars(ctx, v, []uint64{0}, []uint64{4}, []uint64{0}, make([]byte, 16), MemInt)
	assert.ErrorIs(t, err, ErrInvalid, "zero stride")

	err = s.GetVars(ctx, v, []uint64{0}, []uint64{4}, []uint64{2}, make([]byte, 12), MemInt)
	assert.ErrorIs(t, err, ErrShape, "short buffer")

	err = s.GetVars(ctx, v, []uint64{0, 0}, []uint64{4, 1}, nil, make([]byte, 16), MemInt)
	assert.ErrorIs(t, err, ErrShape, "rank mismatch")

	assert.Empty(t, ds.calls)
}

func TestPutVarsAbortsOnFirstFailure(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 8)
	ds.failAt = 2
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	err := s.PutVars(ctx, v, []uint64{0}, []uint64{4}, []uint64{2}, i32buf(1, 2, 3, 4), MemInt)
	require.Error(t, err)

	// The failing sub-request stopped the remainder, but the first one
	// had already landed: a mid-way failure is a partial write.
	assert.Len(t, ds.calls, 2)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(ds.data[v][0:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(ds.data[v][8:]), "second element never written")
}

func TestGetVarmTranspose(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("m", meta.Int, 2, 3)
	seed(ds, v, 6)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	// imap {1, 2} lays the selection out column-major: buffer index =
	// row*1 + col*2.
	got := make([]byte, 6*4)
	require.NoError(t, s.GetVarm(ctx, v, []uint64{0, 0}, []uint64{2, 3}, nil, []uint64{1, 2}, got, MemInt))
	assert.Equal(t, i32buf(0, 3, 1, 4, 2, 5), got)
}

func TestVarmDefaultImapMatchesVara(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("m", meta.Int, 3, 4)
	seed(ds, v, 12)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	a := make([]byte, 12*4)
	b := make([]byte, 12*4)
	require.NoError(t, s.GetVara(ctx, v, []uint64{0, 0}, []uint64{3, 4}, a, MemInt))
	require.NoError(t, s.GetVarm(ctx, v, []uint64{0, 0}, []uint64{3, 4}, nil, nil, b, MemInt))
	assert.Equal(t, a, b)
}

func TestMappedValidation(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("m", meta.Int, 2, 3)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	// The farthest mapped element must fit in the buffer.
	err := s.GetVarm(ctx, v, []uint64{0, 0}, []uint64{2, 3}, nil, []uint64{10, 1}, make([]byte, 24), MemInt)
	assert.ErrorIs(t, err, ErrShape)

	err = s.GetVarm(ctx, v, []uint64{0, 0}, []uint64{2, 3}, nil, []uint64{1}, make([]byte, 24), MemInt)
	assert.ErrorIs(t, err, ErrShape, "imap rank mismatch")
}
