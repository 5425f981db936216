package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type run struct{ arrOff, bufOff, n uint64 }

func collect(t *testing.T, shape, start, count []uint64) []run {
	t.Helper()
	var runs []run
	require.NoError(t, Hyperslab(shape, start, count, func(arrOff, bufOff, n uint64) error {
		runs = append(runs, run{arrOff, bufOff, n})
		return nil
	}))
	return runs
}

func TestHyperslabRuns(t *testing.T) {
	// Interior 2x2 box of a 4x3 array: one run per selected row.
	runs := collect(t, []uint64{4, 3}, []uint64{1, 1}, []uint64{2, 2})
	assert.Equal(t, []run{{4, 0, 2}, {7, 2, 2}}, runs)

	// Full innermost selection still yields per-row runs.
	runs = collect(t, []uint64{2, 3}, []uint64{0, 0}, []uint64{2, 3})
	assert.Equal(t, []run{{0, 0, 3}, {3, 3, 3}}, runs)

	// Rank 3: runs advance through the two outer dimensions.
	runs = collect(t, []uint64{2, 2, 4}, []uint64{0, 0, 1}, []uint64{2, 2, 2})
	assert.Equal(t, []run{{1, 0, 2}, {5, 2, 2}, {9, 4, 2}, {13, 6, 2}}, runs)
}

func TestHyperslabScalarAndEmpty(t *testing.T) {
	runs := collect(t, nil, nil, nil)
	assert.Equal(t, []run{{0, 0, 1}}, runs)

	// A zero count selects nothing and never calls back.
	runs = collect(t, []uint64{4}, []uint64{0}, []uint64{0})
	assert.Empty(t, runs)
}

func TestHyperslabValidation(t *testing.T) {
	noop := func(uint64, uint64, uint64) error { return nil }
	assert.Error(t, Hyperslab([]uint64{4}, []uint64{3}, []uint64{2}, noop))
	assert.Error(t, Hyperslab([]uint64{4, 3}, []uint64{0}, []uint64{1}, noop))
}

func TestHyperslabPropagatesCallbackError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Hyperslab([]uint64{3, 2}, []uint64{0, 0}, []uint64{3, 2}, func(uint64, uint64, uint64) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestNumElements(t *testing.T) {
	assert.Equal(t, uint64(1), NumElements(nil))
	assert.Equal(t, uint64(24), NumElements([]uint64{2, 3, 4}))
	assert.Equal(t, uint64(0), NumElements([]uint64{2, 0}))
}
