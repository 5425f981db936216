package wire

import "fmt"

// Hyperslab iterates the contiguous row-major runs of the (start, count)
// box within an array of the given shape. fn is called with the element
// offset of the run inside the full array, the element offset inside the
// caller's packed request buffer, and the run length in elements. A
// scalar request (empty shape) yields one run of one element.
func Hyperslab(shape, start, count []uint64, fn func(arrOff, bufOff, n uint64) error) error {
	if len(start) != len(shape) || len(count) != len(shape) {
		return fmt.Errorf("wire: start/count rank %d/%d does not match shape rank %d",
			len(start), len(count), len(shape))
	}
	for i := range shape {
		if start[i]+count[i] > shape[i] {
			return fmt.Errorf("wire: index range [%d,%d) exceeds dimension %d length %d",
				start[i], start[i]+count[i], i, shape[i])
		}
		if count[i] == 0 {
			return nil
		}
	}
	if len(shape) == 0 {
		return fn(0, 0, 1)
	}

	// Element strides of the full array, innermost last.
	strides := make([]uint64, len(shape))
	strides[len(shape)-1] = 1
	for i := len(shape) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}

	last := len(shape) - 1
	run := count[last]
	idx := make([]uint64, len(shape))
	var bufOff uint64
	for {
		arrOff := uint64(0)
		for i := range idx {
			arrOff += (start[i] + idx[i]) * strides[i]
		}
		if err := fn(arrOff, bufOff, run); err != nil {
			return err
		}
		bufOff += run

		// Advance the odometer over all but the innermost dimension.
		i := last - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < count[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

// NumElements returns the product of count, 1 for a scalar.
func NumElements(count []uint64) uint64 {
	n := uint64(1)
	for _, c := range count {
		n *= c
	}
	return n
}
