package arrbox

import (
	"context"
	"fmt"

	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// Derived-access family: strided and mapped selections expressed as one
// or more hyperslab (start, count) sub-requests against the backend's
// array primitive. The translation is owned here; no backend implements
// it again.
//
// The decomposition is not transactional: a failing sub-request aborts
// the remainder and propagates the first failure, but the effects of
// sub-requests that already completed stay in place. Callers of strided
// or mapped writes must treat a mid-way failure as a partial write.

type subRequest struct {
	start []uint64 // hyperslab origin in the variable
	run   uint64   // contiguous elements along the innermost dimension
	off   uint64   // element offset in the caller's packed buffer
}

// stridedPlan decomposes a (start, count, stride) selection into
// sub-requests, in the same element order a packed buffer uses. A nil
// stride means 1 along every dimension.
func stridedPlan(start, count, stride []uint64, fn func(subRequest) error) error {
	rank := len(start)
	if rank == 0 {
		return fn(subRequest{run: 1})
	}
	for i := 0; i < rank; i++ {
		if count[i] == 0 {
			return nil
		}
	}

	contiguous := stride == nil || stride[rank-1] == 1
	run := uint64(1)
	if contiguous {
		run = count[rank-1]
	}

	idx := make([]uint64, rank)
	var off uint64
	for {
		pos := make([]uint64, rank)
		for i := 0; i < rank; i++ {
			step := uint64(1)
			if stride != nil {
				step = stride[i]
			}
			pos[i] = start[i] + idx[i]*step
		}
		if err := fn(subRequest{start: pos, run: run, off: off}); err != nil {
			return err
		}
		off += run

		// Odometer: the innermost dimension only turns when each
		// sub-request covers a single element.
		i := rank - 1
		if contiguous {
			i = rank - 2
		}
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

func checkStrided(ds Dataset, v meta.VarID, start, count, stride []uint64, data []byte, mem MemType) (int, error) {
	vv, err := ds.Meta().Var(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadID, err)
	}
	rank := vv.Rank()
	if len(start) != rank || len(count) != rank || (stride != nil && len(stride) != rank) {
		return 0, fmt.Errorf("arrbox: variable %q rank %d: %w", vv.Name, rank, ErrShape)
	}
	for i := range stride {
		if stride[i] == 0 {
			return 0, fmt.Errorf("arrbox: zero stride on dimension %d: %w", i, ErrInvalid)
		}
	}
	elem := mem.Size()
	if mem == MemNative {
		elem = ds.Meta().TypeSize(vv.Type)
		if elem == 0 {
			return 0, fmt.Errorf("arrbox: variable %q has no fixed element size: %w", vv.Name, ErrUnsupported)
		}
	}
	return elem, nil
}

func getVars(ctx context.Context, ds Dataset, v meta.VarID, start, count, stride []uint64, data []byte, mem MemType) error {
	elem, err := checkStrided(ds, v, start, count, stride, data, mem)
	if err != nil {
		return err
	}
	if want := wire.NumElements(count) * uint64(elem); uint64(len(data)) != want {
		return fmt.Errorf("arrbox: buffer %d bytes, strided selection needs %d: %w", len(data), want, ErrShape)
	}
	return stridedPlan(start, count, stride, func(sub subRequest) error {
		buf := data[sub.off*uint64(elem) : (sub.off+sub.run)*uint64(elem)]
		return ds.GetVara(ctx, v, sub.start, subCount(sub), buf, mem)
	})
}

func putVars(ctx context.Context, ds Dataset, v meta.VarID, start, count, stride []uint64, data []byte, mem MemType) error {
	elem, err := checkStrided(ds, v, start, count, stride, data, mem)
	if err != nil {
		return err
	}
	if want := wire.NumElements(count) * uint64(elem); uint64(len(data)) != want {
		return fmt.Errorf("arrbox: buffer %d bytes, strided selection needs %d: %w", len(data), want, ErrShape)
	}
	return stridedPlan(start, count, stride, func(sub subRequest) error {
		buf := data[sub.off*uint64(elem) : (sub.off+sub.run)*uint64(elem)]
		return ds.PutVara(ctx, v, sub.start, subCount(sub), buf, mem)
	})
}

// subCount builds the count vector of one sub-request: single elements
// everywhere, the contiguous run along the innermost dimension.
func subCount(sub subRequest) []uint64 {
	if len(sub.start) == 0 {
		return nil
	}
	count := make([]uint64, len(sub.start))
	for i := range count {
		count[i] = 1
	}
	count[len(count)-1] = sub.run
	return count
}

// mappedOffsets walks every selected point in row-major selection order,
// yielding the point's position in the variable and its element offset
// in the caller's buffer as dictated by imap.
func mappedOffsets(start, count, stride, imap []uint64, fn func(pos []uint64, memOff uint64) error) error {
	rank := len(start)
	if rank == 0 {
		return fn(nil, 0)
	}
	for i := 0; i < rank; i++ {
		if count[i] == 0 {
			return nil
		}
	}
	idx := make([]uint64, rank)
	for {
		pos := make([]uint64, rank)
		var memOff uint64
		for i := 0; i < rank; i++ {
			step := uint64(1)
			if stride != nil {
				step = stride[i]
			}
			pos[i] = start[i] + idx[i]*step
			memOff += idx[i] * imap[i]
		}
		if err := fn(pos, memOff); err != nil {
			return err
		}
		i := rank - 1
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

// defaultImap is the packed row-major mapping, which makes a mapped
// access equivalent to the strided one.
func defaultImap(count []uint64) []uint64 {
	imap := make([]uint64, len(count))
	if len(count) == 0 {
		return imap
	}
	imap[len(count)-1] = 1
	for i := len(count) - 2; i >= 0; i-- {
		imap[i] = imap[i+1] * count[i+1]
	}
	return imap
}

func checkMapped(ds Dataset, v meta.VarID, start, count, stride, imap []uint64, data []byte, mem MemType) ([]uint64, int, error) {
	elem, err := checkStrided(ds, v, start, count, stride, data, mem)
	if err != nil {
		return nil, 0, err
	}
	if imap == nil {
		imap = defaultImap(count)
	} else if len(imap) != len(start) {
		return nil, 0, fmt.Errorf("arrbox: imap rank %d, variable rank %d: %w", len(imap), len(start), ErrShape)
	}
	// The buffer must reach the farthest mapped element.
	need := uint64(1)
	for i := range count {
		need += (count[i] - 1) * imap[i]
	}
	if wire.NumElements(count) == 0 {
		need = 0
	}
	if uint64(len(data)) < need*uint64(elem) {
		return nil, 0, fmt.Errorf("arrbox: buffer %d bytes, mapped selection reaches %d: %w",
			len(data), need*uint64(elem), ErrShape)
	}
	return imap, elem, nil
}

func getVarm(ctx context.Context, ds Dataset, v meta.VarID, start, count, stride, imap []uint64, data []byte, mem MemType) error {
	imap, elem, err := checkMapped(ds, v, start, count, stride, imap, data, mem)
	if err != nil {
		return err
	}
	one := ones(len(start))
	return mappedOffsets(start, count, stride, imap, func(pos []uint64, memOff uint64) error {
		buf := data[memOff*uint64(elem) : (memOff+1)*uint64(elem)]
		return ds.GetVara(ctx, v, pos, one, buf, mem)
	})
}

func putVarm(ctx context.Context, ds Dataset, v meta.VarID, start, count, stride, imap []uint64, data []byte, mem MemType) error {
	imap, elem, err := checkMapped(ds, v, start, count, stride, imap, data, mem)
	if err != nil {
		return err
	}
	one := ones(len(start))
	return mappedOffsets(start, count, stride, imap, func(pos []uint64, memOff uint64) error {
		buf := data[memOff*uint64(elem) : (memOff+1)*uint64(elem)]
		return ds.PutVara(ctx, v, pos, one, buf, mem)
	})
}

func ones(rank int) []uint64 {
	one := make([]uint64, rank)
	for i := range one {
		one[i] = 1
	}
	return one
}
