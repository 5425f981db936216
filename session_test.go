package arrbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// recDataset is an in-memory backend recording every array call, for
// testing the dispatch layer without a real codec.
type recDataset struct {
	UnsupportedEnhanced

	model *meta.Model
	data  map[meta.VarID][]byte

	calls  []recCall
	failAt int // fail the nth array call, 0 never
}

type recCall struct {
	op           string
	start, count []uint64
	mem          MemType
}

func newRecDataset() *recDataset {
	return &recDataset{model: meta.New(), data: map[meta.VarID][]byte{}}
}

// addVar defines a variable and allocates zeroed backing storage.
func (d *recDataset) addVar(name string, typ meta.TypeID, dims ...uint64) meta.VarID {
	ids := make([]meta.DimID, len(dims))
	for i, n := range dims {
		dim, err := d.model.AddDim(meta.Root, fmt.Sprintf("%s_d%d", name, i), n)
		if err != nil {
			panic(err)
		}
		ids[i] = dim.ID
	}
	v, err := d.model.AddVar(meta.Root, name, typ, ids)
	if err != nil {
		panic(err)
	}
	size := uint64(d.model.TypeSize(typ))
	for _, n := range dims {
		size *= n
	}
	d.data[v.ID] = make([]byte, size)
	return v.ID
}

func (d *recDataset) record(op string, start, count []uint64, mem MemType) error {
	d.calls = append(d.calls, recCall{
		op:    op,
		start: append([]uint64(nil), start...),
		count: append([]uint64(nil), count...),
		mem:   mem,
	})
	if d.failAt != 0 && len(d.calls) == d.failAt {
		return fmt.Errorf("rec: induced failure on call %d", d.failAt)
	}
	return nil
}

func (d *recDataset) Meta() *meta.Model { return d.model }

func (d *recDataset) Close(context.Context) error { return nil }
func (d *recDataset) Abort() error                { return nil }
func (d *recDataset) Sync(context.Context) error  { return nil }
func (d *recDataset) Redef() error                { return nil }
func (d *recDataset) EndDef() error               { return nil }

func (d *recDataset) DefDim(grp meta.GrpID, name string, length uint64) (meta.DimID, error) {
	dim, err := d.model.AddDim(grp, name, length)
	if err != nil {
		return 0, err
	}
	return dim.ID, nil
}

func (d *recDataset) DefVar(grp meta.GrpID, name string, typ meta.TypeID, dims []meta.DimID) (meta.VarID, error) {
	v, err := d.model.AddVar(grp, name, typ, dims)
	if err != nil {
		return 0, err
	}
	return v.ID, nil
}

func (d *recDataset) RenameDim(id meta.DimID, name string) error { return d.model.RenameDim(id, name) }
func (d *recDataset) RenameVar(id meta.VarID, name string) error { return d.model.RenameVar(id, name) }

func (d *recDataset) RenameAttr(grp meta.GrpID, v meta.VarID, old, new string) error {
	return d.model.RenameAttr(grp, v, old, new)
}

func (d *recDataset) SetFill(FillMode) (FillMode, error) { return Fill, nil }

func (d *recDataset) PutAttr(grp meta.GrpID, v meta.VarID, name string, typ meta.TypeID, nelems int, data []byte, mem MemType) error {
	if err := d.record("putattr", nil, nil, mem); err != nil {
		return err
	}
	return d.model.SetAttr(grp, v, meta.Attribute{Name: name, Type: typ, Nelems: nelems, Data: data})
}

func (d *recDataset) GetAttr(grp meta.GrpID, v meta.VarID, name string, mem MemType) ([]byte, error) {
	if err := d.record("getattr", nil, nil, mem); err != nil {
		return nil, err
	}
	att, err := d.model.Var(v)
	if err != nil {
		return nil, err
	}
	if a, ok := att.Attr(name); ok {
		return a.Data, nil
	}
	return nil, ErrNotFound
}

func (d *recDataset) DelAttr(grp meta.GrpID, v meta.VarID, name string) error {
	return d.model.DelAttr(grp, v, name)
}

func (d *recDataset) GetVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem MemType) error {
	if err := d.record("get", start, count, mem); err != nil {
		return err
	}
	return d.slab(v, start, count, data, false)
}

func (d *recDataset) PutVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem MemType) error {
	if err := d.record("put", start, count, mem); err != nil {
		return err
	}
	return d.slab(v, start, count, data, true)
}

func (d *recDataset) slab(v meta.VarID, start, count []uint64, data []byte, put bool) error {
	vv, err := d.model.Var(v)
	if err != nil {
		return err
	}
	shape, err := d.model.Shape(vv)
	if err != nil {
		return err
	}
	elem := uint64(d.model.TypeSize(vv.Type))
	arr := d.data[v]
	return wire.Hyperslab(shape, start, count, func(arrOff, bufOff, n uint64) error {
		if put {
			copy(arr[arrOff*elem:(arrOff+n)*elem], data[bufOff*elem:])
		} else {
			copy(data[bufOff*elem:(bufOff+n)*elem], arr[arrOff*elem:])
		}
		return nil
	})
}

func (d *recDataset) SetBasePE(int) error  { return nil }
func (d *recDataset) BasePE() (int, error) { return 0, nil }

var _ Dataset = (*recDataset)(nil)

func TestSessionBufferValidation(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 4, 3)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	// Wrong byte count.
	err := s.GetVara(ctx, v, []uint64{0, 0}, []uint64{2, 2}, make([]byte, 15), MemInt)
	assert.ErrorIs(t, err, ErrShape)
	// Rank mismatch.
	err = s.GetVara(ctx, v, []uint64{0}, []uint64{2}, make([]byte, 8), MemInt)
	assert.ErrorIs(t, err, ErrShape)
	// Unknown variable.
	err = s.GetVara(ctx, 99, []uint64{0, 0}, []uint64{1, 1}, make([]byte, 4), MemInt)
	assert.ErrorIs(t, err, ErrBadID)
	// Nothing reached the backend.
	assert.Empty(t, ds.calls)

	// Exact buffer passes.
	require.NoError(t, s.GetVara(ctx, v, []uint64{0, 0}, []uint64{2, 2}, make([]byte, 16), MemInt))
	assert.Len(t, ds.calls, 1)
}

func TestSessionNormalizesMemLong(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int64, 2)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	require.NoError(t, s.PutVara(ctx, v, []uint64{0}, []uint64{2}, make([]byte, 16), MemLong))
	require.NoError(t, s.GetVara(ctx, v, []uint64{0}, []uint64{2}, make([]byte, 16), MemLong))
	require.NoError(t, s.PutAttr(meta.Root, v, "a", meta.Int64, 1, make([]byte, 8), MemLong))

	require.Len(t, ds.calls, 3)
	for _, c := range ds.calls {
		assert.Equal(t, MemInt64, c.mem, "%s saw %s", c.op, c.mem)
	}
}

func TestSessionClosedRejectsEverything(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 2)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	require.NoError(t, s.Close(ctx))

	assert.ErrorIs(t, s.Close(ctx), ErrClosed)
	assert.ErrorIs(t, s.Sync(ctx), ErrClosed)
	assert.ErrorIs(t, s.Redef(), ErrClosed)
	_, err := s.DefDim(meta.Root, "n", 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.GetVara(ctx, v, []uint64{0}, []uint64{2}, make([]byte, 8), MemInt), ErrClosed)
	assert.ErrorIs(t, s.PutVars(ctx, v, []uint64{0}, []uint64{1}, nil, make([]byte, 4), MemInt), ErrClosed)
}

func TestSessionPutAttrValidation(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Int, 2)
	s := newSession(FormatClassic, ds)

	err := s.PutAttr(meta.Root, v, "a", meta.Int, 3, make([]byte, 8), MemInt)
	assert.ErrorIs(t, err, ErrShape)
	assert.Empty(t, ds.calls)
}

func TestSessionNativeElementSize(t *testing.T) {
	ds := newRecDataset()
	v := ds.addVar("x", meta.Double, 3)
	s := newSession(FormatClassic, ds)
	ctx := context.Background()

	// MemNative sizes the buffer by the declared type.
	require.NoError(t, s.GetVara(ctx, v, []uint64{0}, []uint64{3}, make([]byte, 24), MemNative))
	err := s.GetVara(ctx, v, []uint64{0}, []uint64{3}, make([]byte, 12), MemNative)
	assert.ErrorIs(t, err, ErrShape)
}
