package ahf

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// dataset is the enhanced-format Dataset. Unlike the classic codec there
// is no strict define mode: schema definition and data access interleave
// freely, and Redef/EndDef are accepted as no-ops for classic-habit
// callers. Variable buffers are allocated lazily and grow independently
// along their leading unlimited dimension.
type dataset struct {
	arrbox.UnsupportedClassic

	fs   afero.Fs
	path string
	enc  *zstd.Encoder
	dec  *zstd.Decoder

	model *meta.Model
	data  map[meta.VarID][]byte

	writable  bool
	committed bool
	fillMode  arrbox.FillMode
	share     bool

	cacheSize       int
	cacheSlots      int
	cachePreemption float64
}

func (d *dataset) Meta() *meta.Model { return d.model }

func (d *dataset) checkWrite() error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	return nil
}

// Schema definition. Every entry point is group-scoped.

func (d *dataset) DefGroup(parent meta.GrpID, name string) (meta.GrpID, error) {
	if err := d.checkWrite(); err != nil {
		return 0, err
	}
	g, err := d.model.AddGroup(parent, name)
	if err != nil {
		return 0, err
	}
	return g.ID, nil
}

func (d *dataset) DefDim(grp meta.GrpID, name string, length uint64) (meta.DimID, error) {
	if err := d.checkWrite(); err != nil {
		return 0, err
	}
	dim, err := d.model.AddDim(grp, name, length)
	if err != nil {
		return 0, err
	}
	return dim.ID, nil
}

func (d *dataset) DefType(grp meta.GrpID, def meta.TypeDef) (meta.TypeID, error) {
	if err := d.checkWrite(); err != nil {
		return 0, err
	}
	t, err := d.model.AddType(grp, def)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (d *dataset) DefVar(grp meta.GrpID, name string, typ meta.TypeID, dims []meta.DimID) (meta.VarID, error) {
	if err := d.checkWrite(); err != nil {
		return 0, err
	}
	// Variable-sized element types (strings, vlens) have no fixed
	// in-memory layout and cannot back a variable here.
	if d.model.TypeSize(typ) == 0 {
		return 0, fmt.Errorf("ahf: variable-sized element type %d: %w", typ, arrbox.ErrUnsupported)
	}
	// The in-memory layout appends records, so an unlimited dimension
	// works only as the outermost axis.
	for i, id := range dims {
		dim, err := d.model.Dim(id)
		if err != nil {
			return 0, err
		}
		if dim.Unlimited && i != 0 {
			return 0, fmt.Errorf("ahf: unlimited dimension must come first: %w", arrbox.ErrUnsupported)
		}
	}
	v, err := d.model.AddVar(grp, name, typ, dims)
	if err != nil {
		return 0, err
	}
	v.Chunks = defaultChunks(d.model, v)
	return v.ID, nil
}

// defaultChunks picks one chunk per fixed extent and single-record
// chunks along an unlimited axis.
func defaultChunks(model *meta.Model, v *meta.Variable) []uint64 {
	if len(v.Dims) == 0 {
		return nil
	}
	chunks := make([]uint64, len(v.Dims))
	for i, id := range v.Dims {
		dim, err := model.Dim(id)
		if err != nil {
			return nil
		}
		if dim.Unlimited {
			chunks[i] = 1
		} else {
			chunks[i] = dim.Len
		}
	}
	return chunks
}

func (d *dataset) RenameDim(id meta.DimID, name string) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	return d.model.RenameDim(id, name)
}

func (d *dataset) RenameVar(id meta.VarID, name string) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	return d.model.RenameVar(id, name)
}

func (d *dataset) RenameAttr(grp meta.GrpID, v meta.VarID, old, new string) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	return d.model.RenameAttr(grp, v, old, new)
}

func (d *dataset) SetFill(mode arrbox.FillMode) (arrbox.FillMode, error) {
	if err := d.checkWrite(); err != nil {
		return d.fillMode, err
	}
	old := d.fillMode
	d.fillMode = mode
	return old, nil
}

func (d *dataset) SetChunkCache(size, slots int, preemption float64) error {
	if size < 0 || slots < 0 || preemption < 0 || preemption > 1 {
		return arrbox.ErrInvalid
	}
	d.cacheSize, d.cacheSlots, d.cachePreemption = size, slots, preemption
	return nil
}

// Attributes. Representation conversion applies to primitive-typed
// attributes only; user-typed values travel in their declared layout.

func (d *dataset) PutAttr(grp meta.GrpID, v meta.VarID, name string, typ meta.TypeID, nelems int, data []byte, mem arrbox.MemType) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	size := d.model.TypeSize(typ)
	if size == 0 && typ != meta.String {
		return fmt.Errorf("ahf: attribute %q type %d: %w", name, typ, meta.ErrBadRef)
	}
	var stored []byte
	switch {
	case mem == arrbox.MemNative || !primitive(typ):
		if mem != arrbox.MemNative {
			return fmt.Errorf("ahf: attribute %q: user-typed values take the native layout: %w", name, arrbox.ErrUnsupported)
		}
		stored = append([]byte(nil), data...)
	default:
		stored = make([]byte, nelems*size)
		if err := wire.Convert(stored, meta.Kind(typ), data, mem.Kind()); err != nil {
			return fmt.Errorf("ahf: attribute %q: %w", name, err)
		}
	}
	return d.model.SetAttr(grp, v, meta.Attribute{Name: name, Type: typ, Nelems: nelems, Data: stored})
}

func (d *dataset) GetAttr(grp meta.GrpID, v meta.VarID, name string, mem arrbox.MemType) ([]byte, error) {
	att, err := findAttr(d.model, grp, v, name)
	if err != nil {
		return nil, err
	}
	if mem == arrbox.MemNative || !primitive(att.Type) {
		if mem != arrbox.MemNative {
			return nil, fmt.Errorf("ahf: attribute %q: user-typed values take the native layout: %w", name, arrbox.ErrUnsupported)
		}
		return append([]byte(nil), att.Data...), nil
	}
	out := make([]byte, att.Nelems*mem.Size())
	if err := wire.Convert(out, mem.Kind(), att.Data, meta.Kind(att.Type)); err != nil {
		return nil, fmt.Errorf("ahf: attribute %q: %w", name, err)
	}
	return out, nil
}

func (d *dataset) DelAttr(grp meta.GrpID, v meta.VarID, name string) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	return d.model.DelAttr(grp, v, name)
}

func primitive(typ meta.TypeID) bool {
	return typ > 0 && typ < meta.UserBase
}

func findAttr(model *meta.Model, grp meta.GrpID, v meta.VarID, name string) (*meta.Attribute, error) {
	if v == meta.Global {
		g, err := model.Group(grp)
		if err != nil {
			return nil, err
		}
		if att, ok := g.Attr(name); ok {
			return att, nil
		}
		return nil, fmt.Errorf("ahf: attribute %q: %w", name, arrbox.ErrNotFound)
	}
	vv, err := model.Var(v)
	if err != nil {
		return nil, err
	}
	if att, ok := vv.Attr(name); ok {
		return att, nil
	}
	return nil, fmt.Errorf("ahf: attribute %q: %w", name, arrbox.ErrNotFound)
}

// Array access. Buffers are allocated on first touch and grow along the
// leading unlimited dimension; a variable whose record dimension grew
// through a sibling reads fill values for the records it never wrote.

func (d *dataset) GetVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem arrbox.MemType) error {
	vv, err := d.model.Var(v)
	if err != nil {
		return err
	}
	shape, err := d.model.Shape(vv)
	if err != nil {
		return err
	}
	if err := d.ensure(vv, shape); err != nil {
		return err
	}
	return d.slab(vv, shape, start, count, data, mem, false)
}

func (d *dataset) PutVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem arrbox.MemType) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	vv, err := d.model.Var(v)
	if err != nil {
		return err
	}
	shape, err := d.model.Shape(vv)
	if err != nil {
		return err
	}
	if len(vv.Dims) > 0 && len(start) > 0 {
		if dim, err := d.model.Dim(vv.Dims[0]); err == nil && dim.Unlimited {
			if want := start[0] + count[0]; want > dim.Len {
				dim.Len = want
				shape[0] = want
			}
		}
	}
	if err := d.ensure(vv, shape); err != nil {
		return err
	}
	if err := d.slab(vv, shape, start, count, data, mem, true); err != nil {
		return err
	}
	if d.share {
		return d.flush()
	}
	return nil
}

func (d *dataset) slab(vv *meta.Variable, shape, start, count []uint64, data []byte, mem arrbox.MemType, put bool) error {
	elem := d.model.TypeSize(vv.Type)
	arr := d.data[vv.ID]
	memElem := elem
	convert := false
	if mem != arrbox.MemNative {
		if !primitive(vv.Type) {
			return fmt.Errorf("ahf: variable %q: user-typed values take the native layout: %w", vv.Name, arrbox.ErrUnsupported)
		}
		memElem = mem.Size()
		convert = mem.Kind() != meta.Kind(vv.Type)
	}
	return wire.Hyperslab(shape, start, count, func(arrOff, bufOff, n uint64) error {
		stored := arr[arrOff*uint64(elem) : (arrOff+n)*uint64(elem)]
		user := data[bufOff*uint64(memElem) : (bufOff+n)*uint64(memElem)]
		switch {
		case !convert && put:
			copy(stored, user)
		case !convert:
			copy(user, stored)
		case put:
			return wire.Convert(stored, meta.Kind(vv.Type), user, mem.Kind())
		default:
			return wire.Convert(user, mem.Kind(), stored, meta.Kind(vv.Type))
		}
		return nil
	})
}

// ensure grows the variable's buffer to cover shape, filling fresh space
// according to the fill policy.
func (d *dataset) ensure(vv *meta.Variable, shape []uint64) error {
	need := wire.NumElements(shape) * uint64(d.model.TypeSize(vv.Type))
	buf := d.data[vv.ID]
	if uint64(len(buf)) >= need {
		return nil
	}
	grown := make([]byte, need)
	copy(grown, buf)
	if d.fillMode == arrbox.Fill {
		pattern := vv.Fill
		if len(pattern) == 0 && primitive(vv.Type) {
			pattern = wire.DefaultFill(meta.Kind(vv.Type))
		}
		if len(pattern) > 0 {
			wire.FillBytes(grown[len(buf):], pattern)
		}
	}
	d.data[vv.ID] = grown
	return nil
}

// Mode transitions and flushing. The enhanced codec has no define mode,
// so Redef and EndDef succeed without effect on a writable dataset.

func (d *dataset) Redef() error  { return d.checkWrite() }
func (d *dataset) EndDef() error { return d.checkWrite() }

func (d *dataset) Sync(context.Context) error {
	if err := d.checkWrite(); err != nil {
		return err
	}
	return d.flush()
}

func (d *dataset) Close(context.Context) error {
	if !d.writable {
		return nil
	}
	return d.flush()
}

func (d *dataset) Abort() error {
	if d.writable && !d.committed {
		return d.fs.Remove(d.path)
	}
	return nil
}

func (d *dataset) flush() error {
	buf := encodeFile(d.enc, d.model, d.data)
	if err := afero.WriteFile(d.fs, d.path, buf, 0o644); err != nil {
		return fmt.Errorf("ahf: flushing %s: %w", d.path, err)
	}
	d.committed = true
	return nil
}

// Optional capabilities.

func (d *dataset) ChunkShape(v meta.VarID) []uint64 {
	vv, err := d.model.Var(v)
	if err != nil {
		return nil
	}
	return vv.Chunks
}

func (d *dataset) Compression(meta.VarID) string { return "zstd" }

// Compile-time interface checks.
var (
	_ arrbox.Dataset    = (*dataset)(nil)
	_ arrbox.Chunker    = (*dataset)(nil)
	_ arrbox.Compressor = (*dataset)(nil)
)
