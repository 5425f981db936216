package cdf

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// Options tune codec behavior beyond what Config carries. The parallel
// driver reuses this codec with Parallel set.
type Options struct {
	// Parallel splits the flush into concurrent section writes.
	Parallel bool
}

// dataset is the classic-format Dataset. All variable data lives in
// memory in declared layout; the file is rewritten as a whole on flush.
type dataset struct {
	arrbox.UnsupportedEnhanced

	fs   afero.Fs
	path string
	opts Options

	model *meta.Model
	data  map[meta.VarID][]byte

	defineMode bool
	writable   bool
	committed  bool
	fillMode   arrbox.FillMode
	basePE     int
	share      bool
}

func (d *dataset) Meta() *meta.Model { return d.model }

// Classic model constraints shared by the schema-definition entry points.

func (d *dataset) checkDefine(grp meta.GrpID) error {
	if grp != meta.Root {
		return arrbox.ErrNotEnhanced
	}
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if !d.defineMode {
		return arrbox.ErrNotInDefine
	}
	return nil
}

func classicType(typ meta.TypeID) error {
	if typ < meta.Byte || typ > meta.Char {
		return fmt.Errorf("cdf: type %d: %w", typ, arrbox.ErrNotEnhanced)
	}
	return nil
}

func (d *dataset) DefDim(grp meta.GrpID, name string, length uint64) (meta.DimID, error) {
	if err := d.checkDefine(grp); err != nil {
		return 0, err
	}
	if length == meta.Unlimited && d.model.UnlimDim() != nil {
		return 0, fmt.Errorf("cdf: only one unlimited dimension: %w", arrbox.ErrUnsupported)
	}
	dim, err := d.model.AddDim(grp, name, length)
	if err != nil {
		return 0, err
	}
	return dim.ID, nil
}

func (d *dataset) DefVar(grp meta.GrpID, name string, typ meta.TypeID, dims []meta.DimID) (meta.VarID, error) {
	if err := d.checkDefine(grp); err != nil {
		return 0, err
	}
	if err := classicType(typ); err != nil {
		return 0, err
	}
	// The record dimension may only be the outermost one.
	for i, id := range dims {
		dim, err := d.model.Dim(id)
		if err != nil {
			return 0, err
		}
		if dim.Unlimited && i != 0 {
			return 0, fmt.Errorf("cdf: unlimited dimension must come first: %w", arrbox.ErrUnsupported)
		}
	}
	v, err := d.model.AddVar(grp, name, typ, dims)
	if err != nil {
		return 0, err
	}
	return v.ID, nil
}

func (d *dataset) RenameDim(id meta.DimID, name string) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	return d.model.RenameDim(id, name)
}

func (d *dataset) RenameVar(id meta.VarID, name string) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	return d.model.RenameVar(id, name)
}

func (d *dataset) RenameAttr(grp meta.GrpID, v meta.VarID, old, new string) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if grp != meta.Root {
		return arrbox.ErrNotEnhanced
	}
	return d.model.RenameAttr(grp, v, old, new)
}

func (d *dataset) SetFill(mode arrbox.FillMode) (arrbox.FillMode, error) {
	if !d.writable {
		return d.fillMode, arrbox.ErrReadOnly
	}
	old := d.fillMode
	d.fillMode = mode
	return old, nil
}

func (d *dataset) SetBasePE(pe int) error {
	if pe < 0 {
		return arrbox.ErrInvalid
	}
	d.basePE = pe
	return nil
}

func (d *dataset) BasePE() (int, error) { return d.basePE, nil }

// Attributes are convertible in both modes; the declared type must be a
// classic primitive.

func (d *dataset) PutAttr(grp meta.GrpID, v meta.VarID, name string, typ meta.TypeID, nelems int, data []byte, mem arrbox.MemType) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if grp != meta.Root {
		return arrbox.ErrNotEnhanced
	}
	if err := classicType(typ); err != nil {
		return err
	}
	dk := meta.Kind(typ)
	stored := make([]byte, nelems*dk.Size())
	if mem == arrbox.MemNative {
		if len(data) != len(stored) {
			return fmt.Errorf("cdf: attribute %q: %d bytes for %d elements: %w", name, len(data), nelems, arrbox.ErrShape)
		}
		copy(stored, data)
	} else if err := wire.Convert(stored, dk, data, mem.Kind()); err != nil {
		return fmt.Errorf("cdf: attribute %q: %w", name, err)
	}
	return d.model.SetAttr(grp, v, meta.Attribute{Name: name, Type: typ, Nelems: nelems, Data: stored})
}

func (d *dataset) GetAttr(grp meta.GrpID, v meta.VarID, name string, mem arrbox.MemType) ([]byte, error) {
	if grp != meta.Root {
		return nil, arrbox.ErrNotEnhanced
	}
	att, err := findAttr(d.model, grp, v, name)
	if err != nil {
		return nil, err
	}
	dk := meta.Kind(att.Type)
	if mem == arrbox.MemNative {
		return append([]byte(nil), att.Data...), nil
	}
	out := make([]byte, att.Nelems*mem.Size())
	if err := wire.Convert(out, mem.Kind(), att.Data, dk); err != nil {
		return nil, fmt.Errorf("cdf: attribute %q: %w", name, err)
	}
	return out, nil
}

func (d *dataset) DelAttr(grp meta.GrpID, v meta.VarID, name string) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if grp != meta.Root {
		return arrbox.ErrNotEnhanced
	}
	return d.model.DelAttr(grp, v, name)
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
		return nil, fmt.Errorf("cdf: attribute %q: %w", name, arrbox.ErrNotFound)
	}
	vv, err := model.Var(v)
	if err != nil {
		return nil, err
	}
	if att, ok := vv.Attr(name); ok {
		return att, nil
	}
	return nil, fmt.Errorf("cdf: attribute %q: %w", name, arrbox.ErrNotFound)
}

// Array access. The record dimension grows on writes past the current
// number of records; every record variable grows together.

func (d *dataset) GetVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem arrbox.MemType) error {
	if d.defineMode {
		return arrbox.ErrInDefine
	}
	vv, err := d.model.Var(v)
	if err != nil {
		return err
	}
	shape, err := d.model.Shape(vv)
	if err != nil {
		return err
	}
	dk := meta.Kind(vv.Type)
	elem := dk.Size()
	arr := d.ensure(vv, shape)
	memElem := elem
	mk := dk
	if mem != arrbox.MemNative {
		mk = mem.Kind()
		memElem = mem.Size()
	}
	return wire.Hyperslab(shape, start, count, func(arrOff, bufOff, n uint64) error {
		src := arr[arrOff*uint64(elem) : (arrOff+n)*uint64(elem)]
		dst := data[bufOff*uint64(memElem) : (bufOff+n)*uint64(memElem)]
		if mk == dk {
			copy(dst, src)
			return nil
		}
		return wire.Convert(dst, mk, src, dk)
	})
}

func (d *dataset) PutVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem arrbox.MemType) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if d.defineMode {
		return arrbox.ErrInDefine
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
				if err := d.growRecords(want); err != nil {
					return err
				}
				shape[0] = want
			}
		}
	}
	dk := meta.Kind(vv.Type)
	elem := dk.Size()
	arr := d.ensure(vv, shape)
	memElem := elem
	mk := dk
	if mem != arrbox.MemNative {
		mk = mem.Kind()
		memElem = mem.Size()
	}
	err = wire.Hyperslab(shape, start, count, func(arrOff, bufOff, n uint64) error {
		dst := arr[arrOff*uint64(elem) : (arrOff+n)*uint64(elem)]
		src := data[bufOff*uint64(memElem) : (bufOff+n)*uint64(memElem)]
		if mk == dk {
			copy(dst, src)
			return nil
		}
		return wire.Convert(dst, dk, src, mk)
	})
	if err != nil {
		return err
	}
	if d.share {
		return d.flush()
	}
	return nil
}

// growRecords extends every record variable to nrecs records, filling
// the new space according to the fill policy.
func (d *dataset) growRecords(nrecs uint64) error {
	unlim := d.model.UnlimDim()
	if unlim == nil {
		return fmt.Errorf("cdf: no record dimension: %w", arrbox.ErrInvalid)
	}
	for _, vv := range d.model.Root().Vars {
		if len(vv.Dims) == 0 || vv.Dims[0] != unlim.ID {
			continue
		}
		shape, err := d.model.Shape(vv)
		if err != nil {
			return err
		}
		recSize := uint64(meta.Kind(vv.Type).Size())
		for _, n := range shape[1:] {
			recSize *= n
		}
		need := nrecs * recSize
		buf := d.data[vv.ID]
		if uint64(len(buf)) >= need {
			continue
		}
		grown := make([]byte, need)
		copy(grown, buf)
		if d.fillMode == arrbox.Fill {
			wire.FillBytes(grown[len(buf):], d.fillPattern(vv))
		}
		d.data[vv.ID] = grown
	}
	unlim.Len = nrecs
	return nil
}

// ensure returns the variable's buffer grown to cover shape. A record
// variable defined through Redef after records exist starts empty and
// lags behind the record dimension until first touched; the fresh space
// takes the fill policy.
func (d *dataset) ensure(vv *meta.Variable, shape []uint64) []byte {
	need := wire.NumElements(shape) * uint64(meta.Kind(vv.Type).Size())
	buf := d.data[vv.ID]
	if uint64(len(buf)) >= need {
		return buf
	}
	grown := make([]byte, need)
	copy(grown, buf)
	if d.fillMode == arrbox.Fill {
		wire.FillBytes(grown[len(buf):], d.fillPattern(vv))
	}
	d.data[vv.ID] = grown
	return grown
}

func (d *dataset) fillPattern(vv *meta.Variable) []byte {
	if len(vv.Fill) > 0 {
		return vv.Fill
	}
	return wire.DefaultFill(meta.Kind(vv.Type))
}

// Mode transitions and flushing.

func (d *dataset) Redef() error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if d.defineMode {
		return arrbox.ErrInDefine
	}
	d.defineMode = true
	return nil
}

func (d *dataset) EndDef() error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if !d.defineMode {
		return arrbox.ErrNotInDefine
	}
	d.allocate()
	d.defineMode = false
	return d.flush()
}

// allocate sizes the buffer of every fixed-shape variable defined since
// the last EndDef, applying the fill policy to fresh space.
func (d *dataset) allocate() {
	for _, vv := range d.model.Root().Vars {
		if _, ok := d.data[vv.ID]; ok {
			continue
		}
		shape, err := d.model.Shape(vv)
		if err != nil {
			continue
		}
		if len(vv.Dims) > 0 {
			if dim, err := d.model.Dim(vv.Dims[0]); err == nil && dim.Unlimited {
				d.data[vv.ID] = nil
				continue
			}
		}
		size := wire.NumElements(shape) * uint64(meta.Kind(vv.Type).Size())
		buf := make([]byte, size)
		if d.fillMode == arrbox.Fill {
			wire.FillBytes(buf, d.fillPattern(vv))
		}
		d.data[vv.ID] = buf
	}
}

func (d *dataset) Sync(context.Context) error {
	if !d.writable {
		return arrbox.ErrReadOnly
	}
	if d.defineMode {
		return arrbox.ErrInDefine
	}
	return d.flush()
}

func (d *dataset) Close(context.Context) error {
	if !d.writable {
		return nil
	}
	if d.defineMode {
		// An implicit EndDef, matching what callers expect from a
		// close right after definition.
		d.allocate()
		d.defineMode = false
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
	buf := encode(d.model, d.data)
	if err := d.write(buf); err != nil {
		return fmt.Errorf("cdf: flushing %s: %w", d.path, err)
	}
	d.committed = true
	return nil
}

// write stores the encoded image. With Options.Parallel the image is
// written as concurrent fixed-size sections, which is where a parallel
// filesystem gets its aggregate bandwidth from.
func (d *dataset) write(buf []byte) error {
	if !d.opts.Parallel || len(buf) < parallelSection*2 {
		return afero.WriteFile(d.fs, d.path, buf, 0o644)
	}
	f, err := d.fs.OpenFile(d.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var g errgroup.Group
	for off := 0; off < len(buf); off += parallelSection {
		end := off + parallelSection
		if end > len(buf) {
			end = len(buf)
		}
		section := buf[off:end]
		at := int64(off)
		g.Go(func() error {
			_, err := f.WriteAt(section, at)
			return err
		})
	}
	return g.Wait()
}

const parallelSection = 1 << 20

// Compile-time interface check.
var _ arrbox.Dataset = (*dataset)(nil)
