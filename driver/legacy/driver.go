package legacy

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// Driver serves the legacy format read-only.
type Driver struct{}

// New returns the legacy-format driver.
func New() *Driver { return &Driver{} }

func (*Driver) Format() arrbox.FormatTag { return arrbox.FormatLegacy }

func (*Driver) Info() arrbox.DriverInfo {
	return arrbox.DriverInfo{
		Name:     "legacy",
		Magic:    Magic,
		ReadOnly: true,
	}
}

func (*Driver) Init() error     { return nil }
func (*Driver) Shutdown() error { return nil }

func (*Driver) Create(context.Context, string, *arrbox.Config) (arrbox.Dataset, error) {
	return nil, fmt.Errorf("legacy: %w", arrbox.ErrReadOnly)
}

func (*Driver) Open(_ context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	buf, err := afero.ReadFile(cfg.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("legacy: %s: %w", path, arrbox.ErrNotFound)
		}
		return nil, err
	}
	model, data, err := decode(buf)
	if err != nil {
		return nil, err
	}
	return &dataset{model: model, data: data}, nil
}

// dataset serves reads from the decoded image. Everything mutating is
// bound to the read-only stub family.
type dataset struct {
	arrbox.ReadOnly
	arrbox.UnsupportedClassic

	model *meta.Model
	data  map[meta.VarID][]byte
}

func (d *dataset) Meta() *meta.Model { return d.model }

func (d *dataset) Close(context.Context) error { return nil }
func (d *dataset) Abort() error                { return nil }

func (d *dataset) GetAttr(grp meta.GrpID, v meta.VarID, name string, mem arrbox.MemType) ([]byte, error) {
	if grp != meta.Root {
		return nil, arrbox.ErrNotEnhanced
	}
	att, err := findAttr(d.model, grp, v, name)
	if err != nil {
		return nil, err
	}
	if mem == arrbox.MemNative {
		return append([]byte(nil), att.Data...), nil
	}
	out := make([]byte, att.Nelems*mem.Size())
	if err := wire.Convert(out, mem.Kind(), att.Data, meta.Kind(att.Type)); err != nil {
		return nil, fmt.Errorf("legacy: attribute %q: %w", name, err)
	}
	return out, nil
}

func (d *dataset) GetVara(_ context.Context, v meta.VarID, start, count []uint64, data []byte, mem arrbox.MemType) error {
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
	arr := d.data[v]
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

func findAttr(model *meta.Model, grp meta.GrpID, v meta.VarID, name string) (*meta.Attribute, error) {
	if v == meta.Global {
		g, err := model.Group(grp)
		if err != nil {
			return nil, err
		}
		if att, ok := g.Attr(name); ok {
			return att, nil
		}
		return nil, fmt.Errorf("legacy: attribute %q: %w", name, arrbox.ErrNotFound)
	}
	vv, err := model.Var(v)
	if err != nil {
		return nil, err
	}
	if att, ok := vv.Attr(name); ok {
		return att, nil
	}
	return nil, fmt.Errorf("legacy: attribute %q: %w", name, arrbox.ErrNotFound)
}

// Compile-time interface checks.
var (
	_ arrbox.Driver  = (*Driver)(nil)
	_ arrbox.Dataset = (*dataset)(nil)
)
