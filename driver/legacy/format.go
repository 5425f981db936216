// Package legacy reads the retired flat array format. There is no write
// path: the format predates the current codecs and survives only so old
// archives stay readable.
package legacy

import (
	"fmt"

	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// Magic is the legacy format's file signature.
var Magic = []byte{'A', 'R', 'L', 0x01}

// The layout is a single flat section: dimensions, global attributes,
// variable headers with their attributes, then one payload per variable
// in header order. There is no version byte and no record dimension;
// the format was frozen before either existed.

func decode(buf []byte) (*meta.Model, map[meta.VarID][]byte, error) {
	r := wire.NewReader(buf)
	if string(r.Raw(len(Magic))) != string(Magic) {
		return nil, nil, fmt.Errorf("legacy: bad magic: %w", meta.ErrBadRef)
	}

	model := meta.New()

	ndims := r.Uvarint()
	dimIDs := make([]meta.DimID, 0, ndims)
	for i := uint64(0); i < ndims; i++ {
		name := r.String()
		length := r.U64()
		if r.Err() != nil {
			return nil, nil, r.Err()
		}
		d, err := model.AddDim(meta.Root, name, length)
		if err != nil {
			return nil, nil, fmt.Errorf("legacy: dimension %q: %w", name, err)
		}
		dimIDs = append(dimIDs, d.ID)
	}

	if err := decodeAttrs(r, model, meta.Global); err != nil {
		return nil, nil, err
	}

	nvars := r.Uvarint()
	varIDs := make([]meta.VarID, 0, nvars)
	for i := uint64(0); i < nvars; i++ {
		name := r.String()
		typ := meta.TypeID(r.U8())
		rank := r.Uvarint()
		dims := make([]meta.DimID, rank)
		for j := range dims {
			idx := r.Uvarint()
			if idx >= uint64(len(dimIDs)) {
				return nil, nil, fmt.Errorf("legacy: variable %q references dimension %d of %d", name, idx, len(dimIDs))
			}
			dims[j] = dimIDs[idx]
		}
		if r.Err() != nil {
			return nil, nil, r.Err()
		}
		v, err := model.AddVar(meta.Root, name, typ, dims)
		if err != nil {
			return nil, nil, fmt.Errorf("legacy: variable %q: %w", name, err)
		}
		if err := decodeAttrs(r, model, v.ID); err != nil {
			return nil, nil, err
		}
		varIDs = append(varIDs, v.ID)
	}

	data := make(map[meta.VarID][]byte, len(varIDs))
	for _, id := range varIDs {
		data[id] = append([]byte(nil), r.Blob()...)
	}
	if err := r.Err(); err != nil {
		return nil, nil, fmt.Errorf("legacy: %w", err)
	}
	return model, data, nil
}

func decodeAttrs(r *wire.Reader, model *meta.Model, target meta.VarID) error {
	n := r.Uvarint()
	for i := uint64(0); i < n; i++ {
		att := meta.Attribute{
			Name:   r.String(),
			Type:   meta.TypeID(r.U8()),
			Nelems: int(r.Uvarint()),
			Data:   append([]byte(nil), r.Blob()...),
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("legacy: attributes: %w", err)
		}
		if err := model.SetAttr(meta.Root, target, att); err != nil {
			return fmt.Errorf("legacy: attribute %q: %w", att.Name, err)
		}
	}
	return nil
}
