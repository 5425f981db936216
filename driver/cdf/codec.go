// Package cdf implements the classic flat array format: one root group,
// shared dimensions, primitive-typed variables, at most one unlimited
// (record) dimension. The whole dataset is held in memory and flushed
// as a unit, so a flush is a single sequential write per section.
package cdf

import (
	"fmt"

	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// Magic is the classic format's file signature.
var Magic = []byte{'C', 'D', 'F', 0x01}

const codecVersion = 1

// encode serializes the schema and variable data. Variable ids are
// dense and allocated in definition order, so data blobs are written in
// id order and matched back up positionally on decode.
func encode(model *meta.Model, data map[meta.VarID][]byte) []byte {
	w := wire.NewWriter()
	w.Raw(Magic)
	w.U8(codecVersion)

	root := model.Root()
	if ud := model.UnlimDim(); ud != nil {
		w.U64(ud.Len)
	} else {
		w.U64(0)
	}

	w.Uvarint(uint64(len(root.Dims)))
	for _, d := range root.Dims {
		w.String(d.Name)
		if d.Unlimited {
			w.U64(meta.Unlimited)
		} else {
			w.U64(d.Len)
		}
	}

	encodeAttrs(w, root.Attrs)

	w.Uvarint(uint64(len(root.Vars)))
	for _, v := range root.Vars {
		w.String(v.Name)
		w.U8(uint8(v.Type))
		w.Uvarint(uint64(len(v.Dims)))
		for _, id := range v.Dims {
			w.Uvarint(uint64(id))
		}
		encodeAttrs(w, v.Attrs)
		w.Blob(v.Fill)
	}

	for _, v := range root.Vars {
		w.Blob(data[v.ID])
	}
	return w.Bytes()
}

func encodeAttrs(w *wire.Writer, attrs []*meta.Attribute) {
	w.Uvarint(uint64(len(attrs)))
	for _, a := range attrs {
		w.String(a.Name)
		w.U8(uint8(a.Type))
		w.Uvarint(uint64(a.Nelems))
		w.Blob(a.Data)
	}
}

// decode parses an encoded classic file back into a model and per-var
// data. The input must already have been routed here by its magic.
func decode(buf []byte) (*meta.Model, map[meta.VarID][]byte, error) {
	r := wire.NewReader(buf)
	if string(r.Raw(len(Magic))) != string(Magic) {
		return nil, nil, fmt.Errorf("cdf: bad magic: %w", meta.ErrBadRef)
	}
	if v := r.U8(); v != codecVersion {
		return nil, nil, fmt.Errorf("cdf: unsupported codec version %d", v)
	}

	model := meta.New()
	numrecs := r.U64()

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
			return nil, nil, fmt.Errorf("cdf: dimension %q: %w", name, err)
		}
		if d.Unlimited {
			d.Len = numrecs
		}
		dimIDs = append(dimIDs, d.ID)
	}

	if err := decodeAttrs(r, model, meta.Global); err != nil {
		return nil, nil, err
	}

	nvars := r.Uvarint()
	varIDs := make([]meta.VarID, 0, nvars)
	for i := uint64(0); i < nvars; i++ {
		vname := r.String()
		typ := meta.TypeID(r.U8())
		rank := r.Uvarint()
		dims := make([]meta.DimID, rank)
		for j := range dims {
			idx := r.Uvarint()
			if idx >= uint64(len(dimIDs)) {
				return nil, nil, fmt.Errorf("cdf: variable %q references dimension %d of %d", vname, idx, len(dimIDs))
			}
			dims[j] = dimIDs[idx]
		}
		if r.Err() != nil {
			return nil, nil, r.Err()
		}
		v, err := model.AddVar(meta.Root, vname, typ, dims)
		if err != nil {
			return nil, nil, fmt.Errorf("cdf: variable %q: %w", vname, err)
		}
		if err := decodeAttrs(r, model, v.ID); err != nil {
			return nil, nil, err
		}
		if fill := r.Blob(); len(fill) > 0 {
			v.Fill = append([]byte(nil), fill...)
		}
		varIDs = append(varIDs, v.ID)
	}

	data := make(map[meta.VarID][]byte, len(varIDs))
	for _, id := range varIDs {
		data[id] = append([]byte(nil), r.Blob()...)
	}
	if err := r.Err(); err != nil {
		return nil, nil, fmt.Errorf("cdf: %w", err)
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
			return fmt.Errorf("cdf: attributes: %w", err)
		}
		if err := model.SetAttr(meta.Root, target, att); err != nil {
			return fmt.Errorf("cdf: attribute %q: %w", att.Name, err)
		}
	}
	return nil
}
