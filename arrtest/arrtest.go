// Package arrtest is the conformance suite shared by the format drivers.
// A driver's tests describe how to create and reopen a dataset and the
// suite exercises the contract behavior every backend must share.
package arrtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/meta"
)

// Harness tells the suite how to reach one driver.
type Harness struct {
	// Create returns a writable session for a fresh dataset at path.
	Create func(t *testing.T, path string) *arrbox.Session

	// Open reopens path, writable when write is set.
	Open func(t *testing.T, path string, write bool) *arrbox.Session

	// StrictDefine marks codecs that separate define mode from data
	// mode. The suite then checks the mode transition rules too.
	StrictDefine bool

	// Groups marks codecs implementing the hierarchical model.
	Groups bool
}

// endDef leaves define mode where the codec has one.
func (h Harness) endDef(t *testing.T, s *arrbox.Session) {
	t.Helper()
	if !h.StrictDefine {
		return
	}
	if err := s.EndDef(); err != nil {
		t.Fatalf("EndDef: %v", err)
	}
}

// DatasetTestSuite runs the shared conformance tests. Call it from a
// driver's tests:
//
//	func TestConformance(t *testing.T) {
//	    arrtest.DatasetTestSuite(t, arrtest.Harness{...})
//	}
func DatasetTestSuite(t *testing.T, h Harness) { //nolint:gocyclo
	t.Helper()
	ctx := context.Background()

	t.Run("Schema_RoundTrip", func(t *testing.T) {
		s := h.Create(t, "schema.bin")
		x, err := s.DefDim(meta.Root, "x", 3)
		if err != nil {
			t.Fatalf("DefDim: %v", err)
		}
		y, err := s.DefDim(meta.Root, "y", 2)
		if err != nil {
			t.Fatalf("DefDim: %v", err)
		}
		v, err := s.DefVar(meta.Root, "grid", meta.Double, []meta.DimID{x, y})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}

		s = h.Open(t, "schema.bin", false)
		root := s.Meta().Root()
		if root.NDims() != 2 || root.NVars() != 1 {
			t.Fatalf("reopened: %d dims, %d vars, want 2, 1", root.NDims(), root.NVars())
		}
		vv, err := s.Meta().Var(v)
		if err != nil {
			t.Fatalf("Var: %v", err)
		}
		if vv.Name != "grid" || vv.Type != meta.Double || vv.Rank() != 2 {
			t.Errorf("variable = %q type %d rank %d, want grid/%d/2", vv.Name, vv.Type, vv.Rank(), meta.Double)
		}
		shape, err := s.Meta().Shape(vv)
		if err != nil {
			t.Fatalf("Shape: %v", err)
		}
		if shape[0] != 3 || shape[1] != 2 {
			t.Errorf("shape = %v, want [3 2]", shape)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close reopened: %v", err)
		}
	})

	t.Run("Record_Growth", func(t *testing.T) {
		s := h.Create(t, "records.bin")
		rec, err := s.DefDim(meta.Root, "time", meta.Unlimited)
		if err != nil {
			t.Fatalf("DefDim unlimited: %v", err)
		}
		col, err := s.DefDim(meta.Root, "col", 4)
		if err != nil {
			t.Fatalf("DefDim: %v", err)
		}
		v, err := s.DefVar(meta.Root, "obs", meta.Int, []meta.DimID{rec, col})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)

		row := i32s(1, 2, 3, 4)
		if err := s.PutVara(ctx, v, []uint64{0, 0}, []uint64{1, 4}, row, arrbox.MemInt); err != nil {
			t.Fatalf("PutVara: %v", err)
		}
		if d, _ := s.Meta().Dim(rec); d.Len != 1 {
			t.Errorf("record count = %d, want 1", d.Len)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}

		s = h.Open(t, "records.bin", false)
		if d, _ := s.Meta().Dim(rec); d.Len != 1 {
			t.Errorf("reopened record count = %d, want 1", d.Len)
		}
		got := make([]byte, len(row))
		if err := s.GetVara(ctx, v, []uint64{0, 0}, []uint64{1, 4}, got, arrbox.MemInt); err != nil {
			t.Fatalf("GetVara: %v", err)
		}
		if !bytes.Equal(got, row) {
			t.Errorf("read back %v, want %v", got, row)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("Hyperslab_IO", func(t *testing.T) {
		s := h.Create(t, "slab.bin")
		r, _ := s.DefDim(meta.Root, "r", 4)
		c, _ := s.DefDim(meta.Root, "c", 3)
		v, err := s.DefVar(meta.Root, "m", meta.Int, []meta.DimID{r, c})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)

		full := make([]int32, 12)
		for i := range full {
			full[i] = int32(i)
		}
		if err := s.PutVara(ctx, v, []uint64{0, 0}, []uint64{4, 3}, i32s(full...), arrbox.MemInt); err != nil {
			t.Fatalf("PutVara full: %v", err)
		}

		// Interior 2x2 slab starting at (1,1): rows {4,5} and {7,8}.
		got := make([]byte, 4*4)
		if err := s.GetVara(ctx, v, []uint64{1, 1}, []uint64{2, 2}, got, arrbox.MemInt); err != nil {
			t.Fatalf("GetVara slab: %v", err)
		}
		if want := i32s(4, 5, 7, 8); !bytes.Equal(got, want) {
			t.Errorf("slab = %v, want %v", got, want)
		}

		// A buffer of the wrong size never reaches the backend.
		err = s.GetVara(ctx, v, []uint64{0, 0}, []uint64{2, 2}, make([]byte, 7), arrbox.MemInt)
		if !errors.Is(err, arrbox.ErrShape) {
			t.Errorf("short buffer: got %v, want ErrShape", err)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("Strided_And_Mapped", func(t *testing.T) {
		s := h.Create(t, "strided.bin")
		d, _ := s.DefDim(meta.Root, "n", 8)
		v, err := s.DefVar(meta.Root, "seq", meta.Int, []meta.DimID{d})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)

		seq := make([]int32, 8)
		for i := range seq {
			seq[i] = int32(10 * i)
		}
		if err := s.PutVara(ctx, v, []uint64{0}, []uint64{8}, i32s(seq...), arrbox.MemInt); err != nil {
			t.Fatalf("PutVara: %v", err)
		}

		// Every second element.
		got := make([]byte, 4*4)
		if err := s.GetVars(ctx, v, []uint64{0}, []uint64{4}, []uint64{2}, got, arrbox.MemInt); err != nil {
			t.Fatalf("GetVars: %v", err)
		}
		if want := i32s(0, 20, 40, 60); !bytes.Equal(got, want) {
			t.Errorf("strided = %v, want %v", got, want)
		}

		// Unit stride must agree with the plain hyperslab read.
		a := make([]byte, 8*4)
		b := make([]byte, 8*4)
		if err := s.GetVara(ctx, v, []uint64{0}, []uint64{8}, a, arrbox.MemInt); err != nil {
			t.Fatalf("GetVara: %v", err)
		}
		if err := s.GetVars(ctx, v, []uint64{0}, []uint64{8}, []uint64{1}, b, arrbox.MemInt); err != nil {
			t.Fatalf("GetVars unit stride: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Error("unit-stride GetVars disagrees with GetVara")
		}

		// A packed identity imap must agree as well.
		c := make([]byte, 8*4)
		if err := s.GetVarm(ctx, v, []uint64{0}, []uint64{8}, nil, nil, c, arrbox.MemInt); err != nil {
			t.Fatalf("GetVarm: %v", err)
		}
		if !bytes.Equal(a, c) {
			t.Error("identity GetVarm disagrees with GetVara")
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("Attributes", func(t *testing.T) {
		s := h.Create(t, "attrs.bin")
		d, _ := s.DefDim(meta.Root, "n", 2)
		v, err := s.DefVar(meta.Root, "x", meta.Float, []meta.DimID{d})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}

		units := []byte("kelvin")
		if err := s.PutAttr(meta.Root, v, "units", meta.Char, len(units), units, arrbox.MemChar); err != nil {
			t.Fatalf("PutAttr units: %v", err)
		}
		title := []byte("conformance")
		if err := s.PutAttr(meta.Root, meta.Global, "title", meta.Char, len(title), title, arrbox.MemChar); err != nil {
			t.Fatalf("PutAttr global: %v", err)
		}
		// Declared double, supplied as int32: the backend converts.
		if err := s.PutAttr(meta.Root, v, "scale", meta.Double, 1, i32s(3), arrbox.MemInt); err != nil {
			t.Fatalf("PutAttr scale: %v", err)
		}
		h.endDef(t, s)
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}

		s = h.Open(t, "attrs.bin", true)
		got, err := s.GetAttr(meta.Root, v, "units", arrbox.MemChar)
		if err != nil {
			t.Fatalf("GetAttr units: %v", err)
		}
		if !bytes.Equal(got, units) {
			t.Errorf("units = %q, want %q", got, units)
		}
		scale, err := s.GetAttr(meta.Root, v, "scale", arrbox.MemDouble)
		if err != nil {
			t.Fatalf("GetAttr scale: %v", err)
		}
		if f := math.Float64frombits(binary.LittleEndian.Uint64(scale)); f != 3 {
			t.Errorf("scale = %v, want 3", f)
		}

		if err := s.RenameAttr(meta.Root, meta.Global, "title", "heading"); err != nil {
			t.Fatalf("RenameAttr: %v", err)
		}
		if _, err := s.GetAttr(meta.Root, meta.Global, "title", arrbox.MemChar); err == nil {
			t.Error("GetAttr old name after rename: expected error")
		}
		if err := s.DelAttr(meta.Root, v, "scale"); err != nil {
			t.Fatalf("DelAttr: %v", err)
		}
		if _, err := s.GetAttr(meta.Root, v, "scale", arrbox.MemDouble); err == nil {
			t.Error("GetAttr after DelAttr: expected error")
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("Fill_Values", func(t *testing.T) {
		s := h.Create(t, "fill.bin")
		rec, _ := s.DefDim(meta.Root, "t", meta.Unlimited)
		v, err := s.DefVar(meta.Root, "f", meta.Int, []meta.DimID{rec})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)

		// Writing record 2 grows the dimension; records 0 and 1 were
		// never written and must read as the default fill.
		if err := s.PutVara(ctx, v, []uint64{2}, []uint64{1}, i32s(7), arrbox.MemInt); err != nil {
			t.Fatalf("PutVara: %v", err)
		}
		got := make([]byte, 3*4)
		if err := s.GetVara(ctx, v, []uint64{0}, []uint64{3}, got, arrbox.MemInt); err != nil {
			t.Fatalf("GetVara: %v", err)
		}
		const fillInt = -0x7fffffff
		if want := i32s(fillInt, fillInt, 7); !bytes.Equal(got, want) {
			t.Errorf("records = %v, want %v", got, want)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("MemType_Conversion", func(t *testing.T) {
		s := h.Create(t, "conv.bin")
		d, _ := s.DefDim(meta.Root, "n", 3)
		v, err := s.DefVar(meta.Root, "temp", meta.Double, []meta.DimID{d})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)

		if err := s.PutVara(ctx, v, []uint64{0}, []uint64{3}, i32s(1, 2, 3), arrbox.MemInt); err != nil {
			t.Fatalf("PutVara int32: %v", err)
		}
		got := make([]byte, 3*8)
		if err := s.GetVara(ctx, v, []uint64{0}, []uint64{3}, got, arrbox.MemDouble); err != nil {
			t.Fatalf("GetVara double: %v", err)
		}
		for i, want := range []float64{1, 2, 3} {
			if f := math.Float64frombits(binary.LittleEndian.Uint64(got[i*8:])); f != want {
				t.Errorf("element %d = %v, want %v", i, f, want)
			}
		}

		// The legacy long width reaches the backend as int64.
		long := make([]byte, 3*8)
		if err := s.GetVara(ctx, v, []uint64{0}, []uint64{3}, long, arrbox.MemLong); err != nil {
			t.Fatalf("GetVara long: %v", err)
		}
		for i, want := range []int64{1, 2, 3} {
			if n := int64(binary.LittleEndian.Uint64(long[i*8:])); n != want {
				t.Errorf("long element %d = %v, want %v", i, n, want)
			}
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("ReadOnly_Enforcement", func(t *testing.T) {
		s := h.Create(t, "ro.bin")
		d, _ := s.DefDim(meta.Root, "n", 2)
		v, err := s.DefVar(meta.Root, "x", meta.Int, []meta.DimID{d})
		if err != nil {
			t.Fatalf("DefVar: %v", err)
		}
		h.endDef(t, s)
		if err := s.PutVara(ctx, v, []uint64{0}, []uint64{2}, i32s(1, 2), arrbox.MemInt); err != nil {
			t.Fatalf("PutVara: %v", err)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}

		s = h.Open(t, "ro.bin", false)
		before := s.Meta().Clone()

		if _, err := s.DefDim(meta.Root, "extra", 1); !errors.Is(err, arrbox.ErrReadOnly) {
			t.Errorf("DefDim: got %v, want ErrReadOnly", err)
		}
		if err := s.PutVara(ctx, v, []uint64{0}, []uint64{2}, i32s(9, 9), arrbox.MemInt); !errors.Is(err, arrbox.ErrReadOnly) {
			t.Errorf("PutVara: got %v, want ErrReadOnly", err)
		}
		if err := s.PutAttr(meta.Root, meta.Global, "a", meta.Char, 1, []byte("x"), arrbox.MemChar); !errors.Is(err, arrbox.ErrReadOnly) {
			t.Errorf("PutAttr: got %v, want ErrReadOnly", err)
		}
		if err := s.RenameVar(v, "renamed"); !errors.Is(err, arrbox.ErrReadOnly) {
			t.Errorf("RenameVar: got %v, want ErrReadOnly", err)
		}

		// The failed mutations must not have touched the model.
		after := s.Meta()
		if after.Root().NDims() != before.Root().NDims() ||
			after.Root().NVars() != before.Root().NVars() ||
			after.Root().NAtts() != before.Root().NAtts() {
			t.Error("rejected mutations changed the model")
		}
		if vv, _ := after.Var(v); vv.Name != "x" {
			t.Errorf("variable name = %q after rejected rename, want x", vv.Name)
		}

		// Reads still work.
		got := make([]byte, 2*4)
		if err := s.GetVara(ctx, v, []uint64{0}, []uint64{2}, got, arrbox.MemInt); err != nil {
			t.Fatalf("GetVara on read-only: %v", err)
		}
		if !bytes.Equal(got, i32s(1, 2)) {
			t.Errorf("read %v, want %v", got, i32s(1, 2))
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	t.Run("Abort_Discards", func(t *testing.T) {
		s := h.Create(t, "aborted.bin")
		if _, err := s.DefDim(meta.Root, "n", 2); err != nil {
			t.Fatalf("DefDim: %v", err)
		}
		if err := s.Abort(); err != nil {
			t.Fatalf("Abort: %v", err)
		}
		// A second operation on the released session fails.
		if _, err := s.DefDim(meta.Root, "m", 2); !errors.Is(err, arrbox.ErrClosed) {
			t.Errorf("after Abort: got %v, want ErrClosed", err)
		}
	})

	if h.StrictDefine {
		t.Run("Define_Mode_Rules", func(t *testing.T) {
			s := h.Create(t, "modes.bin")
			d, _ := s.DefDim(meta.Root, "n", 2)
			v, err := s.DefVar(meta.Root, "x", meta.Int, []meta.DimID{d})
			if err != nil {
				t.Fatalf("DefVar: %v", err)
			}

			// Data access is rejected until EndDef.
			err = s.PutVara(ctx, v, []uint64{0}, []uint64{2}, i32s(1, 2), arrbox.MemInt)
			if !errors.Is(err, arrbox.ErrInDefine) {
				t.Errorf("PutVara in define mode: got %v, want ErrInDefine", err)
			}
			if err := s.EndDef(); err != nil {
				t.Fatalf("EndDef: %v", err)
			}

			// Definition is rejected until Redef.
			if _, err := s.DefDim(meta.Root, "late", 1); !errors.Is(err, arrbox.ErrNotInDefine) {
				t.Errorf("DefDim in data mode: got %v, want ErrNotInDefine", err)
			}
			if err := s.Redef(); err != nil {
				t.Fatalf("Redef: %v", err)
			}
			if _, err := s.DefDim(meta.Root, "late", 1); err != nil {
				t.Errorf("DefDim after Redef: %v", err)
			}
			if err := s.EndDef(); err != nil {
				t.Fatalf("EndDef after Redef: %v", err)
			}
			if err := s.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}

	if h.Groups {
		t.Run("Groups", func(t *testing.T) {
			s := h.Create(t, "groups.bin")
			obs, err := s.DefGroup(meta.Root, "obs")
			if err != nil {
				t.Fatalf("DefGroup: %v", err)
			}
			daily, err := s.DefGroup(obs, "daily")
			if err != nil {
				t.Fatalf("DefGroup nested: %v", err)
			}
			// A dimension in the root is visible from the nested group.
			n, _ := s.DefDim(meta.Root, "n", 2)
			v, err := s.DefVar(daily, "x", meta.Int, []meta.DimID{n})
			if err != nil {
				t.Fatalf("DefVar in nested group: %v", err)
			}
			if err := s.PutAttr(daily, meta.Global, "note", meta.Char, 2, []byte("ok"), arrbox.MemChar); err != nil {
				t.Fatalf("PutAttr on group: %v", err)
			}
			if err := s.PutVara(ctx, v, []uint64{0}, []uint64{2}, i32s(5, 6), arrbox.MemInt); err != nil {
				t.Fatalf("PutVara: %v", err)
			}
			if err := s.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			s = h.Open(t, "groups.bin", false)
			g, err := s.Meta().GroupByFullName("/obs/daily")
			if err != nil {
				t.Fatalf("GroupByFullName: %v", err)
			}
			if g.FullName() != "/obs/daily" {
				t.Errorf("FullName = %q, want /obs/daily", g.FullName())
			}
			if _, ok := g.VarByName("x"); !ok {
				t.Error("variable x missing from reopened nested group")
			}
			note, err := s.GetAttr(g.ID, meta.Global, "note", arrbox.MemChar)
			if err != nil {
				t.Fatalf("GetAttr on group: %v", err)
			}
			if string(note) != "ok" {
				t.Errorf("note = %q, want ok", note)
			}
			got := make([]byte, 2*4)
			if err := s.GetVara(ctx, v, []uint64{0}, []uint64{2}, got, arrbox.MemInt); err != nil {
				t.Fatalf("GetVara: %v", err)
			}
			if !bytes.Equal(got, i32s(5, 6)) {
				t.Errorf("read %v, want %v", got, i32s(5, 6))
			}
			if err := s.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	} else {
		t.Run("Enhanced_Ops_Rejected", func(t *testing.T) {
			s := h.Create(t, "noenh.bin")
			if _, err := s.DefGroup(meta.Root, "g"); !errors.Is(err, arrbox.ErrNotEnhanced) {
				t.Errorf("DefGroup: got %v, want ErrNotEnhanced", err)
			}
			if err := s.SetChunkCache(1 << 20, 512, 0.75); !errors.Is(err, arrbox.ErrNotEnhanced) {
				t.Errorf("SetChunkCache: got %v, want ErrNotEnhanced", err)
			}
			if err := s.Abort(); err != nil {
				t.Fatalf("Abort: %v", err)
			}
		})
	}
}

// i32s packs int32 values little-endian, the layout MemInt declares.
func i32s(vals ...int32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, uint32(v))
	}
	return out
}
