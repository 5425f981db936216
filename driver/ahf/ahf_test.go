package ahf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/arrtest"
	"github.com/nuln/arrbox/meta"
)

func create(t *testing.T, fs afero.Fs, path string) *arrbox.Session {
	t.Helper()
	s, err := arrbox.Create(context.Background(), path, &arrbox.Config{
		Flags: arrbox.FlagEnhanced | arrbox.FlagOverwrite,
		Fs:    fs,
	})
	if err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
	return s
}

func TestUserTypesRoundTrip(t *testing.T) {
	arrtest.InitDrivers(t)
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	s := create(t, fs, "types.ahf")
	level, err := s.DefType(meta.Root, meta.TypeDef{
		Name:  "level",
		Class: meta.ClassEnum,
		Base:  meta.Int,
		Members: []meta.EnumMember{
			{Name: "low", Value: 0},
			{Name: "high", Value: 1},
		},
	})
	if err != nil {
		t.Fatalf("DefType enum: %v", err)
	}
	point, err := s.DefType(meta.Root, meta.TypeDef{
		Name:  "point",
		Class: meta.ClassCompound,
		Size:  16,
		Fields: []meta.Field{
			{Name: "x", Type: meta.Double, Offset: 0},
			{Name: "y", Type: meta.Double, Offset: 8},
		},
	})
	if err != nil {
		t.Fatalf("DefType compound: %v", err)
	}

	n, _ := s.DefDim(meta.Root, "n", 2)
	lv, err := s.DefVar(meta.Root, "lv", level, []meta.DimID{n})
	if err != nil {
		t.Fatalf("DefVar enum-typed: %v", err)
	}
	// Enum values travel in the base type's layout, native only.
	if err := s.PutVara(ctx, lv, []uint64{0}, []uint64{2}, []byte{1, 0, 0, 0, 0, 0, 0, 0}, arrbox.MemNative); err != nil {
		t.Fatalf("PutVara enum: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := arrbox.Open(ctx, "types.ahf", &arrbox.Config{Fs: fs})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s2.Close(ctx) }()

	tt, err := s2.Meta().Type(level)
	if err != nil {
		t.Fatalf("Type(level): %v", err)
	}
	if tt.Class != meta.ClassEnum || len(tt.Members) != 2 || tt.Members[1].Name != "high" {
		t.Errorf("enum survived as %+v", tt)
	}
	pt, err := s2.Meta().Type(point)
	if err != nil {
		t.Fatalf("Type(point): %v", err)
	}
	if pt.Class != meta.ClassCompound || pt.Size != 16 || len(pt.Fields) != 2 {
		t.Errorf("compound survived as %+v", pt)
	}

	got := make([]byte, 8)
	if err := s2.GetVara(ctx, lv, []uint64{0}, []uint64{2}, got, arrbox.MemNative); err != nil {
		t.Fatalf("GetVara enum: %v", err)
	}
	if got[0] != 1 || got[4] != 0 {
		t.Errorf("enum payload = %v", got)
	}
}

func TestVarLenElementTypeRejected(t *testing.T) {
	arrtest.InitDrivers(t)
	fs := afero.NewMemMapFs()

	s := create(t, fs, "vlen.ahf")
	defer func() { _ = s.Abort() }()

	vl, err := s.DefType(meta.Root, meta.TypeDef{
		Name:  "samples",
		Class: meta.ClassVarLen,
		Base:  meta.Double,
	})
	if err != nil {
		t.Fatalf("DefType vlen: %v", err)
	}
	n, _ := s.DefDim(meta.Root, "n", 2)
	if _, err := s.DefVar(meta.Root, "bad", vl, []meta.DimID{n}); !errors.Is(err, arrbox.ErrUnsupported) {
		t.Errorf("DefVar vlen-typed: got %v, want ErrUnsupported", err)
	}
	if _, err := s.DefVar(meta.Root, "worse", meta.String, []meta.DimID{n}); !errors.Is(err, arrbox.ErrUnsupported) {
		t.Errorf("DefVar string-typed: got %v, want ErrUnsupported", err)
	}
}

func TestChunkAndCompressionCapabilities(t *testing.T) {
	arrtest.InitDrivers(t)
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	s := create(t, fs, "caps.ahf")
	defer func() { _ = s.Close(ctx) }()

	rec, _ := s.DefDim(meta.Root, "t", meta.Unlimited)
	col, _ := s.DefDim(meta.Root, "c", 5)
	v, err := s.DefVar(meta.Root, "x", meta.Float, []meta.DimID{rec, col})
	if err != nil {
		t.Fatalf("DefVar: %v", err)
	}

	ch, ok := s.Dataset().(arrbox.Chunker)
	if !ok {
		t.Fatal("dataset does not expose Chunker")
	}
	chunks := ch.ChunkShape(v)
	if len(chunks) != 2 || chunks[0] != 1 || chunks[1] != 5 {
		t.Errorf("chunk shape = %v, want [1 5]", chunks)
	}

	comp, ok := s.Dataset().(arrbox.Compressor)
	if !ok {
		t.Fatal("dataset does not expose Compressor")
	}
	if comp.Compression(v) != "zstd" {
		t.Errorf("compression = %q, want zstd", comp.Compression(v))
	}

	if err := s.SetChunkCache(1<<20, 512, 0.75); err != nil {
		t.Errorf("SetChunkCache: %v", err)
	}
	if err := s.SetChunkCache(-1, 0, 0); !errors.Is(err, arrbox.ErrInvalid) {
		t.Errorf("SetChunkCache negative: got %v, want ErrInvalid", err)
	}
}
