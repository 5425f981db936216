package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/arrtest"
	"github.com/nuln/arrbox/driver/cdf"
	"github.com/nuln/arrbox/meta"
)

// encodedDataset builds a small classic dataset and returns its bytes.
func encodedDataset(t *testing.T) []byte {
	t.Helper()
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	ds, err := cdf.CreateDataset(ctx, "src.cdf", &arrbox.Config{Fs: fs}, cdf.Options{})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	dim, err := ds.DefDim(meta.Root, "n", 3)
	if err != nil {
		t.Fatalf("DefDim: %v", err)
	}
	v, err := ds.DefVar(meta.Root, "x", meta.Int, []meta.DimID{dim})
	if err != nil {
		t.Fatalf("DefVar: %v", err)
	}
	if err := ds.EndDef(); err != nil {
		t.Fatalf("EndDef: %v", err)
	}
	if err := ds.PutVara(ctx, v, []uint64{0}, []uint64{3}, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}, arrbox.MemInt); err != nil {
		t.Fatalf("PutVara: %v", err)
	}
	if err := ds.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	buf, err := afero.ReadFile(fs, "src.cdf")
	if err != nil {
		t.Fatalf("reading encoded dataset: %v", err)
	}
	return buf
}

func TestOpenOverHTTP(t *testing.T) {
	arrtest.InitDrivers(t)
	ctx := context.Background()
	payload := encodedDataset(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	s, err := arrbox.Open(ctx, srv.URL+"/data.cdf", &arrbox.Config{Fs: fs})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close(ctx) }()

	if got := s.Format(); got != arrbox.FormatHTTP {
		t.Fatalf("routed to %s, want http", got)
	}

	vv, ok := s.Meta().Root().VarByName("x")
	if !ok {
		t.Fatal("variable x missing")
	}
	got := make([]byte, 3*4)
	if err := s.GetVara(ctx, vv.ID, []uint64{0}, []uint64{3}, got, arrbox.MemInt); err != nil {
		t.Fatalf("GetVara: %v", err)
	}
	if got[0] != 1 || got[4] != 2 || got[8] != 3 {
		t.Errorf("payload = %v", got)
	}

	// The delegate is wrapped read-only regardless of the inner codec.
	if _, err := s.DefDim(meta.Root, "extra", 1); !errors.Is(err, arrbox.ErrReadOnly) {
		t.Errorf("DefDim: got %v, want ErrReadOnly", err)
	}
	if err := s.SetBasePE(0); !errors.Is(err, arrbox.ErrClassicOnly) {
		t.Errorf("SetBasePE: got %v, want ErrClassicOnly", err)
	}
}

func TestFetchCache(t *testing.T) {
	arrtest.InitDrivers(t)
	ctx := context.Background()
	payload := encodedDataset(t)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(payload)
	}))

	fs := afero.NewMemMapFs()
	cfg := &arrbox.Config{Fs: fs, Options: map[string]any{"cache": ".cache"}}

	s, err := arrbox.Open(ctx, srv.URL+"/data.cdf", cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	_ = s.Close(ctx)
	if hits != 1 {
		t.Fatalf("origin hits after first open = %d, want 1", hits)
	}

	// The second open is served from the cache: the origin can be gone.
	url := srv.URL + "/data.cdf"
	srv.Close()
	s, err = arrbox.Open(ctx, url, cfg)
	if err != nil {
		t.Fatalf("cached Open: %v", err)
	}
	defer func() { _ = s.Close(ctx) }()
	if hits != 1 {
		t.Errorf("origin hits after cached open = %d, want 1", hits)
	}

	if f, ok := sessionFetcher(s); !ok || f != url {
		t.Errorf("origin = %q, %v; want %q", f, ok, url)
	}
}

func sessionFetcher(s *arrbox.Session) (string, bool) {
	if f, ok := s.Dataset().(arrbox.Fetcher); ok {
		return f.Origin(), true
	}
	return "", false
}

func TestOriginErrors(t *testing.T) {
	arrtest.InitDrivers(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := arrbox.Open(ctx, srv.URL+"/missing", &arrbox.Config{Fs: fs}); err == nil {
		t.Error("Open of 404 origin: expected error")
	}

	// Bytes that sniff as nothing are rejected after the fetch.
	junk := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a dataset"))
	}))
	defer junk.Close()
	_, err := arrbox.Open(ctx, junk.URL+"/junk", &arrbox.Config{Fs: fs})
	if !errors.Is(err, arrbox.ErrUnknownFormat) {
		t.Errorf("Open of junk: got %v, want ErrUnknownFormat", err)
	}
}
