package pcdf_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/arrtest"
)

// The parallel variant shares the classic codec; the suite runs against
// it to pin the routing path (parallel flag on create, explicit demand
// on open) and the concurrent flush.
func TestConformance(t *testing.T) {
	arrtest.InitDrivers(t)
	fs := afero.NewMemMapFs()

	arrtest.DatasetTestSuite(t, arrtest.Harness{
		StrictDefine: true,
		Create: func(t *testing.T, path string) *arrbox.Session {
			t.Helper()
			s, err := arrbox.Create(context.Background(), path, &arrbox.Config{
				Flags: arrbox.FlagParallel | arrbox.FlagOverwrite,
				Fs:    fs,
			})
			if err != nil {
				t.Fatalf("Create %s: %v", path, err)
			}
			if got := s.Format(); got != arrbox.FormatParallel {
				t.Fatalf("Create routed to %s, want pcdf", got)
			}
			return s
		},
		Open: func(t *testing.T, path string, write bool) *arrbox.Session {
			t.Helper()
			flags := arrbox.FlagParallel
			if write {
				flags |= arrbox.FlagWrite
			}
			// pcdf has no magic of its own: reopening as pcdf takes an
			// explicit demand, otherwise the file sniffs as plain cdf.
			s, err := arrbox.Open(context.Background(), path, &arrbox.Config{
				Format: arrbox.FormatParallel,
				Flags:  flags,
				Fs:     fs,
			})
			if err != nil {
				t.Fatalf("Open %s: %v", path, err)
			}
			return s
		},
	})
}

func TestParallelFileReopensAsClassic(t *testing.T) {
	arrtest.InitDrivers(t)
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	s, err := arrbox.Create(ctx, "p.cdf", &arrbox.Config{Flags: arrbox.FlagParallel, Fs: fs})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.EndDef(); err != nil {
		t.Fatalf("EndDef: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = arrbox.Open(ctx, "p.cdf", &arrbox.Config{Fs: fs})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Format(); got != arrbox.FormatClassic {
		t.Errorf("sniffed format = %s, want cdf", got)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
