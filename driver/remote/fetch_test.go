package remote

import (
	"context"
	"strings"
	"testing"
)

func TestCachePathFanOut(t *testing.T) {
	p := cachePath("https://example.com/a.cdf")
	parts := strings.Split(p, "/")
	if len(parts) != 3 {
		t.Fatalf("cachePath = %q, want two fan-out levels", p)
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		t.Errorf("fan-out segments = %q, %q, want 2 hex chars each", parts[0], parts[1])
	}
	if !strings.HasPrefix(parts[2], parts[0]+parts[1]) {
		t.Errorf("leaf %q does not start with %q%q", parts[2], parts[0], parts[1])
	}
	if p != cachePath("https://example.com/a.cdf") {
		t.Error("cachePath is not deterministic")
	}
	if p == cachePath("https://example.com/b.cdf") {
		t.Error("distinct origins share a cache path")
	}
}

func TestFetchRcloneRejectsBadOrigin(t *testing.T) {
	if _, err := fetchRclone(context.Background(), "no-colon-here"); err == nil {
		t.Error("expected error for origin without remote prefix")
	}
}
