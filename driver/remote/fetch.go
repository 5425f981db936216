// Package remote serves datasets that live behind a network protocol:
// plain HTTP(S) origins and any rclone-supported remote. The object is
// fetched whole, sniffed, and handed to the matching local codec; the
// resulting dataset is read-only.
package remote

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	rclonefs "github.com/rclone/rclone/fs"
	"github.com/spf13/afero"
)

// cachePath spreads cached downloads over a two-level fan-out keyed by
// the origin's digest, so a large cache directory stays listable.
func cachePath(origin string) string {
	sum := fmt.Sprintf("%x", sha256.Sum256([]byte(origin)))
	return filepath.Join(sum[0:2], sum[2:4], sum)
}

// fetchHTTP downloads an http(s) origin.
func fetchHTTP(ctx context.Context, origin string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: fetching %s: %w", origin, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: fetching %s: %s", origin, resp.Status)
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: fetching %s: %w", origin, err)
	}
	return buf, nil
}

// fetchRclone downloads an object in "remote:path" form through rclone.
func fetchRclone(ctx context.Context, origin string) ([]byte, error) {
	colon := strings.IndexByte(origin, ':')
	if colon <= 0 {
		return nil, fmt.Errorf("remote: %q is not a remote:path origin", origin)
	}
	remote, p := origin[:colon], origin[colon+1:]
	dir, base := path.Split(p)

	f, err := rclonefs.NewFs(ctx, remote+":"+dir)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", origin, err)
	}
	obj, err := f.NewObject(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", origin, err)
	}
	rc, err := obj.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", origin, err)
	}
	defer func() { _ = rc.Close() }()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", origin, err)
	}
	return buf, nil
}

// cacheGet and cachePut move fetched payloads through the cache
// directory on the configured filesystem, when one is set.
func cacheGet(fs afero.Fs, dir, origin string) ([]byte, bool) {
	if dir == "" {
		return nil, false
	}
	buf, err := afero.ReadFile(fs, filepath.Join(dir, cachePath(origin)))
	if err != nil {
		return nil, false
	}
	return buf, true
}

func cachePut(fs afero.Fs, dir, origin string, buf []byte) {
	if dir == "" {
		return
	}
	p := filepath.Join(dir, cachePath(origin))
	if err := fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return
	}
	// Cache writes are best effort; a failure only costs a refetch.
	_ = afero.WriteFile(fs, p, buf, 0o644)
}
