package remote

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/driver/ahf"
	"github.com/nuln/arrbox/driver/cdf"
	"github.com/nuln/arrbox/driver/legacy"
	"github.com/nuln/arrbox/meta"
)

// Driver fetches a remote object and delegates to the local codec its
// bytes sniff as. One instance serves the http/https schemes, another
// the rclone remote:path form; both share the fetch-then-delegate path.
type Driver struct {
	tag     arrbox.FormatTag
	name    string
	schemes []string
	fetch   func(ctx context.Context, origin string) ([]byte, error)

	ahf *ahf.Driver
}

// NewHTTP returns the driver for http(s) origins.
func NewHTTP() *Driver {
	return &Driver{
		tag:     arrbox.FormatHTTP,
		name:    "http",
		schemes: []string{"http", "https"},
		fetch:   fetchHTTP,
	}
}

// NewCloud returns the driver for rclone remote:path origins.
func NewCloud() *Driver {
	return &Driver{
		tag:     arrbox.FormatCloud,
		name:    "cloud",
		schemes: []string{"remote"},
		fetch:   fetchRclone,
	}
}

func (d *Driver) Format() arrbox.FormatTag { return d.tag }

func (d *Driver) Info() arrbox.DriverInfo {
	return arrbox.DriverInfo{
		Name:     d.name,
		Schemes:  d.schemes,
		ReadOnly: true,
	}
}

// Init brings up the delegate enhanced codec; the classic and legacy
// codecs need no lifecycle of their own.
func (d *Driver) Init() error {
	d.ahf = ahf.New()
	return d.ahf.Init()
}

func (d *Driver) Shutdown() error {
	if d.ahf == nil {
		return nil
	}
	err := d.ahf.Shutdown()
	d.ahf = nil
	return err
}

func (d *Driver) Create(context.Context, string, *arrbox.Config) (arrbox.Dataset, error) {
	return nil, fmt.Errorf("remote: %w", arrbox.ErrReadOnly)
}

func (d *Driver) Open(ctx context.Context, origin string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	if d.ahf == nil {
		return nil, arrbox.ErrNotReady
	}
	cacheDir, _ := cfg.StringOption("cache")

	buf, cached := cacheGet(cfg.Fs, cacheDir, origin)
	if !cached {
		var err error
		buf, err = d.fetch(ctx, origin)
		if err != nil {
			return nil, err
		}
		cachePut(cfg.Fs, cacheDir, origin, buf)
	}
	cfg.Logger.Debug("remote: fetched", "origin", origin, "bytes", len(buf), "cached", cached)

	inner, err := d.delegate(ctx, origin, buf, cfg)
	if err != nil {
		return nil, err
	}
	return &dataset{inner: inner, origin: origin}, nil
}

// delegate stages the payload on a private memory filesystem and opens
// it with the codec its magic selects.
func (d *Driver) delegate(ctx context.Context, origin string, buf []byte, cfg *arrbox.Config) (arrbox.Dataset, error) {
	staged := *cfg
	staged.Fs = afero.NewMemMapFs()
	staged.Flags &^= arrbox.FlagWrite
	const stagePath = "fetched"
	if err := afero.WriteFile(staged.Fs, stagePath, buf, 0o644); err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(buf, ahf.Magic):
		return d.ahf.Open(ctx, stagePath, &staged)
	case bytes.HasPrefix(buf, cdf.Magic):
		return cdf.OpenDataset(ctx, stagePath, &staged, cdf.Options{})
	case bytes.HasPrefix(buf, legacy.Magic):
		return legacy.New().Open(ctx, stagePath, &staged)
	default:
		return nil, fmt.Errorf("remote: %s: %w", origin, arrbox.ErrUnknownFormat)
	}
}

// dataset wraps the delegate read-only: reads forward, every mutator is
// bound to the read-only stub family.
type dataset struct {
	arrbox.ReadOnly
	arrbox.UnsupportedClassic

	inner  arrbox.Dataset
	origin string
}

func (d *dataset) Meta() *meta.Model { return d.inner.Meta() }

func (d *dataset) Close(ctx context.Context) error { return d.inner.Close(ctx) }
func (d *dataset) Abort() error                    { return d.inner.Abort() }

func (d *dataset) GetAttr(grp meta.GrpID, v meta.VarID, name string, mem arrbox.MemType) ([]byte, error) {
	return d.inner.GetAttr(grp, v, name, mem)
}

func (d *dataset) GetVara(ctx context.Context, v meta.VarID, start, count []uint64, data []byte, mem arrbox.MemType) error {
	return d.inner.GetVara(ctx, v, start, count, data, mem)
}

// Origin reports where the data was fetched from.
func (d *dataset) Origin() string { return d.origin }

// Compile-time interface checks.
var (
	_ arrbox.Driver  = (*Driver)(nil)
	_ arrbox.Dataset = (*dataset)(nil)
	_ arrbox.Fetcher = (*dataset)(nil)
)
