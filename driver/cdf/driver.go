package cdf

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/meta"
)

// Driver serves the classic flat array format. It is the default create
// target when no format-selecting flag is present.
type Driver struct{}

// New returns the classic-format driver.
func New() *Driver { return &Driver{} }

func (*Driver) Format() arrbox.FormatTag { return arrbox.FormatClassic }

func (*Driver) Info() arrbox.DriverInfo {
	return arrbox.DriverInfo{
		Name:  "cdf",
		Magic: Magic,
	}
}

func (*Driver) Init() error     { return nil }
func (*Driver) Shutdown() error { return nil }

func (d *Driver) Create(ctx context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	return CreateDataset(ctx, path, cfg, Options{})
}

func (d *Driver) Open(ctx context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	return OpenDataset(ctx, path, cfg, Options{})
}

// CreateDataset makes a new classic dataset. It is exported so the
// parallel driver can reuse the codec with its own options.
func CreateDataset(_ context.Context, path string, cfg *arrbox.Config, opts Options) (arrbox.Dataset, error) {
	fs := cfg.Fs
	if cfg.Flags.Has(arrbox.FlagNoClobber) {
		if exists, err := afero.Exists(fs, path); err != nil {
			return nil, err
		} else if exists {
			return nil, fmt.Errorf("cdf: %s: %w", path, arrbox.ErrExist)
		}
	}
	// Claim the path now so a concurrent create fails fast and Abort
	// has something to remove.
	if err := afero.WriteFile(fs, path, Magic, 0o644); err != nil {
		return nil, err
	}
	return &dataset{
		fs:         fs,
		path:       path,
		opts:       opts,
		model:      meta.New(),
		data:       map[meta.VarID][]byte{},
		defineMode: true,
		writable:   true,
		fillMode:   arrbox.Fill,
		basePE:     cfg.BasePE,
		share:      cfg.Flags.Has(arrbox.FlagShare),
	}, nil
}

// OpenDataset opens an existing classic dataset.
func OpenDataset(_ context.Context, path string, cfg *arrbox.Config, opts Options) (arrbox.Dataset, error) {
	buf, err := afero.ReadFile(cfg.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cdf: %s: %w", path, arrbox.ErrNotFound)
		}
		return nil, err
	}
	model, data, err := decode(buf)
	if err != nil {
		return nil, err
	}
	return &dataset{
		fs:        cfg.Fs,
		path:      path,
		opts:      opts,
		model:     model,
		data:      data,
		writable:  cfg.Flags.Has(arrbox.FlagWrite),
		committed: true,
		fillMode:  arrbox.Fill,
		basePE:    cfg.BasePE,
		share:     cfg.Flags.Has(arrbox.FlagShare),
	}, nil
}

// Compile-time interface check.
var _ arrbox.Driver = (*Driver)(nil)
