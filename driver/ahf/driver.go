package ahf

import (
	"context"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/meta"
)

// Driver serves the enhanced hierarchical format. The zstd coder pair is
// shared by every dataset of the process and lives from Init to Shutdown.
type Driver struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New returns the enhanced-format driver.
func New() *Driver { return &Driver{} }

func (*Driver) Format() arrbox.FormatTag { return arrbox.FormatEnhanced }

func (*Driver) Info() arrbox.DriverInfo {
	return arrbox.DriverInfo{
		Name:        "ahf",
		Magic:       Magic,
		CreateFlags: arrbox.FlagEnhanced,
	}
}

func (d *Driver) Init() error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("ahf: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return fmt.Errorf("ahf: %w", err)
	}
	d.enc, d.dec = enc, dec
	return nil
}

func (d *Driver) Shutdown() error {
	if d.enc != nil {
		d.enc.Close()
		d.enc = nil
	}
	if d.dec != nil {
		d.dec.Close()
		d.dec = nil
	}
	return nil
}

func (d *Driver) Create(_ context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	if d.enc == nil {
		return nil, arrbox.ErrNotReady
	}
	fs := cfg.Fs
	if cfg.Flags.Has(arrbox.FlagNoClobber) {
		if exists, err := afero.Exists(fs, path); err != nil {
			return nil, err
		} else if exists {
			return nil, fmt.Errorf("ahf: %s: %w", path, arrbox.ErrExist)
		}
	}
	// Claim the path now so a concurrent create fails fast and Abort
	// has something to remove.
	if err := afero.WriteFile(fs, path, Magic, 0o644); err != nil {
		return nil, err
	}
	return &dataset{
		fs:       fs,
		path:     path,
		enc:      d.enc,
		dec:      d.dec,
		model:    meta.New(),
		data:     map[meta.VarID][]byte{},
		writable: true,
		fillMode: arrbox.Fill,
		share:    cfg.Flags.Has(arrbox.FlagShare),
	}, nil
}

func (d *Driver) Open(_ context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	if d.dec == nil {
		return nil, arrbox.ErrNotReady
	}
	buf, err := afero.ReadFile(cfg.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ahf: %s: %w", path, arrbox.ErrNotFound)
		}
		return nil, err
	}
	model, data, err := decodeFile(d.dec, buf)
	if err != nil {
		return nil, err
	}
	return &dataset{
		fs:        cfg.Fs,
		path:      path,
		enc:       d.enc,
		dec:       d.dec,
		model:     model,
		data:      data,
		writable:  cfg.Flags.Has(arrbox.FlagWrite),
		committed: true,
		fillMode:  arrbox.Fill,
		share:     cfg.Flags.Has(arrbox.FlagShare),
	}, nil
}

// Compile-time interface check.
var _ arrbox.Driver = (*Driver)(nil)
