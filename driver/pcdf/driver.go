// Package pcdf serves the classic format through a parallel flush path.
// It shares the cdf codec; what changes is the flush, which writes the
// encoded image as concurrent fixed-size sections. There is no magic of
// its own: the driver is reached only by an explicit format demand or
// the parallel create flag, never by sniffing, so a pcdf file reopens
// as plain cdf anywhere.
package pcdf

import (
	"context"

	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/driver/cdf"
)

// Driver serves the parallel classic variant.
type Driver struct{}

// New returns the parallel-classic driver.
func New() *Driver { return &Driver{} }

func (*Driver) Format() arrbox.FormatTag { return arrbox.FormatParallel }

func (*Driver) Info() arrbox.DriverInfo {
	return arrbox.DriverInfo{
		Name:        "pcdf",
		CreateFlags: arrbox.FlagParallel,
	}
}

func (*Driver) Init() error     { return nil }
func (*Driver) Shutdown() error { return nil }

func (*Driver) Create(ctx context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	return cdf.CreateDataset(ctx, path, cfg, cdf.Options{Parallel: true})
}

func (*Driver) Open(ctx context.Context, path string, cfg *arrbox.Config) (arrbox.Dataset, error) {
	return cdf.OpenDataset(ctx, path, cfg, cdf.Options{Parallel: true})
}

// Compile-time interface check.
var _ arrbox.Driver = (*Driver)(nil)
