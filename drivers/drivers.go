// Package drivers registers every built-in format driver in the stock
// order and initializes the registry:
//
//	drivers.MustInit()
//	defer arrbox.Finalize()
//
// Registration order is part of routing behavior (it breaks sniffing
// ties and orders lifecycle hooks), so the drivers register through
// explicit calls here rather than import side effects.
package drivers

import (
	"github.com/nuln/arrbox"
	"github.com/nuln/arrbox/driver/ahf"
	"github.com/nuln/arrbox/driver/cdf"
	"github.com/nuln/arrbox/driver/legacy"
	"github.com/nuln/arrbox/driver/pcdf"
	"github.com/nuln/arrbox/driver/remote"
)

// Init registers the built-in drivers and runs Initialize. The order is
// fixed: cdf, ahf, legacy, http, cloud, pcdf.
func Init() error {
	for _, d := range []arrbox.Driver{
		cdf.New(),
		ahf.New(),
		legacy.New(),
		remote.NewHTTP(),
		remote.NewCloud(),
		pcdf.New(),
	} {
		if err := arrbox.Register(d); err != nil {
			return err
		}
	}
	return arrbox.Initialize()
}

// MustInit is Init for program startup paths that cannot proceed
// without the stock drivers.
func MustInit() {
	if err := Init(); err != nil {
		panic(err)
	}
}

// List returns the registered driver names in registration order.
func List() []string {
	return arrbox.List()
}
