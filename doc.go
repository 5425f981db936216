// Package arrbox is the format-selection and dispatch layer of a
// scientific array-data storage library.
//
// A dataset is a tree of groups, dimensions, variables and attributes
// stored in one of several mutually incompatible on-disk or on-wire
// formats. arrbox picks the one driver that can service a create/open
// request and routes every later operation on that dataset through the
// driver's [Dataset] implementation.
//
// # Supported Drivers
//
//   - cdf: classic flat array format, read/write (driver/cdf)
//   - ahf: enhanced hierarchical format with groups and user-defined
//     types, read/write (driver/ahf)
//   - legacy: read-only legacy flat format (driver/legacy)
//   - remote: read-only network access over HTTP(S) or any
//     rclone-supported remote (driver/remote)
//   - pcdf: classic format with parallel flush (driver/pcdf)
//
// # Quick Start
//
//	import (
//	    "github.com/nuln/arrbox"
//	    "github.com/nuln/arrbox/drivers"
//	)
//
//	drivers.MustInit()
//	defer arrbox.Finalize()
//
//	ds, err := arrbox.Create(ctx, "out.cdf", &arrbox.Config{Flags: arrbox.FlagOverwrite})
//
// Drivers are registered explicitly and in a fixed order; there are no
// hidden init-time registrations. Call [Initialize] (or drivers.MustInit,
// which does both registration and initialization) before the first
// Create or Open, and [Finalize] once at shutdown.
package arrbox
