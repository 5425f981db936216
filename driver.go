package arrbox

import (
	"context"

	"github.com/nuln/arrbox/meta"
)

// Driver is one backend's entry into the dispatch layer: a format tag,
// a routing signature, lifecycle hooks, and the create/open entry
// points. One Driver instance serves every dataset of its format.
type Driver interface {
	// Format returns the tag this driver is registered under.
	Format() FormatTag

	// Info describes how the routing procedure recognizes this driver's
	// datasets.
	Info() DriverInfo

	// Init is called once by Initialize, in registration order. A
	// failure aborts process-wide setup.
	Init() error

	// Shutdown is called once by Finalize, in reverse registration order.
	Shutdown() error

	// Create makes a new dataset at path and returns its Dataset with
	// backend state and metadata model populated. On error nothing is
	// retained: partially acquired resources are the driver's to release.
	Create(ctx context.Context, path string, cfg *Config) (Dataset, error)

	// Open opens an existing dataset at path.
	Open(ctx context.Context, path string, cfg *Config) (Dataset, error)
}

// DriverInfo is the routing metadata a driver registers.
type DriverInfo struct {
	// Name is the short human-readable driver name.
	Name string

	// Magic is the file-prefix signature for content sniffing, empty for
	// drivers reached only by URL scheme. Longer signatures win over
	// shorter ones; ties go to registration order.
	Magic []byte

	// Schemes lists URL schemes routed to this driver before any file
	// content is examined (e.g. "http", "https").
	Schemes []string

	// CreateFlags are the flag bits that select this driver at create
	// time. Zero means the driver is never the create target.
	CreateFlags Flags

	// ReadOnly marks drivers that can never create or mutate datasets.
	ReadOnly bool
}

// Dataset is the per-open-dataset operation table. Every method has a
// concrete implementation in every driver: operations a backend cannot
// support are bound to one of the stub families (ReadOnly,
// UnsupportedEnhanced, UnsupportedClassic), never left out.
//
// Callers normally go through [Session], which validates buffers and
// normalizes memtypes before dispatching here.
type Dataset interface {
	// Meta returns the dataset's metadata model. The model is owned by
	// the dataset and released on Close or Abort.
	Meta() *meta.Model

	// Close flushes and releases the dataset.
	Close(ctx context.Context) error
	// Abort releases the dataset without flushing; a dataset created in
	// define mode and never committed is removed.
	Abort() error
	// Sync flushes buffered data to stable storage.
	Sync(ctx context.Context) error

	// Redef reenters define mode on an open dataset.
	Redef() error
	// EndDef leaves define mode, committing the schema.
	EndDef() error

	// DefDim defines a dimension in a group. Length Unlimited declares
	// the record dimension.
	DefDim(grp meta.GrpID, name string, length uint64) (meta.DimID, error)
	// DefVar defines a variable over previously defined dimensions.
	DefVar(grp meta.GrpID, name string, typ meta.TypeID, dims []meta.DimID) (meta.VarID, error)
	// DefGroup defines a nested group (enhanced model only).
	DefGroup(parent meta.GrpID, name string) (meta.GrpID, error)
	// DefType registers a user-defined type (enhanced model only).
	DefType(grp meta.GrpID, def meta.TypeDef) (meta.TypeID, error)

	RenameDim(id meta.DimID, name string) error
	RenameVar(id meta.VarID, name string) error
	RenameAttr(grp meta.GrpID, v meta.VarID, old, new string) error

	// SetFill switches the fill policy and returns the previous one.
	SetFill(mode FillMode) (FillMode, error)
	// SetChunkCache tunes the chunk cache (enhanced model only).
	SetChunkCache(size, slots int, preemption float64) error

	// PutAttr creates or replaces an attribute. data holds nelems values
	// in the mem layout; the backend converts to the declared type.
	PutAttr(grp meta.GrpID, v meta.VarID, name string, typ meta.TypeID, nelems int, data []byte, mem MemType) error
	// GetAttr returns the attribute value converted to the mem layout.
	GetAttr(grp meta.GrpID, v meta.VarID, name string, mem MemType) ([]byte, error)
	DelAttr(grp meta.GrpID, v meta.VarID, name string) error

	// GetVara reads the hyperslab (start, count) of variable v into data,
	// converting from the declared type to the mem layout. This is the
	// single array primitive; strided and mapped access are derived from
	// it by the dispatch layer and never reimplemented per backend.
	GetVara(ctx context.Context, v meta.VarID, start, count []uint64, data []byte, mem MemType) error
	// PutVara writes the hyperslab (start, count) of variable v from data.
	PutVara(ctx context.Context, v meta.VarID, start, count []uint64, data []byte, mem MemType) error

	// SetBasePE and BasePE are classic-model compatibility operations for
	// the legacy base processing element. Non-classic backends bind them
	// to UnsupportedClassic.
	SetBasePE(pe int) error
	BasePE() (int, error)
}
