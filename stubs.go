package arrbox

import (
	"context"

	"github.com/nuln/arrbox/meta"
)

// Stub families. Each is a pure, state-free set of method
// implementations a driver embeds to bind contract operations it cannot
// support to an explicit failure, so an assembled Dataset never has a
// gap. They touch no backend state and are safe to share.

// ReadOnly binds every mutating operation to ErrReadOnly with no side
// effects. Inherently read-only backends embed it wholesale.
type ReadOnly struct{}

func (ReadOnly) Redef() error  { return ErrReadOnly }
func (ReadOnly) EndDef() error { return ErrReadOnly }

func (ReadOnly) Sync(context.Context) error { return ErrReadOnly }

func (ReadOnly) DefDim(meta.GrpID, string, uint64) (meta.DimID, error) {
	return 0, ErrReadOnly
}

func (ReadOnly) DefVar(meta.GrpID, string, meta.TypeID, []meta.DimID) (meta.VarID, error) {
	return 0, ErrReadOnly
}

func (ReadOnly) DefGroup(meta.GrpID, string) (meta.GrpID, error) {
	return 0, ErrReadOnly
}

func (ReadOnly) DefType(meta.GrpID, meta.TypeDef) (meta.TypeID, error) {
	return 0, ErrReadOnly
}

func (ReadOnly) RenameDim(meta.DimID, string) error { return ErrReadOnly }
func (ReadOnly) RenameVar(meta.VarID, string) error { return ErrReadOnly }

func (ReadOnly) RenameAttr(meta.GrpID, meta.VarID, string, string) error {
	return ErrReadOnly
}

func (ReadOnly) SetFill(FillMode) (FillMode, error) { return Fill, ErrReadOnly }

func (ReadOnly) SetChunkCache(int, int, float64) error { return ErrReadOnly }

func (ReadOnly) PutAttr(meta.GrpID, meta.VarID, string, meta.TypeID, int, []byte, MemType) error {
	return ErrReadOnly
}

func (ReadOnly) DelAttr(meta.GrpID, meta.VarID, string) error { return ErrReadOnly }

func (ReadOnly) PutVara(context.Context, meta.VarID, []uint64, []uint64, []byte, MemType) error {
	return ErrReadOnly
}

// UnsupportedEnhanced binds the operations that exist only under the
// enhanced data model to ErrNotEnhanced. Classic-model backends embed it.
type UnsupportedEnhanced struct{}

func (UnsupportedEnhanced) DefGroup(meta.GrpID, string) (meta.GrpID, error) {
	return 0, ErrNotEnhanced
}

func (UnsupportedEnhanced) DefType(meta.GrpID, meta.TypeDef) (meta.TypeID, error) {
	return 0, ErrNotEnhanced
}

func (UnsupportedEnhanced) SetChunkCache(int, int, float64) error {
	return ErrNotEnhanced
}

// UnsupportedClassic binds the classic-only compatibility operations to
// ErrClassicOnly. Every non-classic, non-parallel backend embeds it.
type UnsupportedClassic struct{}

func (UnsupportedClassic) SetBasePE(int) error  { return ErrClassicOnly }
func (UnsupportedClassic) BasePE() (int, error) { return 0, ErrClassicOnly }
