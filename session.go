package arrbox

import (
	"context"
	"fmt"

	"github.com/nuln/arrbox/internal/wire"
	"github.com/nuln/arrbox/meta"
)

// Session is the handle for one open dataset. It binds the chosen
// format's Dataset implementation, validates caller-supplied buffers
// before they reach the backend, and normalizes legacy memtypes.
//
// A Session is not self-synchronizing: concurrent operations on the same
// Session are the caller's problem to exclude. Operations on distinct
// Sessions never interfere.
type Session struct {
	tag    FormatTag
	ds     Dataset
	closed bool
}

func newSession(tag FormatTag, ds Dataset) *Session {
	return &Session{tag: tag, ds: ds}
}

// Format reports which backend served this dataset.
func (s *Session) Format() FormatTag { return s.tag }

// Dataset returns the backend's operation table, for discovering
// optional capabilities ([Chunker], [Compressor], [Fetcher]) by type
// assertion.
func (s *Session) Dataset() Dataset { return s.ds }

// Meta returns the dataset's metadata model for inquiry.
func (s *Session) Meta() *meta.Model {
	return s.ds.Meta()
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close flushes and releases the dataset. The backend state and the
// metadata model are released before the Session becomes unusable.
func (s *Session) Close(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	s.closed = true
	return s.ds.Close(ctx)
}

// Abort releases the dataset without flushing.
func (s *Session) Abort() error {
	if err := s.check(); err != nil {
		return err
	}
	s.closed = true
	return s.ds.Abort()
}

// Sync flushes buffered data to stable storage.
func (s *Session) Sync(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.Sync(ctx)
}

// Redef reenters define mode.
func (s *Session) Redef() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.Redef()
}

// EndDef leaves define mode.
func (s *Session) EndDef() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.EndDef()
}

// DefDim defines a dimension.
func (s *Session) DefDim(grp meta.GrpID, name string, length uint64) (meta.DimID, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.ds.DefDim(grp, name, length)
}

// DefVar defines a variable.
func (s *Session) DefVar(grp meta.GrpID, name string, typ meta.TypeID, dims []meta.DimID) (meta.VarID, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.ds.DefVar(grp, name, typ, dims)
}

// DefGroup defines a nested group.
func (s *Session) DefGroup(parent meta.GrpID, name string) (meta.GrpID, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.ds.DefGroup(parent, name)
}

// DefType registers a user-defined type.
func (s *Session) DefType(grp meta.GrpID, def meta.TypeDef) (meta.TypeID, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.ds.DefType(grp, def)
}

// RenameDim renames a dimension.
func (s *Session) RenameDim(id meta.DimID, name string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.RenameDim(id, name)
}

// RenameVar renames a variable.
func (s *Session) RenameVar(id meta.VarID, name string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.RenameVar(id, name)
}

// RenameAttr renames an attribute.
func (s *Session) RenameAttr(grp meta.GrpID, v meta.VarID, old, new string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.RenameAttr(grp, v, old, new)
}

// SetFill switches the fill policy.
func (s *Session) SetFill(mode FillMode) (FillMode, error) {
	if err := s.check(); err != nil {
		return Fill, err
	}
	return s.ds.SetFill(mode)
}

// SetChunkCache tunes the chunk cache.
func (s *Session) SetChunkCache(size, slots int, preemption float64) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.SetChunkCache(size, slots, preemption)
}

// PutAttr creates or replaces an attribute. The legacy long memtype is
// normalized to int64 before the backend sees it.
func (s *Session) PutAttr(grp meta.GrpID, v meta.VarID, name string, typ meta.TypeID, nelems int, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	mem = mem.Normalize()
	if size := mem.Size(); size != 0 && len(data) != nelems*size {
		return fmt.Errorf("arrbox: attribute %q: %d bytes for %d %s elements: %w",
			name, len(data), nelems, mem, ErrShape)
	}
	return s.ds.PutAttr(grp, v, name, typ, nelems, data, mem)
}

// GetAttr returns an attribute's value in the mem layout.
func (s *Session) GetAttr(grp meta.GrpID, v meta.VarID, name string, mem MemType) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.ds.GetAttr(grp, v, name, mem.Normalize())
}

// DelAttr removes an attribute.
func (s *Session) DelAttr(grp meta.GrpID, v meta.VarID, name string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.DelAttr(grp, v, name)
}

// GetVara reads a hyperslab. The buffer must hold exactly
// product(count) elements of the memtype; a mismatch is a caller error
// caught here, before any backend code runs.
func (s *Session) GetVara(ctx context.Context, v meta.VarID, start, count []uint64, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	mem = mem.Normalize()
	if err := s.checkBuffer(v, start, count, data, mem); err != nil {
		return err
	}
	return s.ds.GetVara(ctx, v, start, count, data, mem)
}

// PutVara writes a hyperslab.
func (s *Session) PutVara(ctx context.Context, v meta.VarID, start, count []uint64, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	mem = mem.Normalize()
	if err := s.checkBuffer(v, start, count, data, mem); err != nil {
		return err
	}
	return s.ds.PutVara(ctx, v, start, count, data, mem)
}

// GetVars reads a strided selection via the derived-access family.
func (s *Session) GetVars(ctx context.Context, v meta.VarID, start, count, stride []uint64, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	return getVars(ctx, s.ds, v, start, count, stride, data, mem.Normalize())
}

// PutVars writes a strided selection via the derived-access family.
func (s *Session) PutVars(ctx context.Context, v meta.VarID, start, count, stride []uint64, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	return putVars(ctx, s.ds, v, start, count, stride, data, mem.Normalize())
}

// GetVarm reads a mapped selection via the derived-access family.
func (s *Session) GetVarm(ctx context.Context, v meta.VarID, start, count, stride, imap []uint64, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	return getVarm(ctx, s.ds, v, start, count, stride, imap, data, mem.Normalize())
}

// PutVarm writes a mapped selection via the derived-access family.
func (s *Session) PutVarm(ctx context.Context, v meta.VarID, start, count, stride, imap []uint64, data []byte, mem MemType) error {
	if err := s.check(); err != nil {
		return err
	}
	return putVarm(ctx, s.ds, v, start, count, stride, imap, data, mem.Normalize())
}

// SetBasePE sets the classic base processing element.
func (s *Session) SetBasePE(pe int) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.ds.SetBasePE(pe)
}

// BasePE returns the classic base processing element.
func (s *Session) BasePE() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.ds.BasePE()
}

// checkBuffer enforces the contract that the buffer holds exactly
// product(count) elements of the memtype (or of the declared type for
// MemNative).
func (s *Session) checkBuffer(v meta.VarID, start, count []uint64, data []byte, mem MemType) error {
	vv, err := s.ds.Meta().Var(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadID, err)
	}
	if len(start) != vv.Rank() || len(count) != vv.Rank() {
		return fmt.Errorf("arrbox: variable %q rank %d, got start/count rank %d/%d: %w",
			vv.Name, vv.Rank(), len(start), len(count), ErrShape)
	}
	elem := mem.Size()
	if mem == MemNative {
		elem = s.ds.Meta().TypeSize(vv.Type)
		if elem == 0 {
			return fmt.Errorf("arrbox: variable %q has no fixed element size: %w", vv.Name, ErrUnsupported)
		}
	}
	want := wire.NumElements(count) * uint64(elem)
	if uint64(len(data)) != want {
		return fmt.Errorf("arrbox: variable %q: buffer %d bytes, selection needs %d: %w",
			vv.Name, len(data), want, ErrShape)
	}
	return nil
}
