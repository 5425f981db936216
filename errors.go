package arrbox

import (
	"errors"
	"os"
)

// Common dispatch errors. Where possible, these alias os package errors
// for compatibility with os.IsNotExist, os.IsPermission, etc.
var (
	// ErrUnknownFormat is returned when a file's header matches no
	// registered signature and no decisive mode flag or fallback was given.
	ErrUnknownFormat = errors.New("arrbox: unrecognized format")

	// ErrUnsupportedFormat is returned when a format tag resolves to no
	// registered driver in this build.
	ErrUnsupportedFormat = errors.New("arrbox: format not supported by this build")

	// ErrReadOnly is returned by every mutating operation on a read-only
	// backend.
	ErrReadOnly = os.ErrPermission

	// ErrNotEnhanced is returned by operations that are meaningful only
	// under the enhanced (hierarchical, user-typed) data model.
	ErrNotEnhanced = errors.New("arrbox: operation requires the enhanced data model")

	// ErrClassicOnly is returned by classic-model compatibility operations
	// invoked on a non-classic backend.
	ErrClassicOnly = errors.New("arrbox: operation exists only for the classic model")

	// ErrShape is returned when a caller-supplied buffer or start/count
	// vector does not match the variable's shape and memtype element size.
	ErrShape = errors.New("arrbox: buffer size does not match shape")

	ErrNotFound    = os.ErrNotExist
	ErrExist       = os.ErrExist
	ErrInvalid     = os.ErrInvalid
	ErrClosed      = errors.New("arrbox: dataset already closed")
	ErrBadID       = errors.New("arrbox: no such dimension, variable, group or type")
	ErrInDefine    = errors.New("arrbox: operation not allowed in define mode")
	ErrNotInDefine = errors.New("arrbox: dataset is not in define mode")
	ErrFrozen      = errors.New("arrbox: registry is frozen")
	ErrNotReady    = errors.New("arrbox: registry not initialized")
	ErrUnsupported = errors.New("arrbox: feature not supported by this backend")
)
