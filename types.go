package arrbox

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nuln/arrbox/meta"
)

// FormatTag identifies a supported backend/storage format. The set of
// known tags is fixed at build time; exactly one tag is bound to any
// open dataset.
type FormatTag uint8

const (
	FormatUnknown FormatTag = iota

	// FormatClassic is the flat classic array format (driver/cdf).
	FormatClassic
	// FormatEnhanced is the hierarchical, user-typed format (driver/ahf).
	FormatEnhanced
	// FormatLegacy is the read-only legacy flat format (driver/legacy).
	FormatLegacy
	// FormatHTTP serves datasets fetched over HTTP or HTTPS (driver/remote).
	FormatHTTP
	// FormatCloud serves datasets fetched from an rclone remote (driver/remote).
	FormatCloud
	// FormatParallel is the classic format with parallel flush (driver/pcdf).
	FormatParallel
)

var formatNames = map[FormatTag]string{
	FormatUnknown:  "unknown",
	FormatClassic:  "cdf",
	FormatEnhanced: "ahf",
	FormatLegacy:   "legacy",
	FormatHTTP:     "http",
	FormatCloud:    "cloud",
	FormatParallel: "pcdf",
}

func (t FormatTag) String() string {
	if name, ok := formatNames[t]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint8(t))
}

// ParseFormat maps a format name back to its tag.
func ParseFormat(name string) (FormatTag, error) {
	for tag, n := range formatNames {
		if n == name {
			return tag, nil
		}
	}
	return FormatUnknown, fmt.Errorf("arrbox: unknown format name %q", name)
}

// MarshalText implements encoding.TextMarshaler so tags round-trip
// through JSON and YAML configs by name.
func (t FormatTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FormatTag) UnmarshalText(text []byte) error {
	tag, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*t = tag
	return nil
}

// UnmarshalYAML decodes a tag from its format name.
func (t *FormatTag) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(name))
}

// MarshalYAML encodes the tag as its format name.
func (t FormatTag) MarshalYAML() (any, error) { return t.String(), nil }

// Flags is the mode/creation bitmask passed to Create and Open.
type Flags uint32

const (
	// FlagWrite opens an existing dataset writable.
	FlagWrite Flags = 1 << iota
	// FlagOverwrite allows Create to clobber an existing file.
	FlagOverwrite
	// FlagNoClobber makes Create fail if the target already exists.
	FlagNoClobber
	// FlagEnhanced selects the enhanced hierarchical model at create time.
	FlagEnhanced
	// FlagParallel declares parallel-I/O intent. A driver may honor it by
	// coordinating internally; the dispatch layer only routes on it.
	FlagParallel
	// FlagShare requests write-through semantics (sync after data writes).
	FlagShare
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// MemType tags the in-memory representation of values crossing the
// dispatch boundary. It is distinct from the variable's declared on-disk
// type; conversion between the two is the backend's responsibility.
type MemType uint8

const (
	// MemNative means "no conversion": the buffer uses the declared
	// on-disk layout of the variable's type. Required for user-defined
	// compound and enum types.
	MemNative MemType = iota
	MemByte
	MemUByte
	MemShort
	MemUShort
	MemInt
	MemUInt
	MemInt64
	MemUInt64
	MemFloat
	MemDouble
	MemChar

	// MemLong is the legacy "native long" width. It never reaches a
	// backend: the dispatch layer normalizes it to MemInt64 so every
	// backend, including the oldest classic one, sees a fixed 64-bit
	// integer representation.
	MemLong
)

var memTypeNames = [...]string{
	MemNative: "native", MemByte: "byte", MemUByte: "ubyte",
	MemShort: "short", MemUShort: "ushort", MemInt: "int", MemUInt: "uint",
	MemInt64: "int64", MemUInt64: "uint64", MemFloat: "float",
	MemDouble: "double", MemChar: "char", MemLong: "long",
}

func (m MemType) String() string {
	if int(m) < len(memTypeNames) {
		return memTypeNames[m]
	}
	return fmt.Sprintf("memtype(%d)", uint8(m))
}

// Size returns the element size in bytes, or 0 for MemNative (the size
// is then taken from the variable's declared type).
func (m MemType) Size() int {
	switch m {
	case MemByte, MemUByte, MemChar:
		return 1
	case MemShort, MemUShort:
		return 2
	case MemInt, MemUInt, MemFloat:
		return 4
	case MemInt64, MemUInt64, MemDouble, MemLong:
		return 8
	default:
		return 0
	}
}

// Kind maps a memtype to the primitive kind describing its layout.
// MemNative maps to KindNone: the declared type's layout applies.
func (m MemType) Kind() meta.Kind {
	switch m {
	case MemByte:
		return meta.KindByte
	case MemUByte:
		return meta.KindUByte
	case MemShort:
		return meta.KindShort
	case MemUShort:
		return meta.KindUShort
	case MemInt:
		return meta.KindInt
	case MemUInt:
		return meta.KindUInt
	case MemInt64, MemLong:
		return meta.KindInt64
	case MemUInt64:
		return meta.KindUInt64
	case MemFloat:
		return meta.KindFloat
	case MemDouble:
		return meta.KindDouble
	case MemChar:
		return meta.KindChar
	default:
		return meta.KindNone
	}
}

// Normalize maps MemLong to MemInt64 and leaves every other tag alone.
func (m MemType) Normalize() MemType {
	if m == MemLong {
		return MemInt64
	}
	return m
}

// FillMode controls whether a backend pre-fills newly allocated data
// space with the type's fill value.
type FillMode uint8

const (
	Fill FillMode = iota
	NoFill
)
