package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nuln/arrbox/meta"
)

// Numeric representation conversion between in-memory and declared
// layouts. Every value passes through a widest-width intermediate, so
// widening is exact and narrowing truncates the way a C cast would.

// Convert re-encodes src, holding elements of kind sk, into dst, holding
// the same number of elements of kind dk. Both buffers are little-endian
// packed. Buffer lengths must be exact multiples of the element sizes
// and must describe the same element count.
func Convert(dst []byte, dk meta.Kind, src []byte, sk meta.Kind) error {
	ds, ss := dk.Size(), sk.Size()
	if ds == 0 || ss == 0 {
		return fmt.Errorf("wire: cannot convert %s to %s", sk, dk)
	}
	if len(src)%ss != 0 || len(dst)%ds != 0 || len(src)/ss != len(dst)/ds {
		return fmt.Errorf("wire: buffer sizes disagree: %d %s elements vs %d %s elements",
			len(src)/ss, sk, len(dst)/ds, dk)
	}
	if dk == sk {
		copy(dst, src)
		return nil
	}
	n := len(src) / ss
	if isFloat(sk) || isFloat(dk) {
		for i := 0; i < n; i++ {
			putFloat(dst[i*ds:], dk, getFloat(src[i*ss:], sk))
		}
		return nil
	}
	for i := 0; i < n; i++ {
		putInt(dst[i*ds:], dk, getInt(src[i*ss:], sk))
	}
	return nil
}

func isFloat(k meta.Kind) bool { return k == meta.KindFloat || k == meta.KindDouble }

func isSigned(k meta.Kind) bool {
	switch k {
	case meta.KindByte, meta.KindShort, meta.KindInt, meta.KindInt64, meta.KindChar:
		return true
	}
	return false
}

func getInt(b []byte, k meta.Kind) int64 {
	switch k {
	case meta.KindByte, meta.KindChar:
		return int64(int8(b[0]))
	case meta.KindUByte:
		return int64(b[0])
	case meta.KindShort:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case meta.KindUShort:
		return int64(binary.LittleEndian.Uint16(b))
	case meta.KindInt:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case meta.KindUInt:
		return int64(binary.LittleEndian.Uint32(b))
	default: // KindInt64, KindUInt64
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func putInt(b []byte, k meta.Kind, v int64) {
	switch k {
	case meta.KindByte, meta.KindUByte, meta.KindChar:
		b[0] = byte(v)
	case meta.KindShort, meta.KindUShort:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case meta.KindInt, meta.KindUInt:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

func getFloat(b []byte, k meta.Kind) float64 {
	switch k {
	case meta.KindFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case meta.KindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		if isSigned(k) {
			return float64(getInt(b, k))
		}
		return float64(uint64(getInt(b, k)))
	}
}

func putFloat(b []byte, k meta.Kind, v float64) {
	switch k {
	case meta.KindFloat:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case meta.KindDouble:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		putInt(b, k, int64(v))
	}
}

// Default fill patterns, one element in the kind's layout. The values
// follow the classic convention of a large-magnitude sentinel per width.
func DefaultFill(k meta.Kind) []byte {
	b := make([]byte, k.Size())
	switch k {
	case meta.KindByte, meta.KindUByte:
		b[0] = 0x81
	case meta.KindChar:
		b[0] = 0
	case meta.KindShort, meta.KindUShort:
		binary.LittleEndian.PutUint16(b, 0x8001)
	case meta.KindInt, meta.KindUInt:
		binary.LittleEndian.PutUint32(b, 0x80000001)
	case meta.KindInt64, meta.KindUInt64:
		binary.LittleEndian.PutUint64(b, 0x8000000000000002)
	case meta.KindFloat:
		binary.LittleEndian.PutUint32(b, math.Float32bits(9.9692099683868690e+36))
	case meta.KindDouble:
		binary.LittleEndian.PutUint64(b, math.Float64bits(9.9692099683868690e+36))
	}
	return b
}

// FillBytes tiles the per-element pattern across dst.
func FillBytes(dst, pattern []byte) {
	if len(pattern) == 0 {
		return
	}
	for off := 0; off < len(dst); off += len(pattern) {
		copy(dst[off:], pattern)
	}
}
