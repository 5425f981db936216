package arrbox

import "github.com/nuln/arrbox/meta"

// Optional capabilities beyond the Dataset contract. Discover them by
// type assertion: if c, ok := ds.(arrbox.Chunker); ok { ... }

// Chunker exposes the chunk shape of a chunked variable. Contiguous
// variables and non-chunking backends return nil.
type Chunker interface {
	ChunkShape(v meta.VarID) []uint64
}

// Compressor reports the compression codec applied to a variable's
// data, "" for uncompressed storage.
type Compressor interface {
	Compression(v meta.VarID) string
}

// Fetcher is implemented by network-backed datasets and reports the
// origin the data was fetched from.
type Fetcher interface {
	Origin() string
}
