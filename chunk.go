// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunk

// Chunk is a sealed piece of the stream: compressed contents addressed by the hash
// of the uncompressed contents.
type Chunk struct {
	// hash of the uncompressed data, as produced by the Hasher
	Hash string
	// name of the compressor which produced Compressed
	Compressor string
	// compressed data
	Compressed []byte
	// uncompressed size of the chunk
	Size int64
}

// Key returns the store key of the chunk.
func (c Chunk) Key() Key {
	return Key{
		Compressor: c.Compressor,
		Hash:       c.Hash,
	}
}

// Key addresses a chunk in a Store.
//
// Same contents compressed with different compressors are different chunks.
type Key struct {
	Compressor string
	Hash       string
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.Compressor + "/" + k.Hash
}

// Ref references a chunk from a Manifest.
type Ref struct {
	Hash string `json:"hash"`

	// Offset of the chunk in the reassembled stream.
	Offset int64 `json:"offset"`
	// Size is the uncompressed size of the chunk.
	Size int64 `json:"size"`
	// CompressedSize is informational, it is not verified on read.
	CompressedSize int64 `json:"compressed_size"`
}

// Compressor implements chunk compression.
//
// Compress and Decompress append to the dest slice and return the result.
//
// Compressor should be safe for concurrent use by multiple goroutines.
type Compressor interface {
	Compress(src, dest []byte) ([]byte, error)
	Decompress(src, dest []byte) ([]byte, error)
	DecompressedSize(src []byte) (int64, error)
}

// Hasher produces a string identifier of the chunk contents.
//
// Writer deduplicates chunks by hash, so hashers used with Writer should
// produce distinct values for distinct contents.
//
// Hasher should be safe for concurrent use by multiple goroutines.
type Hasher interface {
	Hash(src []byte) string
}

// Store keeps sealed chunks by Key.
//
// Get returns ErrNotFound (possibly wrapped) for missing chunks.
// Put of an already stored key doesn't rewrite the chunk, but stores with
// retention limits treat it as the newest one.
type Store interface {
	Put(c Chunk) error
	Get(key Key) (Chunk, error)
	Has(key Key) bool
}

type named interface {
	Name() string
}

func nameOf(v any) string {
	if n, ok := v.(named); ok {
		return n.Name()
	}

	return "custom"
}
