// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chunk provides chunk compression, hashing and chunked stream storage.
package chunk

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/siderolabs/go-chunk/digest"
	"github.com/siderolabs/go-chunk/zstd"
)

// Codec compresses, decompresses and hashes chunks.
//
// Codec is safe for concurrent use.
type Codec struct {
	opt Options
}

// NewCodec creates new Codec with specified options.
func NewCodec(opts ...OptionFunc) (*Codec, error) {
	c := &Codec{
		opt: defaultOptions(),
	}

	for _, o := range opts {
		if err := o(&c.opt); err != nil {
			return nil, err
		}
	}

	if c.opt.InitialCapacity > c.opt.ChunkSize {
		c.opt.InitialCapacity = c.opt.ChunkSize
	}

	if c.opt.ChunkSize > c.opt.MaxChunkSize {
		return nil, fmt.Errorf("chunk size (%d) should be less or equal to max chunk size (%d)", c.opt.ChunkSize, c.opt.MaxChunkSize)
	}

	if c.opt.Logger == nil {
		c.opt.Logger = zap.NewNop()
	}

	if c.opt.Compressor == nil {
		compressor, err := zstd.NewCompressor()
		if err != nil {
			return nil, fmt.Errorf("failed to create default compressor: %w", err)
		}

		c.opt.Compressor = compressor
	}

	if c.opt.Hasher == nil {
		hasher, err := digest.NewCID(digest.SHA256)
		if err != nil {
			return nil, fmt.Errorf("failed to create default hasher: %w", err)
		}

		c.opt.Hasher = hasher
	}

	return c, nil
}

// CompressorName returns the name of the compressor recorded in manifests.
func (c *Codec) CompressorName() string {
	return nameOf(c.opt.Compressor)
}

// HasherName returns the name of the hasher recorded in manifests.
func (c *Codec) HasherName() string {
	return nameOf(c.opt.Hasher)
}

// ChunkSize returns the size of chunks produced by Writer.
func (c *Codec) ChunkSize() int {
	return c.opt.ChunkSize
}

// CompressChunk compresses a single chunk.
func (c *Codec) CompressChunk(src []byte) ([]byte, error) {
	if len(src) > c.opt.MaxChunkSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrChunkTooLarge, len(src), c.opt.MaxChunkSize)
	}

	compressed, err := c.opt.Compressor.Compress(src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compress chunk: %w", err)
	}

	return compressed, nil
}

// DecompressChunk decompresses a single chunk produced by CompressChunk.
//
// Zero-length input decompresses to zero-length output.
func (c *Codec) DecompressChunk(src []byte) ([]byte, error) {
	return c.decompress(src, nil)
}

// HashChunk returns the hash of the uncompressed chunk.
func (c *Codec) HashChunk(src []byte) string {
	return c.opt.Hasher.Hash(src)
}

// Seal hashes and compresses the data.
func (c *Codec) Seal(data []byte) (Chunk, error) {
	compressed, err := c.CompressChunk(data)
	if err != nil {
		return Chunk{}, err
	}

	return Chunk{
		Hash:       c.HashChunk(data),
		Compressor: c.CompressorName(),
		Compressed: compressed,
		Size:       int64(len(data)),
	}, nil
}

// Open decompresses the chunk appending to dest, and verifies the size and the hash
// of the decompressed contents.
func (c *Codec) Open(ch Chunk, dest []byte) ([]byte, error) {
	if ch.Compressor != c.CompressorName() {
		return nil, fmt.Errorf("%w: chunk %s is compressed with %q, codec uses %q", ErrCompressorMismatch, ch.Hash, ch.Compressor, c.CompressorName())
	}

	start := len(dest)

	out, err := c.decompress(ch.Compressed, dest)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", ch.Hash, err)
	}

	data := out[start:]

	if int64(len(data)) != ch.Size {
		return nil, fmt.Errorf("%w: chunk %s decompressed to %d bytes, expected %d", ErrHashMismatch, ch.Hash, len(data), ch.Size)
	}

	if actual := c.HashChunk(data); actual != ch.Hash {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, ch.Hash, actual)
	}

	return out, nil
}

func (c *Codec) decompress(src, dest []byte) ([]byte, error) {
	if len(src) == 0 {
		if dest == nil {
			dest = []byte{}
		}

		return dest, nil
	}

	// the size check is best-effort: not every frame carries the decompressed size
	if size, err := c.opt.Compressor.DecompressedSize(src); err == nil && size > int64(c.opt.MaxChunkSize) {
		return nil, fmt.Errorf("%w: frame announces %d bytes, limit %d", ErrChunkTooLarge, size, c.opt.MaxChunkSize)
	}

	start := len(dest)

	out, err := c.opt.Compressor.Decompress(src, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress chunk: %w", err)
	}

	if len(out)-start > c.opt.MaxChunkSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrChunkTooLarge, len(out)-start, c.opt.MaxChunkSize)
	}

	if out == nil {
		out = []byte{}
	}

	return out, nil
}
