// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package s2 implements chunk compression with the S2 block format.
package s2

import (
	"errors"
	"slices"

	"github.com/klauspost/compress/s2"
)

// Compressor implements chunk.Compressor using S2 blocks.
//
// S2 blocks carry no checksum, integrity is verified by the chunk hash.
type Compressor struct {
	better bool
}

// NewCompressor creates new Compressor.
//
// If better is set, slower but denser encoding is used.
func NewCompressor(better bool) *Compressor {
	return &Compressor{
		better: better,
	}
}

// Name of the compression algorithm.
func (c *Compressor) Name() string {
	return "s2"
}

// Compress data using S2.
func (c *Compressor) Compress(src, dest []byte) ([]byte, error) {
	n := s2.MaxEncodedLen(len(src))
	if n < 0 {
		return nil, errors.New("block is too large to compress")
	}

	dest = slices.Grow(dest, n)
	buf := dest[len(dest) : len(dest)+n]

	var encoded []byte

	if c.better {
		encoded = s2.EncodeBetter(buf, src)
	} else {
		encoded = s2.Encode(buf, src)
	}

	return dest[:len(dest)+len(encoded)], nil
}

// Decompress data using S2.
func (c *Compressor) Decompress(src, dest []byte) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, err
	}

	dest = slices.Grow(dest, n)

	decoded, err := s2.Decode(dest[len(dest):len(dest)+n], src)
	if err != nil {
		return nil, err
	}

	return dest[:len(dest)+len(decoded)], nil
}

// DecompressedSize returns the size of the decompressed data.
func (c *Compressor) DecompressedSize(src []byte) (int64, error) {
	if len(src) == 0 {
		return 0, nil
	}

	n, err := s2.DecodedLen(src)
	if err != nil {
		return 0, err
	}

	return int64(n), nil
}
