// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package flate implements chunk compression with DEFLATE.
//
// The frame is the uvarint-encoded decompressed size followed by the raw DEFLATE stream.
package flate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/multiformats/go-varint"
)

// MaxDecodedSize limits the decompressed size announced by the frame header.
const MaxDecodedSize = 256 << 20

// Compressor implements chunk.Compressor using DEFLATE.
type Compressor struct {
	writers sync.Pool
	readers sync.Pool

	level int
}

// NewCompressor creates new Compressor with the compression level (see flate.BestSpeed..flate.BestCompression).
func NewCompressor(level int) (*Compressor, error) {
	// validate the level upfront, so that the pool never fails
	if _, err := flate.NewWriter(io.Discard, level); err != nil {
		return nil, err
	}

	return &Compressor{
		level: level,
	}, nil
}

// Name of the compression algorithm.
func (c *Compressor) Name() string {
	return "flate"
}

// Compress data using DEFLATE.
func (c *Compressor) Compress(src, dest []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dest)

	buf.Write(varint.ToUvarint(uint64(len(src))))

	w, _ := c.writers.Get().(*flate.Writer) //nolint:errcheck
	if w == nil {
		var err error

		w, err = flate.NewWriter(buf, c.level)
		if err != nil {
			return nil, err
		}
	} else {
		w.Reset(buf)
	}

	defer c.writers.Put(w)

	if _, err := w.Write(src); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decompress data using DEFLATE.
func (c *Compressor) Decompress(src, dest []byte) ([]byte, error) {
	size, n, err := header(src)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(src[n:])

	fr, _ := c.readers.Get().(io.ReadCloser) //nolint:errcheck
	if fr == nil {
		fr = flate.NewReader(r)
	} else if err = fr.(flate.Resetter).Reset(r, nil); err != nil { //nolint:forcetypeassert
		return nil, err
	}

	defer c.readers.Put(fr)

	start := len(dest)
	dest = slices.Grow(dest, int(size))[:start+int(size)]

	if _, err = io.ReadFull(fr, dest[start:]); err != nil {
		return nil, fmt.Errorf("failed to inflate: %w", err)
	}

	var extra [1]byte

	if nn, err := fr.Read(extra[:]); nn != 0 || !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after the announced size")
	}

	return dest, nil
}

// DecompressedSize returns the size of the decompressed data.
func (c *Compressor) DecompressedSize(src []byte) (int64, error) {
	if len(src) == 0 {
		return 0, nil
	}

	size, _, err := header(src)

	return int64(size), err
}

func header(src []byte) (uint64, int, error) {
	size, n, err := varint.FromUvarint(src)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame header: %w", err)
	}

	if size > MaxDecodedSize {
		return 0, 0, fmt.Errorf("frame announces %d bytes, limit %d", size, MaxDecodedSize)
	}

	return size, n, nil
}
