// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunk

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// Options defines settings for Codec and its Writers and Readers.
type Options struct {
	Compressor Compressor
	Hasher     Hasher

	Logger *zap.Logger

	ChunkSize       int
	InitialCapacity int
	MaxChunkSize    int

	Concurrency int
}

// defaultOptions returns default initial values.
//
// Compressor and Hasher are filled in by NewCodec if not set.
func defaultOptions() Options {
	return Options{
		ChunkSize:       1 << 20,
		InitialCapacity: 16384,
		MaxChunkSize:    64 << 20,
		Concurrency:     runtime.GOMAXPROCS(0),
		Logger:          zap.NewNop(),
	}
}

// OptionFunc allows setting Codec options.
type OptionFunc func(*Options) error

// WithCompressor sets the chunk compressor.
//
// Default is zstd.
func WithCompressor(c Compressor) OptionFunc {
	return func(opt *Options) error {
		if c == nil {
			return fmt.Errorf("compressor should be set")
		}

		opt.Compressor = c

		return nil
	}
}

// WithHasher sets the chunk hasher.
//
// Default is CIDv1 with sha2-256 multihash.
func WithHasher(h Hasher) OptionFunc {
	return func(opt *Options) error {
		if h == nil {
			return fmt.Errorf("hasher should be set")
		}

		opt.Hasher = h

		return nil
	}
}

// WithChunkSize sets the size of the chunks Writer splits the stream into.
//
// The last chunk of the stream might be smaller.
func WithChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("chunk size should be positive: %d", size)
		}

		opt.ChunkSize = size

		return nil
	}
}

// WithInitialCapacity sets initial capacity of the Writer pending chunk buffer.
//
// The buffer grows up to the chunk size.
func WithInitialCapacity(capacity int) OptionFunc {
	return func(opt *Options) error {
		if capacity <= 0 {
			return fmt.Errorf("initial capacity should be positive: %d", capacity)
		}

		opt.InitialCapacity = capacity

		return nil
	}
}

// WithMaxChunkSize sets the upper limit for uncompressed chunk size accepted by
// CompressChunk and produced by DecompressChunk.
func WithMaxChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("max chunk size should be positive: %d", size)
		}

		opt.MaxChunkSize = size

		return nil
	}
}

// WithConcurrency sets the number of chunks Writer seals concurrently.
func WithConcurrency(n int) OptionFunc {
	return func(opt *Options) error {
		if n <= 0 {
			return fmt.Errorf("concurrency should be positive: %d", n)
		}

		opt.Concurrency = n

		return nil
	}
}

// WithLogger sets logger for Codec.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		opt.Logger = logger

		return nil
	}
}
