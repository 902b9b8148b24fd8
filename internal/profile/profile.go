// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package profile maps compressor and hasher names to implementations.
package profile

import (
	"fmt"
	"maps"
	"slices"

	kflate "github.com/klauspost/compress/flate"

	"github.com/siderolabs/go-chunk"
	"github.com/siderolabs/go-chunk/digest"
	"github.com/siderolabs/go-chunk/flate"
	"github.com/siderolabs/go-chunk/passthrough"
	"github.com/siderolabs/go-chunk/s2"
	"github.com/siderolabs/go-chunk/zstd"
)

// Default names.
const (
	DefaultCompressor = "zstd"
	DefaultHasher     = "cid-sha2-256"
)

var compressors = map[string]func() (chunk.Compressor, error){
	"zstd": func() (chunk.Compressor, error) {
		return zstd.NewCompressor()
	},
	"s2": func() (chunk.Compressor, error) {
		return s2.NewCompressor(false), nil
	},
	"s2-better": func() (chunk.Compressor, error) {
		return s2.NewCompressor(true), nil
	},
	"flate": func() (chunk.Compressor, error) {
		return flate.NewCompressor(kflate.DefaultCompression)
	},
	"none": func() (chunk.Compressor, error) {
		return passthrough.Compressor{}, nil
	},
}

var hashers = map[string]func() (chunk.Hasher, error){
	"cid-sha2-256": func() (chunk.Hasher, error) {
		return digest.NewCID(digest.SHA256)
	},
	"cid-blake3": func() (chunk.Hasher, error) {
		return digest.NewCID(digest.BLAKE3)
	},
	"blake3": func() (chunk.Hasher, error) {
		return digest.Blake3{}, nil
	},
	"none": func() (chunk.Hasher, error) {
		return digest.Constant(""), nil
	},
}

// Compressor returns a compressor by name.
func Compressor(name string) (chunk.Compressor, error) {
	fn, ok := compressors[name]
	if !ok {
		return nil, fmt.Errorf("unknown compressor %q, available: %v", name, Compressors())
	}

	return fn()
}

// Hasher returns a hasher by name.
func Hasher(name string) (chunk.Hasher, error) {
	fn, ok := hashers[name]
	if !ok {
		return nil, fmt.Errorf("unknown hasher %q, available: %v", name, Hashers())
	}

	return fn()
}

// Compressors lists compressor names.
func Compressors() []string {
	return sortedKeys(compressors)
}

// Hashers lists hasher names.
func Hashers() []string {
	return sortedKeys(hashers)
}

// ContentAddressed reports whether the hasher can be used to address chunks in a store.
func ContentAddressed(hasher string) bool {
	return hasher != "none"
}

// Codec builds a codec for compressor and hasher names.
func Codec(compressor, hasher string, opts ...chunk.OptionFunc) (*chunk.Codec, error) {
	c, err := Compressor(compressor)
	if err != nil {
		return nil, err
	}

	h, err := Hasher(hasher)
	if err != nil {
		return nil, err
	}

	return chunk.NewCodec(append([]chunk.OptionFunc{chunk.WithCompressor(c), chunk.WithHasher(h)}, opts...)...)
}

func sortedKeys[T any](m map[string]T) []string {
	return slices.Sorted(maps.Keys(m))
}
