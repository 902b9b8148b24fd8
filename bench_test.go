// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !race

package chunk_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/siderolabs/gen/xtesting/must"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-chunk"
	"github.com/siderolabs/go-chunk/digest"
	"github.com/siderolabs/go-chunk/store"
)

func BenchmarkCompressChunk(b *testing.B) {
	// half random, half repeated
	data := append(
		must.Value(io.ReadAll(io.LimitReader(rand.Reader, 512<<10)))(b),
		bytes.Repeat([]byte("chunk"), 100<<10)...,
	)

	for name, compressor := range compressors(b) {
		b.Run(name, func(b *testing.B) {
			codec := must.Value(chunk.NewCodec(chunk.WithCompressor(compressor)))(b)

			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			b.ResetTimer()

			for range b.N {
				_, err := codec.CompressChunk(data)
				require.NoError(b, err)
			}
		})
	}
}

func BenchmarkHashChunk(b *testing.B) {
	data := must.Value(io.ReadAll(io.LimitReader(rand.Reader, 1<<20)))(b)

	for _, test := range []struct {
		name string

		hasher chunk.Hasher
	}{
		{
			name:   "cid-sha2-256",
			hasher: must.Value(digest.NewCID(digest.SHA256))(b),
		},
		{
			name:   "cid-blake3",
			hasher: must.Value(digest.NewCID(digest.BLAKE3))(b),
		},
		{
			name:   "blake3",
			hasher: digest.Blake3{},
		},
	} {
		b.Run(test.name, func(b *testing.B) {
			codec := must.Value(chunk.NewCodec(chunk.WithHasher(test.hasher)))(b)

			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			b.ResetTimer()

			for range b.N {
				codec.HashChunk(data)
			}
		})
	}
}

func BenchmarkWriter(b *testing.B) {
	data := must.Value(io.ReadAll(io.LimitReader(rand.Reader, 1024)))(b)

	for _, test := range []struct {
		name string

		options []chunk.OptionFunc
	}{
		{
			name: "defaults",
		},
		{
			name: "small chunks",

			options: []chunk.OptionFunc{
				chunk.WithChunkSize(16384),
				chunk.WithInitialCapacity(1024),
			},
		},
		{
			name: "sequential",

			options: []chunk.OptionFunc{
				chunk.WithConcurrency(1),
			},
		},
	} {
		b.Run(test.name, func(b *testing.B) {
			codec := must.Value(chunk.NewCodec(test.options...))(b)

			w := codec.NewWriter(store.NewMemory(16))

			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			b.ResetTimer()

			for range b.N {
				_, err := w.Write(data)
				require.NoError(b, err)
			}

			require.NoError(b, w.Close())
		})
	}
}

func BenchmarkReader(b *testing.B) {
	data := must.Value(io.ReadAll(io.LimitReader(rand.Reader, 8<<20)))(b)

	codec := must.Value(chunk.NewCodec())(b)

	st := store.NewMemory(0)
	w := codec.NewWriter(st)

	_, err := w.Write(data)
	require.NoError(b, err)
	require.NoError(b, w.Close())

	manifest := must.Value(w.Manifest())(b)

	buf := make([]byte, 4096)

	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()

	for range b.N {
		r := must.Value(codec.NewReader(st, manifest))(b)

		for {
			_, err := r.Read(buf)
			if err == io.EOF {
				break
			}

			require.NoError(b, err)
		}

		require.NoError(b, r.Close())
	}
}
