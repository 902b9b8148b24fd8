// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package flate_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"strconv"
	"sync"
	"testing"

	kflate "github.com/klauspost/compress/flate"
	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-chunk/flate"
)

func TestCompressor(t *testing.T) {
	t.Parallel()

	for _, level := range []int{kflate.BestSpeed, kflate.DefaultCompression, kflate.BestCompression} {
		compressor, err := flate.NewCompressor(level)
		require.NoError(t, err)

		assert.Equal(t, "flate", compressor.Name())

		for _, size := range []int{0, 1, 1024, 1024 * 1024} {
			t.Run(strconv.Itoa(level)+"/"+strconv.Itoa(size), func(t *testing.T) {
				t.Parallel()

				data, err := io.ReadAll(io.LimitReader(rand.Reader, int64(size)))
				require.NoError(t, err)

				compressed, err := compressor.Compress(data, nil)
				require.NoError(t, err)

				decompressedSize, err := compressor.DecompressedSize(compressed)
				require.NoError(t, err)
				require.EqualValues(t, size, decompressedSize)

				decompressed, err := compressor.Decompress(compressed, nil)
				require.NoError(t, err)
				require.Len(t, decompressed, size)

				if size > 0 {
					require.Equal(t, data, decompressed)
				}

				appended, err := compressor.Decompress(compressed, []byte("prefix"))
				require.NoError(t, err)
				require.Equal(t, append([]byte("prefix"), data...), appended)
			})
		}
	}
}

func TestInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := flate.NewCompressor(42)
	require.Error(t, err)
}

func TestConcurrent(t *testing.T) {
	t.Parallel()

	compressor, err := flate.NewCompressor(kflate.BestSpeed)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			data := bytes.Repeat([]byte{byte(i)}, 1000+i)

			compressed, err := compressor.Compress(data, nil)
			if !assert.NoError(t, err) {
				return
			}

			decompressed, err := compressor.Decompress(compressed, nil)
			if !assert.NoError(t, err) {
				return
			}

			assert.Equal(t, data, decompressed)
		}()
	}

	wg.Wait()
}

func TestCorrupted(t *testing.T) {
	t.Parallel()

	compressor, err := flate.NewCompressor(kflate.BestSpeed)
	require.NoError(t, err)

	data, err := io.ReadAll(io.LimitReader(rand.Reader, 1024))
	require.NoError(t, err)

	compressed, err := compressor.Compress(data, nil)
	require.NoError(t, err)

	_, err = compressor.Decompress(compressed[:len(compressed)/2], nil)
	require.Error(t, err)

	// the header announces less data than the stream holds
	_, n, err := varint.FromUvarint(compressed)
	require.NoError(t, err)

	short := append(varint.ToUvarint(100), compressed[n:]...)

	_, err = compressor.Decompress(short, nil)
	require.Error(t, err)

	huge := append(varint.ToUvarint(flate.MaxDecodedSize+1), compressed[n:]...)

	_, err = compressor.DecompressedSize(huge)
	require.Error(t, err)
}
