// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store_test

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/multiformats/go-varint"
	"github.com/siderolabs/gen/xslices"
	"github.com/siderolabs/gen/xtesting/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-chunk"
	"github.com/siderolabs/go-chunk/s2"
	"github.com/siderolabs/go-chunk/store"
)

func newCodec(t *testing.T) *chunk.Codec {
	t.Helper()

	return must.Value(chunk.NewCodec(chunk.WithChunkSize(4096)))(t)
}

func sealChunks(t *testing.T, codec *chunk.Codec, n int) []chunk.Chunk {
	t.Helper()

	chunks := make([]chunk.Chunk, 0, n)

	for i := range n {
		chunks = append(chunks, must.Value(codec.Seal(bytes.Repeat([]byte{byte(i)}, 1024+i)))(t))
	}

	return chunks
}

func chunkPath(root string, c chunk.Chunk) string {
	return filepath.Join(root, c.Compressor, c.Hash[len(c.Hash)-2:], c.Hash)
}

// listFiles returns the paths of all files under root, relative to root.
func listFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string

	require.NoError(t, filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			files = append(files, must.Value(filepath.Rel(root, path))(t))
		}

		return nil
	}))

	return files
}

func TestDirPersist(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	codec := newCodec(t)
	chunks := sealChunks(t, codec, 10)

	st, err := store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)), store.WithQueueSize(2))
	require.NoError(t, err)

	for _, c := range chunks {
		require.NoError(t, st.Put(c))

		// queued chunks are available immediately
		assert.True(t, st.Has(c.Key()))

		stored, err := st.Get(c.Key())
		require.NoError(t, err)
		assert.Equal(t, c, stored)
	}

	require.NoError(t, st.Put(chunks[0]))

	assert.Equal(t, len(chunks), st.Len())

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	require.ErrorIs(t, st.Put(chunks[0]), chunk.ErrClosed)

	for _, c := range chunks {
		assert.FileExists(t, chunkPath(root, c))
	}

	assert.Len(t, listFiles(t, root), len(chunks))

	st, err = store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, len(chunks), st.Len())

	for _, c := range chunks {
		stored, err := st.Get(c.Key())
		require.NoError(t, err)
		assert.Equal(t, c, stored)

		opened, err := codec.Open(stored, nil)
		require.NoError(t, err)
		assert.Len(t, opened, int(c.Size))
	}

	_, err = st.Get(chunk.Key{Compressor: "zstd", Hash: strings.Repeat("x", 10)})
	require.ErrorIs(t, err, chunk.ErrNotFound)

	require.NoError(t, st.Close())
}

func TestDirLoad(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string

		maxChunks int
		numChunks int

		expectedChunks int
	}{
		{
			name: "empty",
		},
		{
			name: "unlimited",

			numChunks:      5,
			expectedChunks: 5,
		},
		{
			name: "below the limit",

			maxChunks:      10,
			numChunks:      5,
			expectedChunks: 5,
		},
		{
			name: "above the limit",

			maxChunks:      3,
			numChunks:      7,
			expectedChunks: 3,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			codec := newCodec(t)
			chunks := sealChunks(t, codec, test.numChunks)

			now := time.Now()

			for i, c := range chunks {
				path := chunkPath(root, c)

				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				require.NoError(t, os.WriteFile(path, append(varint.ToUvarint(uint64(c.Size)), c.Compressed...), 0o644))

				// older chunks first
				modTime := now.Add(time.Duration(i-len(chunks)) * time.Minute)
				require.NoError(t, os.Chtimes(path, modTime, modTime))
			}

			// leftovers of an interrupted write
			require.NoError(t, os.MkdirAll(filepath.Join(root, "zstd", "le"), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(root, "zstd", "le", "bafkstale.tmp"), []byte("stale"), 0o644))

			// files which don't look like chunks are left alone
			require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hello"), 0o644))

			st, err := store.NewDir(root, store.WithMaxChunks(test.maxChunks), store.WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)

			t.Cleanup(func() {
				require.NoError(t, st.Close())
			})

			assert.Equal(t, test.expectedChunks, st.Len())

			for i, c := range chunks {
				if i < len(chunks)-test.expectedChunks {
					assert.False(t, st.Has(c.Key()))
					assert.NoFileExists(t, chunkPath(root, c))

					continue
				}

				stored, err := st.Get(c.Key())
				require.NoError(t, err)
				assert.Equal(t, c, stored)
			}

			assert.NoFileExists(t, filepath.Join(root, "zstd", "le", "bafkstale.tmp"))
			assert.FileExists(t, filepath.Join(root, "README"))
		})
	}
}

func TestDirMaxChunks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	codec := newCodec(t)
	chunks := sealChunks(t, codec, 8)

	st, err := store.NewDir(root, store.WithMaxChunks(3), store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	for _, c := range chunks {
		require.NoError(t, st.Put(c))
	}

	assert.Equal(t, 3, st.Len())

	for _, c := range chunks[:5] {
		assert.False(t, st.Has(c.Key()))
	}

	for _, c := range chunks[5:] {
		assert.True(t, st.Has(c.Key()))
	}

	require.NoError(t, st.Close())

	expected := xslices.Map(chunks[5:], func(c chunk.Chunk) string {
		return must.Value(filepath.Rel(root, chunkPath(root, c)))(t)
	})

	assert.ElementsMatch(t, expected, listFiles(t, root))
}

func TestDirSweep(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	codec := newCodec(t)
	chunks := sealChunks(t, codec, 2)

	st, err := store.NewDir(root,
		store.WithSweepInterval(10*time.Millisecond, 0.5),
		store.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	require.NoError(t, st.Put(chunks[0]))

	// a chunk file which is not indexed, e.g. copied in by hand
	stray := chunkPath(root, chunks[1])
	require.NoError(t, os.MkdirAll(filepath.Dir(stray), 0o755))
	require.NoError(t, os.WriteFile(stray, []byte("stray"), 0o644))

	tmp := stray + ".tmp"
	require.NoError(t, os.MkdirAll(filepath.Dir(tmp), 0o755))
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	assert.EventuallyWithT(t, func(collect *assert.CollectT) {
		asrt := assert.New(collect)

		asrt.NoFileExists(stray)
		asrt.NoFileExists(tmp)
		asrt.FileExists(chunkPath(root, chunks[0]))
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, st.Has(chunks[1].Key()))
	assert.True(t, st.Has(chunks[0].Key()))
}

func TestDirWriteFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	codec := newCodec(t)
	c := sealChunks(t, codec, 1)[0]

	// a file in place of the chunk directory
	require.NoError(t, os.WriteFile(filepath.Join(root, c.Compressor), []byte("in the way"), 0o644))

	st, err := store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	require.NoError(t, st.Put(c))

	require.Error(t, st.Close())

	assert.False(t, st.Has(c.Key()))

	_, err = st.Get(c.Key())
	require.ErrorIs(t, err, chunk.ErrNotFound)
}

func TestDirLayout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	chunks := sealChunks(t, newCodec(t), 32)
	s2Chunk := sealChunks(t, must.Value(chunk.NewCodec(chunk.WithCompressor(s2.NewCompressor(false))))(t), 1)[0]

	st, err := store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	for _, c := range append(chunks, s2Chunk) {
		require.NoError(t, st.Put(c))
	}

	require.NoError(t, st.Close())

	shards := map[string]struct{}{}

	for _, c := range chunks {
		path := chunkPath(root, c)

		assert.FileExists(t, path)

		shards[filepath.Base(filepath.Dir(path))] = struct{}{}
	}

	// chunk hashes share a common prefix, but the shards spread
	assert.Greater(t, len(shards), 1)

	// same contents compressed differently are stored side by side
	assert.FileExists(t, chunkPath(root, chunks[0]))
	assert.FileExists(t, chunkPath(root, s2Chunk))

	st, err = store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	assert.Equal(t, len(chunks)+1, st.Len())

	for _, c := range []chunk.Chunk{chunks[0], s2Chunk} {
		stored, err := st.Get(c.Key())
		require.NoError(t, err)
		assert.Equal(t, c, stored)
	}
}

func TestDirRequeue(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	chunks := sealChunks(t, newCodec(t), 2)

	st, err := store.NewDir(root, store.WithMaxChunks(1), store.WithQueueSize(16), store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	// chunks[0] is dropped and stored again while its first write might still be queued
	for range 10 {
		require.NoError(t, st.Put(chunks[0]))
		require.NoError(t, st.Put(chunks[1]))
		require.NoError(t, st.Put(chunks[0]))

		stored, err := st.Get(chunks[0].Key())
		require.NoError(t, err)
		assert.Equal(t, chunks[0], stored)
	}

	require.NoError(t, st.Close())

	assert.Equal(t, []string{must.Value(filepath.Rel(root, chunkPath(root, chunks[0])))(t)}, listFiles(t, root))
}

func TestDirRefresh(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	chunks := sealChunks(t, newCodec(t), 3)

	st, err := store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	for _, c := range chunks[:2] {
		require.NoError(t, st.Put(c))
	}

	require.NoError(t, st.Close())

	// make chunks[0] the oldest one on disk
	old := time.Now().Add(-time.Hour)

	for i, c := range chunks[:2] {
		modTime := old.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(chunkPath(root, c), modTime, modTime))
	}

	st, err = store.NewDir(root, store.WithMaxChunks(2), store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	// chunks[0] becomes the newest chunk, so chunks[1] is dropped first
	require.NoError(t, st.Put(chunks[0]))
	require.NoError(t, st.Put(chunks[2]))

	assert.True(t, st.Has(chunks[0].Key()))
	assert.False(t, st.Has(chunks[1].Key()))

	require.NoError(t, st.Close())

	assert.FileExists(t, chunkPath(root, chunks[0]))
	assert.NoFileExists(t, chunkPath(root, chunks[1]))

	// the refreshed age survives a reload
	info, err := os.Stat(chunkPath(root, chunks[0]))
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(old.Add(time.Minute)))
}

func TestDirAsWriterStore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	codec := must.Value(chunk.NewCodec(chunk.WithChunkSize(1000)))(t)

	data := bytes.Repeat([]byte("0123456789abcdef"), 10_000)

	st, err := store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	w := codec.NewWriter(st)

	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	manifest := must.Value(w.Manifest())(t)

	require.NoError(t, st.Close())

	st, err = store.NewDir(root, store.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	require.NoError(t, codec.Verify(st, manifest))

	r := must.Value(codec.NewReader(st, manifest))(t)

	actual, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, data, actual)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
