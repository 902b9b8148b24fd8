// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-chunk"
)

// newQueuedDir returns a Dir without the persistence goroutine, with c queued for writing as generation gen.
func newQueuedDir(t *testing.T, c chunk.Chunk, gen uint64) *Dir {
	t.Helper()

	d := &Dir{
		root:    t.TempDir(),
		opt:     defaultDirOptions(),
		index:   map[chunk.Key]struct{}{},
		pending: map[chunk.Key]pendingChunk{},
	}

	d.opt.Logger = zaptest.NewLogger(t)

	d.index[c.Key()] = struct{}{}
	d.order = []chunk.Key{c.Key()}
	d.pending[c.Key()] = pendingChunk{chunk: c, gen: gen}

	return d
}

func TestWriteGeneration(t *testing.T) {
	t.Parallel()

	c := chunk.Chunk{
		Hash:       "bafkreigeneration",
		Compressor: "zstd",
		Compressed: []byte("data"),
		Size:       4,
	}

	t.Run("stale write", func(t *testing.T) {
		t.Parallel()

		// c was dropped and queued again as generation 2
		d := newQueuedDir(t, c, 2)
		path := d.chunkPath(c.Key())

		d.write(path, persistenceCommand{key: c.Key(), data: encodeChunk(c), gen: 1})

		assert.Contains(t, d.pending, c.Key())

		// the queued drop of generation 1
		require.NoError(t, os.Remove(path))

		stored, err := d.Get(c.Key())
		require.NoError(t, err)
		assert.Equal(t, c, stored)

		d.write(path, persistenceCommand{key: c.Key(), data: encodeChunk(c), gen: 2})

		assert.NotContains(t, d.pending, c.Key())
		assert.FileExists(t, path)

		stored, err = d.Get(c.Key())
		require.NoError(t, err)
		assert.Equal(t, c, stored)
	})

	t.Run("stale write failure", func(t *testing.T) {
		t.Parallel()

		d := newQueuedDir(t, c, 2)
		path := d.chunkPath(c.Key())

		require.NoError(t, os.WriteFile(filepath.Join(d.root, c.Compressor), []byte("in the way"), 0o644))

		d.write(path, persistenceCommand{key: c.Key(), data: encodeChunk(c), gen: 1})

		require.Error(t, d.err)

		// the queued chunk is still served
		assert.True(t, d.Has(c.Key()))
		assert.Contains(t, d.pending, c.Key())

		d.write(path, persistenceCommand{key: c.Key(), data: encodeChunk(c), gen: 2})

		assert.False(t, d.Has(c.Key()))
		assert.NotContains(t, d.pending, c.Key())
		assert.Empty(t, d.order)
	})
}
