// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/multiformats/go-varint"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/siderolabs/go-chunk"
)

const tmpSuffix = ".tmp"

// Dir stores chunks as files in a directory.
//
// Each chunk is stored at <root>/<compressor>/<hash[len(hash)-2:]>/<hash>, the file contains
// the uvarint-encoded uncompressed size followed by the compressed data.
//
// Writes are performed by a background goroutine, queued chunks are visible to Get and Has
// immediately. Write failures are reported by the next Put and by Close.
type Dir struct {
	// channel for persistence commands from Put to the persistence goroutine
	commandCh chan persistenceCommand

	// indexed chunks (persisted or queued)
	index map[chunk.Key]struct{}

	// chunks queued for writing
	pending map[chunk.Key]pendingChunk

	// first persistence failure
	err error

	root string

	// keys ordered from the oldest to the newest
	order []chunk.Key

	opt DirOptions

	// waitgroup to wait for persistence goroutine to finish
	wg sync.WaitGroup

	// serializes Put and Close, so that commands are queued in index order
	putMu sync.Mutex

	// synchronizing access to index, order, pending, gen, err
	mu sync.Mutex

	// write generation, incremented on each queued write
	gen uint64

	closed atomic.Bool
}

type pendingChunk struct {
	chunk chunk.Chunk
	gen   uint64
}

// NewDir opens (or creates) a chunk store in the directory root.
func NewDir(root string, opts ...DirOptionFunc) (*Dir, error) {
	d := &Dir{
		root:    root,
		opt:     defaultDirOptions(),
		index:   map[chunk.Key]struct{}{},
		pending: map[chunk.Key]pendingChunk{},
	}

	for _, o := range opts {
		if err := o(&d.opt); err != nil {
			return nil, err
		}
	}

	if root == "" {
		return nil, errors.New("store root should be set")
	}

	if d.opt.Logger == nil {
		d.opt.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	if err := d.load(); err != nil {
		return nil, err
	}

	d.run()

	return d, nil
}

// Put implements chunk.Store.
func (d *Dir) Put(c chunk.Chunk) error {
	key := c.Key()

	if err := validateKey(key); err != nil {
		return err
	}

	d.putMu.Lock()
	defer d.putMu.Unlock()

	if d.closed.Load() {
		return chunk.ErrClosed
	}

	d.mu.Lock()

	if d.err != nil {
		err := d.err
		d.mu.Unlock()

		return err
	}

	if _, ok := d.index[key]; ok {
		d.order = refresh(d.order, key)
		d.mu.Unlock()

		d.commandCh <- persistenceCommand{
			key:   key,
			touch: true,
		}

		return nil
	}

	d.gen++
	gen := d.gen

	d.index[key] = struct{}{}
	d.order = append(d.order, key)
	d.pending[key] = pendingChunk{chunk: c, gen: gen}

	var dropped []chunk.Key

	if d.opt.MaxChunks > 0 && len(d.order) > d.opt.MaxChunks {
		dropped = slices.Clone(d.order[:len(d.order)-d.opt.MaxChunks])

		for _, k := range dropped {
			delete(d.index, k)
			delete(d.pending, k)
		}

		d.order = slices.Delete(d.order, 0, len(dropped))
	}

	d.mu.Unlock()

	d.commandCh <- persistenceCommand{
		key:  key,
		data: encodeChunk(c),
		gen:  gen,
	}

	for _, k := range dropped {
		d.commandCh <- persistenceCommand{
			key:  k,
			drop: true,
		}
	}

	return nil
}

// Get implements chunk.Store.
func (d *Dir) Get(key chunk.Key) (chunk.Chunk, error) {
	d.mu.Lock()

	if p, ok := d.pending[key]; ok {
		d.mu.Unlock()

		return p.chunk, nil
	}

	_, ok := d.index[key]

	d.mu.Unlock()

	if !ok {
		return chunk.Chunk{}, fmt.Errorf("%w: %s", chunk.ErrNotFound, key)
	}

	data, err := os.ReadFile(d.chunkPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// dropped concurrently
			return chunk.Chunk{}, fmt.Errorf("%w: %s", chunk.ErrNotFound, key)
		}

		return chunk.Chunk{}, err
	}

	return decodeChunk(key, data)
}

// Has implements chunk.Store.
func (d *Dir) Has(key chunk.Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.index[key]

	return ok
}

// Len returns the number of chunks in the store.
func (d *Dir) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.index)
}

// Close stops accepting chunks and waits for queued chunks to be written.
func (d *Dir) Close() error {
	d.putMu.Lock()

	if d.closed.Swap(true) {
		d.putMu.Unlock()

		return nil
	}

	close(d.commandCh)

	d.putMu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.err
}

func (d *Dir) chunkPath(key chunk.Key) string {
	return filepath.Join(d.root, key.Compressor, key.Hash[len(key.Hash)-2:], key.Hash)
}

// keyOf returns the key of the chunk file at path, if path is a chunk file of the store.
func (d *Dir) keyOf(path string) (chunk.Key, bool) {
	key := chunk.Key{
		Compressor: filepath.Base(filepath.Dir(filepath.Dir(path))),
		Hash:       filepath.Base(path),
	}

	if validateKey(key) != nil || path != d.chunkPath(key) {
		return chunk.Key{}, false
	}

	return key, true
}

type indexedChunk struct {
	modTime time.Time
	key     chunk.Key
	path    string
}

func (d *Dir) load() error {
	var chunks []indexedChunk

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		if strings.HasSuffix(path, tmpSuffix) {
			d.opt.Logger.Warn("removing stale temporary file", zap.String("path", path))

			if err = os.Remove(path); err != nil {
				d.opt.Logger.Error("failed to remove temporary file", zap.String("path", path), zap.Error(err))
			}

			return nil
		}

		key, ok := d.keyOf(path)
		if !ok {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		chunks = append(chunks, indexedChunk{
			key:     key,
			path:    path,
			modTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index store: %w", err)
	}

	// sort chunks by age, from oldest to newest
	slices.SortFunc(chunks, func(a, b indexedChunk) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}

		if c := cmp.Compare(a.key.Compressor, b.key.Compressor); c != 0 {
			return c
		}

		return cmp.Compare(a.key.Hash, b.key.Hash)
	})

	if d.opt.MaxChunks > 0 && len(chunks) > d.opt.MaxChunks {
		excess := chunks[:len(chunks)-d.opt.MaxChunks]

		for _, c := range excess {
			d.opt.Logger.Warn("dropping chunk, as it is beyond the limit of available chunks", zap.String("path", c.path))

			if err = os.Remove(c.path); err != nil {
				d.opt.Logger.Error("failed to remove chunk", zap.String("path", c.path), zap.Error(err))
			}
		}

		chunks = slices.Delete(chunks, 0, len(excess))
	}

	for _, c := range chunks {
		d.index[c.key] = struct{}{}
	}

	d.order = xslices.Map(chunks, func(c indexedChunk) chunk.Key {
		return c.key
	})

	d.opt.Logger.Debug("loaded chunk store",
		zap.String("root", d.root),
		zap.Int("num_chunks", len(chunks)),
	)

	return nil
}

func encodeChunk(c chunk.Chunk) []byte {
	header := varint.ToUvarint(uint64(c.Size))

	data := make([]byte, 0, len(header)+len(c.Compressed))
	data = append(data, header...)

	return append(data, c.Compressed...)
}

func decodeChunk(key chunk.Key, data []byte) (chunk.Chunk, error) {
	size, n, err := varint.FromUvarint(data)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("chunk %s: invalid header: %w", key, err)
	}

	return chunk.Chunk{
		Hash:       key.Hash,
		Compressor: key.Compressor,
		Size:       int64(size),
		Compressed: data[n:],
	}, nil
}
