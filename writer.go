// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunk

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/siderolabs/gen/optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stats reports Writer progress.
type Stats struct {
	Bytes           int64
	CompressedBytes int64

	Chunks             int
	DeduplicatedChunks int
}

// Writer splits the stream into fixed-size chunks, seals them and puts them into the Store.
//
// Chunks are sealed concurrently, the manifest keeps the stream order.
type Writer struct {
	codec *Codec
	store Store

	eg errgroup.Group

	// the manifest, available after Close
	manifest optional.Optional[Manifest]

	// first sealing failure
	err error

	// pending (not yet sealed) data, grows up to ChunkSize
	data []byte

	// chunk references, in stream order; hashes are filled in by sealing goroutines
	refs []Ref

	stats Stats

	// synchronizing access to data, off, manifest
	mu sync.Mutex

	// synchronizing access to refs, stats, err
	refsMu sync.Mutex

	// offset of the first byte of the pending data
	off int64

	closed atomic.Bool
}

// NewWriter creates a Writer storing chunks into the store.
func (c *Codec) NewWriter(store Store) *Writer {
	w := &Writer{
		codec: c,
		store: store,
		data:  make([]byte, 0, c.opt.InitialCapacity),
	}

	w.eg.SetLimit(c.opt.Concurrency)

	return w
}

// Write implements io.Writer interface.
func (w *Writer) Write(p []byte) (int, error) {
	l := len(p)
	if l == 0 {
		return 0, nil
	}

	if err := w.failure(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return 0, ErrClosed
	}

	chunkSize := w.codec.opt.ChunkSize

	if len(w.data)+l > cap(w.data) && cap(w.data) < chunkSize {
		// grow buffer to ensure write fits, but limit with chunk size
		size := cap(w.data) * 2
		for size < len(w.data)+l {
			size *= 2
		}

		size = min(size, chunkSize)

		data := make([]byte, len(w.data), size)
		copy(data, w.data)
		w.data = data
	}

	var n int
	for n < l {
		nn := min(chunkSize-len(w.data), len(p))

		w.data = append(w.data, p[:nn]...)

		n += nn
		p = p[nn:]

		if len(w.data) == chunkSize {
			w.seal(w.data)

			// sealed data is owned by the sealing goroutine now
			w.data = make([]byte, 0, chunkSize)
		}
	}

	return n, nil
}

// Close seals the trailing chunk and waits for all chunks to be stored.
//
// Close returns the first sealing or storage failure, repeated calls return it as well.
func (w *Writer) Close() error {
	w.mu.Lock()

	if w.closed.Swap(true) {
		w.mu.Unlock()

		// nothing is scheduled after the first Close, so this waits for it
		return w.eg.Wait()
	}

	if len(w.data) > 0 {
		w.seal(w.data)
		w.data = nil
	}

	size := w.off

	w.mu.Unlock()

	if err := w.eg.Wait(); err != nil {
		return err
	}

	w.refsMu.Lock()
	manifest := Manifest{
		Version:    ManifestVersion,
		Compressor: w.codec.CompressorName(),
		Hasher:     w.codec.HasherName(),
		ChunkSize:  w.codec.opt.ChunkSize,
		Size:       size,
		Chunks:     append([]Ref(nil), w.refs...),
	}
	stats := w.stats
	w.refsMu.Unlock()

	if manifest.Chunks == nil {
		manifest.Chunks = []Ref{}
	}

	w.mu.Lock()
	w.manifest = optional.Some(manifest)
	w.mu.Unlock()

	w.codec.opt.Logger.Debug("stream sealed",
		zap.Int64("size", stats.Bytes),
		zap.Int64("compressed_size", stats.CompressedBytes),
		zap.Int("chunks", stats.Chunks),
		zap.Int("deduplicated_chunks", stats.DeduplicatedChunks),
	)

	return nil
}

// Manifest returns the manifest of the written stream.
//
// Manifest is available only after successful Close, after a failure
// Manifest returns the failure.
func (w *Writer) Manifest() (Manifest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.manifest.IsPresent() {
		if err := w.failure(); err != nil {
			return Manifest{}, err
		}

		return Manifest{}, ErrNotClosed
	}

	return w.manifest.ValueOrZero(), nil
}

// Stats returns the number of chunks and bytes sealed so far.
func (w *Writer) Stats() Stats {
	w.refsMu.Lock()
	defer w.refsMu.Unlock()

	return w.stats
}

// seal schedules sealing of the data.
//
// seal should be called with w.mu locked.
func (w *Writer) seal(data []byte) {
	off := w.off
	w.off += int64(len(data))

	w.refsMu.Lock()
	idx := len(w.refs)
	w.refs = append(w.refs, Ref{
		Offset: off,
		Size:   int64(len(data)),
	})
	w.refsMu.Unlock()

	w.eg.Go(func() error {
		err := w.sealChunk(idx, off, data)
		if err != nil {
			w.refsMu.Lock()

			if w.err == nil {
				w.err = err
			}

			w.refsMu.Unlock()
		}

		return err
	})
}

func (w *Writer) sealChunk(idx int, off int64, data []byte) error {
	ch, err := w.codec.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to seal chunk at offset %d: %w", off, err)
	}

	deduplicated := w.store.Has(ch.Key())

	// a known chunk is not rewritten, but Put keeps it from being evicted before newer chunks
	if err = w.store.Put(ch); err != nil {
		return fmt.Errorf("failed to store chunk %s: %w", ch.Hash, err)
	}

	w.refsMu.Lock()
	w.refs[idx].Hash = ch.Hash
	w.refs[idx].CompressedSize = int64(len(ch.Compressed))

	w.stats.Chunks++
	w.stats.Bytes += ch.Size
	w.stats.CompressedBytes += int64(len(ch.Compressed))

	if deduplicated {
		w.stats.DeduplicatedChunks++
	}
	w.refsMu.Unlock()

	w.codec.opt.Logger.Debug("sealed chunk",
		zap.String("hash", ch.Hash),
		zap.Int64("offset", off),
		zap.Int64("size", ch.Size),
		zap.Int("compressed_size", len(ch.Compressed)),
		zap.Bool("deduplicated", deduplicated),
	)

	return nil
}

func (w *Writer) failure() error {
	w.refsMu.Lock()
	defer w.refsMu.Unlock()

	return w.err
}
