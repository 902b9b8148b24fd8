// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunk

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/siderolabs/gen/optional"
	"golang.org/x/sync/errgroup"
)

// Reader implements seekable reader over a chunked stream described by a Manifest.
//
// Reader is not safe to be used with concurrent Read/Seek operations.
type Reader struct {
	store Store
	codec *Codec

	// if a chunk is decompressed, chunk is set to its index in manifest.Chunks
	// decompressedChunk is used to store the decompressed chunk, and also re-used as a decompression buffer
	chunk             optional.Optional[int]
	decompressedChunk []byte

	manifest Manifest

	off int64

	closed atomic.Bool
}

// NewReader returns a Reader reassembling the stream described by the manifest.
func (c *Codec) NewReader(store Store, manifest Manifest) (*Reader, error) {
	if err := c.checkManifest(manifest); err != nil {
		return nil, err
	}

	return &Reader{
		store:    store,
		codec:    c,
		manifest: manifest,
	}, nil
}

// Size returns the size of the reassembled stream.
func (r *Reader) Size() int64 {
	return r.manifest.Size
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.closed.Load() {
		return n, ErrClosed
	}

	if r.off >= r.manifest.Size {
		return n, io.EOF
	}

	if len(p) == 0 {
		return n, nil
	}

	idx, present := r.currentChunk()
	if !present {
		idx = r.seekChunk()

		if err = r.loadChunk(idx); err != nil {
			return n, err
		}
	}

	ref := r.manifest.Chunks[idx]

	// how much we can read from the current chunk
	nn := min(ref.Offset+ref.Size-r.off, int64(len(p)))

	copy(p, r.decompressedChunk[r.off-ref.Offset:r.off-ref.Offset+nn])

	n = int(nn)
	r.off += nn

	return n, nil
}

// Close implements io.Closer.
func (r *Reader) Close() error {
	if !r.closed.Swap(true) {
		r.resetChunk()
		r.decompressedChunk = nil
	}

	return nil
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	newOff := r.off

	switch whence {
	case io.SeekCurrent:
		newOff += offset
	case io.SeekEnd:
		newOff = r.manifest.Size + offset
	case io.SeekStart:
		newOff = offset
	default:
		return r.off, fmt.Errorf("invalid whence: %d", whence)
	}

	if newOff < 0 {
		return r.off, ErrSeekBeforeStart
	}

	if newOff > r.manifest.Size {
		newOff = r.manifest.Size
	}

	r.off = newOff

	return r.off, nil
}

// currentChunk returns the index of the decompressed chunk if it contains the current reading offset.
func (r *Reader) currentChunk() (int, bool) {
	if !r.chunk.IsPresent() {
		return 0, false
	}

	idx := r.chunk.ValueOrZero()
	ref := r.manifest.Chunks[idx]

	if r.off < ref.Offset || r.off >= ref.Offset+ref.Size {
		// we fell out of the chunk
		r.resetChunk()

		return 0, false
	}

	return idx, true
}

// seekChunk finds a chunk that contains the current reading offset.
//
// seekChunk assumes that r.off < r.manifest.Size.
func (r *Reader) seekChunk() int {
	return sort.Search(len(r.manifest.Chunks), func(i int) bool {
		ref := r.manifest.Chunks[i]

		return ref.Offset+ref.Size > r.off
	})
}

func (r *Reader) loadChunk(idx int) error {
	ref := r.manifest.Chunks[idx]

	ch, err := r.store.Get(Key{Compressor: r.manifest.Compressor, Hash: ref.Hash})
	if err != nil {
		return fmt.Errorf("failed to fetch chunk %s: %w", ref.Hash, err)
	}

	if ch.Size != ref.Size {
		return fmt.Errorf("%w: stored chunk %s has size %d, manifest expects %d", ErrHashMismatch, ref.Hash, ch.Size, ref.Size)
	}

	r.decompressedChunk, err = r.codec.Open(ch, r.decompressedChunk[:0])
	if err != nil {
		r.resetChunk()

		return err
	}

	r.chunk = optional.Some(idx)

	return nil
}

// resetChunk resets the current chunk and decompressed chunk.
func (r *Reader) resetChunk() {
	r.chunk = optional.None[int]()

	if r.decompressedChunk != nil {
		r.decompressedChunk = r.decompressedChunk[:0]
	}
}

// Verify checks that every chunk referenced by the manifest is present in the store,
// decompresses to the expected size and matches its hash.
func (c *Codec) Verify(store Store, manifest Manifest) error {
	if err := c.checkManifest(manifest); err != nil {
		return err
	}

	var eg errgroup.Group

	eg.SetLimit(c.opt.Concurrency)

	for i, ref := range manifest.Chunks {
		eg.Go(func() error {
			ch, err := store.Get(Key{Compressor: manifest.Compressor, Hash: ref.Hash})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}

			if ch.Size != ref.Size {
				return fmt.Errorf("chunk %d: %w: size %d, expected %d", i, ErrHashMismatch, ch.Size, ref.Size)
			}

			if _, err = c.Open(ch, nil); err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}

			return nil
		})
	}

	return eg.Wait()
}

func (c *Codec) checkManifest(manifest Manifest) error {
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	if manifest.Compressor != c.CompressorName() || manifest.Hasher != c.HasherName() {
		return fmt.Errorf("%w: manifest uses %s/%s, codec uses %s/%s",
			ErrCompressorMismatch, manifest.Compressor, manifest.Hasher, c.CompressorName(), c.HasherName())
	}

	return nil
}
