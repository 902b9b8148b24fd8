// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package store implements chunk stores.
package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/siderolabs/go-chunk"
)

// Memory keeps chunks in memory.
//
// If maxChunks is set, the oldest chunks are evicted first. Put of a stored chunk makes it the newest one.
type Memory struct {
	chunks map[chunk.Key]chunk.Chunk

	// keys ordered from the oldest to the newest
	order []chunk.Key

	mu sync.RWMutex

	maxChunks int
}

// NewMemory creates an in-memory store, maxChunks of zero means no limit.
func NewMemory(maxChunks int) *Memory {
	return &Memory{
		chunks:    map[chunk.Key]chunk.Chunk{},
		maxChunks: maxChunks,
	}
}

// Put implements chunk.Store.
func (m *Memory) Put(c chunk.Chunk) error {
	key := c.Key()

	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chunks[key]; ok {
		m.order = refresh(m.order, key)

		return nil
	}

	c.Compressed = slices.Clone(c.Compressed)

	m.chunks[key] = c
	m.order = append(m.order, key)

	if m.maxChunks > 0 && len(m.order) > m.maxChunks {
		for _, evicted := range m.order[:len(m.order)-m.maxChunks] {
			delete(m.chunks, evicted)
		}

		m.order = slices.Delete(m.order, 0, len(m.order)-m.maxChunks)
	}

	return nil
}

// Get implements chunk.Store.
//
// The returned chunk shares memory with the store, it should not be modified.
func (m *Memory) Get(key chunk.Key) (chunk.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chunks[key]
	if !ok {
		return chunk.Chunk{}, fmt.Errorf("%w: %s", chunk.ErrNotFound, key)
	}

	return c, nil
}

// Has implements chunk.Store.
func (m *Memory) Has(key chunk.Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.chunks[key]

	return ok
}

// Len returns the number of chunks in the store.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.chunks)
}

// CompressedSize reports the overall size of the compressed chunks.
func (m *Memory) CompressedSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var size int64

	for _, c := range m.chunks {
		size += int64(len(c.Compressed))
	}

	return size
}

// refresh moves the key to the end of order.
func refresh(order []chunk.Key, key chunk.Key) []chunk.Key {
	if idx := slices.Index(order, key); idx >= 0 {
		order = slices.Delete(order, idx, idx+1)
	}

	return append(order, key)
}

func validateKey(key chunk.Key) error {
	if err := validateName("compressor", key.Compressor, 1); err != nil {
		return err
	}

	return validateName("hash", key.Hash, 2)
}

// validateName checks that the name can be used as a file name.
func validateName(kind, name string, minLen int) error {
	if len(name) < minLen {
		return fmt.Errorf("invalid chunk %s %q: too short", kind, name)
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("invalid chunk %s %q: unexpected character %q", kind, name, r)
		}
	}

	return nil
}
