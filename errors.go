// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunk

import "errors"

// ErrClosed is raised on read/write to closed Writer/Reader.
var ErrClosed = errors.New("chunk stream closed")

// ErrSeekBeforeStart is raised when seek goes beyond start of the stream.
var ErrSeekBeforeStart = errors.New("seek before start")

// ErrChunkTooLarge is raised when a chunk (compressed or decompressed) exceeds MaxChunkSize.
var ErrChunkTooLarge = errors.New("chunk too large")

// ErrHashMismatch is raised when decompressed chunk contents don't match the chunk hash.
var ErrHashMismatch = errors.New("chunk hash mismatch")

// ErrNotFound is returned by Store implementations when the chunk is not present.
var ErrNotFound = errors.New("chunk not found")

// ErrCompressorMismatch is raised when a manifest or a chunk was produced with a different compressor or hasher.
var ErrCompressorMismatch = errors.New("compressor or hasher mismatch")

// ErrNotClosed is returned when the manifest is requested before the Writer is closed.
var ErrNotClosed = errors.New("writer is not closed yet")
