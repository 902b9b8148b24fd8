// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunk

import (
	"encoding/json"
	"fmt"
)

// ManifestVersion is the current version of the manifest format.
const ManifestVersion = 1

// Manifest describes how a stream was split into chunks.
type Manifest struct {
	Compressor string `json:"compressor"`
	Hasher     string `json:"hasher"`

	Chunks []Ref `json:"chunks"`

	Version   int   `json:"version"`
	ChunkSize int   `json:"chunk_size"`
	Size      int64 `json:"size"`
}

// Marshal encodes the manifest as JSON.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Validate checks the manifest for consistency: chunks should be contiguous and cover
// exactly Size bytes.
func (m Manifest) Validate() error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	var off int64

	for i, ref := range m.Chunks {
		if ref.Hash == "" {
			return fmt.Errorf("chunk %d: empty hash", i)
		}

		if ref.Offset != off {
			return fmt.Errorf("chunk %d: offset %d, expected %d", i, ref.Offset, off)
		}

		if ref.Size <= 0 {
			return fmt.Errorf("chunk %d: invalid size %d", i, ref.Size)
		}

		off += ref.Size
	}

	if off != m.Size {
		return fmt.Errorf("chunks cover %d bytes, manifest size is %d", off, m.Size)
	}

	return nil
}

// ParseManifest decodes and validates a JSON manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest

	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	return m, nil
}
