// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package passthrough implements an identity chunk "compressor".
package passthrough

// Compressor returns the input unchanged.
type Compressor struct{}

// Name of the compression algorithm.
func (Compressor) Name() string {
	return "none"
}

// Compress copies src to dest.
func (Compressor) Compress(src, dest []byte) ([]byte, error) {
	return append(dest, src...), nil
}

// Decompress copies src to dest.
func (Compressor) Decompress(src, dest []byte) ([]byte, error) {
	return append(dest, src...), nil
}

// DecompressedSize is the size of src.
func (Compressor) DecompressedSize(src []byte) (int64, error) {
	return int64(len(src)), nil
}
