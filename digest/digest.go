// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package digest implements chunk hashers.
package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	_ "github.com/multiformats/go-multihash/register/blake3" // register blake3 multihash
	"lukechampine.com/blake3"
)

// Multihash codes supported by CID.
const (
	SHA256 = multihash.SHA2_256
	BLAKE3 = multihash.BLAKE3
)

// CID hashes chunks into CIDv1 strings with the raw codec.
//
// CID strings are base32 lowercase, so they are safe to use as file names.
type CID struct {
	code uint64
}

// NewCID creates a CID hasher for the multihash code.
func NewCID(code uint64) (*CID, error) {
	if _, err := multihash.Sum(nil, code, -1); err != nil {
		return nil, fmt.Errorf("unsupported multihash %#x: %w", code, err)
	}

	return &CID{
		code: code,
	}, nil
}

// Name of the hash function.
func (h *CID) Name() string {
	return "cid-" + multihash.Codes[h.code]
}

// Hash returns the CIDv1 string of the data.
func (h *CID) Hash(src []byte) string {
	sum, err := multihash.Sum(src, h.code, -1)
	if err != nil {
		// the code was verified in NewCID
		panic(err)
	}

	return cid.NewCidV1(cid.Raw, sum).String()
}

// Blake3 hashes chunks into hex-encoded BLAKE3-256 digests.
type Blake3 struct{}

// Name of the hash function.
func (Blake3) Name() string {
	return "blake3"
}

// Hash returns the hex digest of the data.
func (Blake3) Hash(src []byte) string {
	sum := blake3.Sum256(src)

	return hex.EncodeToString(sum[:])
}

// Constant ignores the input and always returns the same value.
//
// Constant is useful as a stub, it can't be used to address chunks.
type Constant string

// Name of the hash function.
func (Constant) Name() string {
	return "none"
}

// Hash returns the constant.
func (c Constant) Hash([]byte) string {
	return string(c)
}

// Describe decodes a CID string produced by CID hasher into a human-readable form.
func Describe(s string) (string, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return "", err
	}

	decoded, err := multihash.Decode(id.Hash())
	if err != nil {
		return "", err
	}

	codec := "raw"
	if id.Type() != cid.Raw {
		codec = fmt.Sprintf("%#x", id.Type())
	}

	return fmt.Sprintf("cidv%d %s %s (%d bytes) %s", id.Version(), codec, decoded.Name, decoded.Length, hex.EncodeToString(decoded.Digest)), nil
}
