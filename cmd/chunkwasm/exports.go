// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-chunk"
	"github.com/siderolabs/go-chunk/internal/profile"
)

// exports are the functions exposed to the host.
type exports struct {
	codec  *chunk.Codec
	logger *zap.Logger
}

func newExports(logger *zap.Logger, compressor, hasher string) (*exports, error) {
	codec, err := profile.Codec(compressor, hasher, chunk.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &exports{
		codec:  codec,
		logger: logger,
	}, nil
}

// start is called once the module is instantiated.
func (e *exports) start() {
	e.logger.Info("chunk module loaded")
	e.logger.Info("chunk functions registered",
		zap.Strings("functions", []string{"compressChunk", "decompressChunk", "hashChunk"}),
		zap.String("compressor", e.codec.CompressorName()),
		zap.String("hasher", e.codec.HasherName()),
	)
}

func (e *exports) compressChunk(in []byte) ([]byte, error) {
	return e.codec.CompressChunk(in)
}

func (e *exports) decompressChunk(in []byte) ([]byte, error) {
	return e.codec.DecompressChunk(in)
}

func (e *exports) hashChunk(in []byte) (string, error) {
	return e.codec.HashChunk(in), nil
}
