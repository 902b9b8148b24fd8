// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build js && wasm

// Package main implements the chunk functions WebAssembly module.
//
// The module registers compressChunk, decompressChunk and hashChunk on the global object.
// Each function takes a Uint8Array; failures are returned as Error instances.
package main

import (
	"errors"
	"syscall/js"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/go-chunk/internal/profile"
)

var errArguments = errors.New("expected a single Uint8Array argument")

func main() {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	e, err := newExports(logger, profile.DefaultCompressor, profile.DefaultHasher)
	if err != nil {
		logger.Fatal("failed to initialize chunk functions", zap.Error(err))
	}

	global := js.Global()

	global.Set("compressChunk", bytesFunc(e.compressChunk))
	global.Set("decompressChunk", bytesFunc(e.decompressChunk))
	global.Set("hashChunk", stringFunc(e.hashChunk))

	e.start()

	select {}
}

func bytesFunc(fn func([]byte) ([]byte, error)) js.Func {
	return js.FuncOf(func(_ js.Value, args []js.Value) any {
		in, err := argument(args)
		if err != nil {
			return jsError(err)
		}

		out, err := fn(in)
		if err != nil {
			return jsError(err)
		}

		arr := js.Global().Get("Uint8Array").New(len(out))
		js.CopyBytesToJS(arr, out)

		return arr
	})
}

func stringFunc(fn func([]byte) (string, error)) js.Func {
	return js.FuncOf(func(_ js.Value, args []js.Value) any {
		in, err := argument(args)
		if err != nil {
			return jsError(err)
		}

		out, err := fn(in)
		if err != nil {
			return jsError(err)
		}

		return out
	})
}

func argument(args []js.Value) ([]byte, error) {
	if len(args) != 1 || !args[0].InstanceOf(js.Global().Get("Uint8Array")) {
		return nil, errArguments
	}

	in := make([]byte, args[0].Get("length").Int())
	js.CopyBytesToGo(in, args[0])

	return in, nil
}

func jsError(err error) js.Value {
	return js.Global().Get("Error").New(err.Error())
}
