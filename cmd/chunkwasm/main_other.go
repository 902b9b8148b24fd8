// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !(js && wasm)

// Package main implements the chunk functions WebAssembly module.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "chunkwasm should be built with GOOS=js GOARCH=wasm")

	os.Exit(2)
}
