// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements chunkctl.
package main

import (
	"fmt"
	"os"

	"github.com/siderolabs/go-chunk/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chunkctl:", err)

		os.Exit(1)
	}
}
