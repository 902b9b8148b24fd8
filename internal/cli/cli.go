// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cli implements chunkctl commands.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/go-chunk/internal/profile"
)

type rootOptions struct {
	logger *zap.Logger

	debug bool
}

// NewRootCommand builds the chunkctl command tree.
func NewRootCommand() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "chunkctl",
		Short:         "Split, compress and hash streams into content-addressed chunks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zapcore.WarnLevel
			if opts.debug {
				level = zapcore.DebugLevel
			}

			opts.logger = zap.New(zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(cmd.ErrOrStderr()),
				level,
			))
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newSplitCommand(&opts),
		newJoinCommand(&opts),
		newVerifyCommand(&opts),
		newHashCommand(),
		newCompressCommand(),
		newDecompressCommand(),
		newInspectCommand(),
	)

	return cmd
}

func addCodecFlags(cmd *cobra.Command, compressor, hasher *string) {
	if compressor != nil {
		cmd.Flags().StringVar(compressor, "compressor", profile.DefaultCompressor, "compressor, one of "+strings.Join(profile.Compressors(), ", "))
	}

	if hasher != nil {
		cmd.Flags().StringVar(hasher, "hasher", profile.DefaultHasher, "hasher, one of "+strings.Join(profile.Hashers(), ", "))
	}
}

// openInput opens the file argument, "-" or no argument reads stdin.
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}

	return os.Open(args[0])
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// openOutput creates the output file, empty path or "-" writes to stdout.
func openOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}

	return os.Create(path)
}
