// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/siderolabs/go-chunk"
	"github.com/siderolabs/go-chunk/digest"
	"github.com/siderolabs/go-chunk/internal/profile"
)

func newHashCommand() *cobra.Command {
	var hasher string

	cmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Print the hash of a single chunk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := profile.Codec(profile.DefaultCompressor, hasher)
			if err != nil {
				return err
			}

			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), codec.HashChunk(data))

			return nil
		},
	}

	addCodecFlags(cmd, nil, &hasher)

	return cmd
}

func newCompressCommand() *cobra.Command {
	var compressor, outPath string

	cmd := &cobra.Command{
		Use:   "compress [file]",
		Short: "Compress a single chunk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transform(cmd, args, compressor, outPath, (*chunk.Codec).CompressChunk)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "output path (default stdout)")
	addCodecFlags(cmd, &compressor, nil)

	return cmd
}

func newDecompressCommand() *cobra.Command {
	var compressor, outPath string

	cmd := &cobra.Command{
		Use:   "decompress [file]",
		Short: "Decompress a single chunk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transform(cmd, args, compressor, outPath, (*chunk.Codec).DecompressChunk)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "output path (default stdout)")
	addCodecFlags(cmd, &compressor, nil)

	return cmd
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <cid>",
		Short: "Decode a CID chunk hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, err := digest.Describe(args[0])
			if err != nil {
				return fmt.Errorf("failed to decode %q: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), description)

			return nil
		},
	}
}

func transform(cmd *cobra.Command, args []string, compressor, outPath string, fn func(*chunk.Codec, []byte) ([]byte, error)) error {
	codec, err := profile.Codec(compressor, profile.DefaultHasher)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	result, err := fn(codec, data)
	if err != nil {
		return err
	}

	out, err := openOutput(cmd, outPath)
	if err != nil {
		return err
	}

	if _, err = out.Write(result); err != nil {
		return errors.Join(err, out.Close())
	}

	return out.Close()
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	in, err := openInput(cmd, args)
	if err != nil {
		return nil, err
	}

	defer in.Close() //nolint:errcheck

	return io.ReadAll(in)
}
