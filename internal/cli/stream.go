// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/go-chunk"
	"github.com/siderolabs/go-chunk/internal/profile"
	"github.com/siderolabs/go-chunk/store"
)

func newSplitCommand(root *rootOptions) *cobra.Command {
	var (
		storePath, manifestPath string
		compressor, hasher      string
		chunkSize, concurrency  int
		maxChunks               int
	)

	cmd := &cobra.Command{
		Use:   "split [file]",
		Short: "Split a file into compressed chunks and write the manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !profile.ContentAddressed(hasher) {
				return fmt.Errorf("hasher %q can't address chunks", hasher)
			}

			codec, err := profile.Codec(compressor, hasher,
				chunk.WithChunkSize(chunkSize),
				chunk.WithConcurrency(concurrency),
				chunk.WithLogger(root.logger),
			)
			if err != nil {
				return err
			}

			st, err := store.NewDir(storePath, store.WithMaxChunks(maxChunks), store.WithLogger(root.logger))
			if err != nil {
				return err
			}

			defer func() {
				err = errors.Join(err, st.Close())
			}()

			in, err := openInput(cmd, args)
			if err != nil {
				return err
			}

			defer in.Close() //nolint:errcheck

			w := codec.NewWriter(st)

			if _, err = io.Copy(w, in); err != nil {
				return errors.Join(err, w.Close())
			}

			if err = w.Close(); err != nil {
				return err
			}

			manifest, err := w.Manifest()
			if err != nil {
				return err
			}

			stats := w.Stats()

			root.logger.Info("split complete",
				zap.Int64("size", manifest.Size),
				zap.Int("chunks", stats.Chunks),
				zap.Int("deduplicated_chunks", stats.DeduplicatedChunks),
				zap.Int64("compressed_size", stats.CompressedBytes),
			)

			return writeManifest(cmd, manifestPath, manifest)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "chunk store directory")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest output path (default stdout)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1<<20, "chunk size in bytes")
	cmd.Flags().IntVar(&concurrency, "concurrency", runtime.GOMAXPROCS(0), "number of chunks sealed concurrently")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "maximum number of chunks to keep in the store (0 is unlimited)")
	addCodecFlags(cmd, &compressor, &hasher)

	cmd.MarkFlagRequired("store") //nolint:errcheck

	return cmd
}

func newJoinCommand(root *rootOptions) *cobra.Command {
	var storePath, manifestPath, outPath string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Reassemble a file from the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			codec, manifest, st, err := openManifest(root, storePath, manifestPath)
			if err != nil {
				return err
			}

			defer func() {
				err = errors.Join(err, st.Close())
			}()

			r, err := codec.NewReader(st, manifest)
			if err != nil {
				return err
			}

			defer r.Close() //nolint:errcheck

			out, err := openOutput(cmd, outPath)
			if err != nil {
				return err
			}

			if _, err = io.Copy(out, r); err != nil {
				return errors.Join(err, out.Close())
			}

			return out.Close()
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "chunk store directory")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest path")
	cmd.Flags().StringVar(&outPath, "out", "", "output path (default stdout)")

	cmd.MarkFlagRequired("store")    //nolint:errcheck
	cmd.MarkFlagRequired("manifest") //nolint:errcheck

	return cmd
}

func newVerifyCommand(root *rootOptions) *cobra.Command {
	var storePath, manifestPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every chunk of the manifest is present and intact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			codec, manifest, st, err := openManifest(root, storePath, manifestPath)
			if err != nil {
				return err
			}

			defer func() {
				err = errors.Join(err, st.Close())
			}()

			if err = codec.Verify(st, manifest); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d chunks, %d bytes\n", len(manifest.Chunks), manifest.Size)

			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "chunk store directory")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest path")

	cmd.MarkFlagRequired("store")    //nolint:errcheck
	cmd.MarkFlagRequired("manifest") //nolint:errcheck

	return cmd
}

func openManifest(root *rootOptions, storePath, manifestPath string) (*chunk.Codec, chunk.Manifest, *store.Dir, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, chunk.Manifest{}, nil, err
	}

	manifest, err := chunk.ParseManifest(data)
	if err != nil {
		return nil, chunk.Manifest{}, nil, err
	}

	opts := []chunk.OptionFunc{chunk.WithLogger(root.logger)}

	if manifest.ChunkSize > 0 {
		opts = append(opts,
			chunk.WithChunkSize(manifest.ChunkSize),
			chunk.WithMaxChunkSize(max(manifest.ChunkSize, 64<<20)),
		)
	}

	codec, err := profile.Codec(manifest.Compressor, manifest.Hasher, opts...)
	if err != nil {
		return nil, chunk.Manifest{}, nil, err
	}

	st, err := store.NewDir(storePath, store.WithLogger(root.logger))
	if err != nil {
		return nil, chunk.Manifest{}, nil, err
	}

	return codec, manifest, st, nil
}

func writeManifest(cmd *cobra.Command, path string, manifest chunk.Manifest) error {
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}

	out, err := openOutput(cmd, path)
	if err != nil {
		return err
	}

	if _, err = out.Write(append(data, '\n')); err != nil {
		return errors.Join(err, out.Close())
	}

	return out.Close()
}
