// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siderolabs/go-chunk"
)

type persistenceCommand struct {
	key  chunk.Key
	data []byte

	// generation of the pending write
	gen uint64

	drop  bool
	touch bool
}

func (d *Dir) run() {
	d.commandCh = make(chan persistenceCommand, d.opt.QueueSize)

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		d.runPersistence(d.commandCh)
	}()
}

func (d *Dir) runPersistence(ch <-chan persistenceCommand) {
	var (
		timerC <-chan time.Time
		timer  *time.Timer
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	setTimer := func() {
		interval := d.opt.NextInterval()

		if timer == nil {
			timer = time.NewTimer(interval)
			timerC = timer.C
		} else {
			timer.Reset(interval)
		}
	}

	if d.opt.SweepInterval > 0 {
		setTimer()
	}

	for {
		select {
		case command, ok := <-ch:
			if !ok {
				return
			}

			path := d.chunkPath(command.key)

			switch {
			case command.drop:
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					d.opt.Logger.Error("failed to remove chunk", zap.String("path", path), zap.Error(err))
				} else {
					d.opt.Logger.Debug("dropped old chunk", zap.String("path", path))
				}
			case command.touch:
				now := time.Now()

				// the file age orders chunks on load
				if err := os.Chtimes(path, now, now); err != nil && !errors.Is(err, fs.ErrNotExist) {
					d.opt.Logger.Warn("failed to refresh chunk", zap.String("path", path), zap.Error(err))
				}
			default:
				d.write(path, command)
			}
		case <-timerC:
			removed, err := d.sweep()
			if err != nil {
				d.opt.Logger.Error("failed to sweep store", zap.Error(err))
			} else if removed > 0 {
				d.opt.Logger.Debug("swept store", zap.Int("removed", removed))
			}

			setTimer()
		}
	}
}

func (d *Dir) write(path string, command persistenceCommand) {
	err := d.persist(path, command.data)

	d.mu.Lock()

	// the chunk might have been dropped and queued again since the command was sent
	if p, ok := d.pending[command.key]; ok && p.gen == command.gen {
		delete(d.pending, command.key)

		if err != nil {
			// the chunk is lost, so it should not be advertised anymore
			delete(d.index, command.key)

			if idx := slices.Index(d.order, command.key); idx >= 0 {
				d.order = slices.Delete(d.order, idx, idx+1)
			}
		}
	}

	if err != nil && d.err == nil {
		d.err = err
	}

	d.mu.Unlock()

	if err != nil {
		d.opt.Logger.Error("failed to write chunk", zap.String("path", path), zap.Error(err))
	} else {
		d.opt.Logger.Debug("persisted chunk", zap.String("path", path))
	}
}

func (d *Dir) persist(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}

	return atomicWriteFile(path, data, 0o644)
}

// sweep removes leftover temporary files and chunk files which are not in the index.
//
// sweep runs on the persistence goroutine, so there are no concurrent writes.
func (d *Dir) sweep() (int, error) {
	var removed int

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		if !strings.HasSuffix(path, tmpSuffix) {
			key, ok := d.keyOf(path)
			if !ok {
				// not ours
				return nil
			}

			d.mu.Lock()
			_, indexed := d.index[key]
			_, queued := d.pending[key]
			d.mu.Unlock()

			if indexed || queued {
				return nil
			}
		}

		if err = os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		removed++

		return nil
	})

	return removed, err
}

func atomicWriteFile(path string, data []byte, mode fs.FileMode) error {
	tmpPath := path + tmpSuffix

	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck

		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
