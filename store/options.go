// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// DirOptions defines settings for Dir.
type DirOptions struct {
	Logger *zap.Logger

	// MaxChunks limits the number of chunks kept, oldest chunks are dropped first.
	//
	// Zero means no limit.
	MaxChunks int

	// QueueSize is the number of chunk writes queued for the persistence goroutine.
	QueueSize int

	// SweepInterval runs the sweep every SweepInterval, removing leftover temporary
	// files and chunk files which are no longer indexed.
	//
	// Zero disables the sweep.
	SweepInterval time.Duration

	// SweepJitter adds random jitter to SweepInterval (a ratio of SweepInterval).
	SweepJitter float64
}

// NextInterval calculates next sweep interval with jitter.
func (o DirOptions) NextInterval() time.Duration {
	return time.Duration(((rand.Float64()*2-1)*o.SweepJitter + 1.0) * float64(o.SweepInterval))
}

func defaultDirOptions() DirOptions {
	return DirOptions{
		Logger:    zap.NewNop(),
		QueueSize: 8,
	}
}

// DirOptionFunc allows setting Dir options.
type DirOptionFunc func(*DirOptions) error

// WithMaxChunks limits the number of chunks kept in the store.
func WithMaxChunks(n int) DirOptionFunc {
	return func(opt *DirOptions) error {
		if n < 0 {
			return fmt.Errorf("max chunks should be non-negative: %d", n)
		}

		opt.MaxChunks = n

		return nil
	}
}

// WithQueueSize sets the length of the write queue.
func WithQueueSize(n int) DirOptionFunc {
	return func(opt *DirOptions) error {
		if n <= 0 {
			return fmt.Errorf("queue size should be positive: %d", n)
		}

		opt.QueueSize = n

		return nil
	}
}

// WithSweepInterval enables periodic sweep of the store directory.
func WithSweepInterval(interval time.Duration, jitter float64) DirOptionFunc {
	return func(opt *DirOptions) error {
		if interval <= 0 {
			return fmt.Errorf("sweep interval should be positive: %s", interval)
		}

		if jitter < 0 || jitter > 1 {
			return fmt.Errorf("sweep jitter should be in range [0, 1]: %f", jitter)
		}

		opt.SweepInterval = interval
		opt.SweepJitter = jitter

		return nil
	}
}

// WithLogger sets logger for Dir.
func WithLogger(logger *zap.Logger) DirOptionFunc {
	return func(opt *DirOptions) error {
		opt.Logger = logger

		return nil
	}
}
