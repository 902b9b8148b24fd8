// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-chunk/store"
)

func TestNextInterval(t *testing.T) {
	t.Parallel()

	opts := store.DirOptions{
		SweepInterval: 10 * time.Second,
		SweepJitter:   0.1,
	}

	var previous time.Duration

	for range 100 {
		interval := opts.NextInterval()

		assert.NotEqual(t, previous, interval)

		previous = interval

		assert.InDelta(t, opts.SweepInterval, interval, 0.1*float64(opts.SweepInterval))
	}

	opts.SweepJitter = 0

	assert.Equal(t, opts.SweepInterval, opts.NextInterval())
}

func TestDirOptionsValidation(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string

		option store.DirOptionFunc
	}{
		{
			name:   "negative max chunks",
			option: store.WithMaxChunks(-1),
		},
		{
			name:   "zero queue size",
			option: store.WithQueueSize(0),
		},
		{
			name:   "zero sweep interval",
			option: store.WithSweepInterval(0, 0.1),
		},
		{
			name:   "jitter out of range",
			option: store.WithSweepInterval(time.Second, 1.5),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := store.NewDir(t.TempDir(), test.option)
			require.Error(t, err)
		})
	}

	_, err := store.NewDir("")
	require.Error(t, err)
}
