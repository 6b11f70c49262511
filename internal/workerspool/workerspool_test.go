// Copyright 2026 The TileIR Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryTask(t *testing.T) {
	pool := New(3)
	require.True(t, pool.IsEnabled())

	const numTasks = 100
	var count atomic.Int32
	var running atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numTasks)
	for range numTasks {
		pool.WaitToStart(func() {
			defer wg.Done()
			now := running.Add(1)
			for {
				prev := peak.Load()
				if now <= prev || peak.CompareAndSwap(prev, now) {
					break
				}
			}
			count.Add(1)
			running.Add(-1)
		})
	}
	wg.Wait()
	require.Equal(t, int32(numTasks), count.Load())
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoolInline(t *testing.T) {
	pool := New(0)
	require.False(t, pool.IsEnabled())
	ran := false
	pool.WaitToStart(func() { ran = true })
	require.True(t, ran) // Inline, so already done when WaitToStart returns.
}

func TestPoolUnlimited(t *testing.T) {
	pool := New(-1)
	var wg sync.WaitGroup
	var count atomic.Int32
	wg.Add(10)
	for range 10 {
		pool.WaitToStart(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	require.Equal(t, int32(10), count.Load())
}
