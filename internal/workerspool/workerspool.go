// Copyright 2026 The TileIR Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool bounds the number of goroutines used by batch work,
// such as verifying every op of a parsed module.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits how many tasks run concurrently.
//
// The zero Pool is not usable, create one with New.
type Pool struct {
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning decreases.
	numRunning     int
}

// New returns a Pool running at most maxParallelism tasks at once.
// maxParallelism == 0 disables parallelism: tasks run inline on the caller's
// goroutine. maxParallelism < 0 means unlimited. The default for batch
// verification is runtime.NumCPU(), see Default.
func New(maxParallelism int) *Pool {
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// Default returns a Pool sized to the number of CPUs.
func Default() *Pool {
	return New(runtime.NumCPU())
}

// IsEnabled returns whether parallelism is enabled (maxParallelism != 0).
func (p *Pool) IsEnabled() bool {
	return p.maxParallelism != 0
}

// WaitToStart blocks until a worker is free and then runs task on it.
// The caller synchronizes completion (typically with a sync.WaitGroup inside
// task). With parallelism disabled the task runs inline instead.
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	}
	if p.maxParallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numRunning >= p.maxParallelism {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}
