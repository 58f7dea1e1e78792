/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package goroutine wraps a github.com/panjf2000/ants/v2 pool behind the
// teacher's single `goroutine.Go(func(){ ... })` call convention seen in
// internal/server/server.go's accept loop. Submission degrades to a raw
// `go` statement when the pool is saturated, so an accepted connection is
// never dropped solely because the pool is full.
package goroutine

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/yunqi/beaconmq/internal/xlog"
)

var (
	mu   sync.Mutex
	pool *ants.Pool
	log  = xlog.LoggerModule("goroutine")
)

// Init installs a process-wide non-blocking pool capped at size tasks.
// Calling it again (e.g. after a config reload) releases the previous
// pool first.
func Init(size int) error {
	mu.Lock()
	defer mu.Unlock()
	if pool != nil {
		pool.Release()
	}
	if size <= 0 {
		size = 256
	}
	p, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return err
	}
	pool = p
	return nil
}

// Go runs fn on the pool, falling back to an un-pooled goroutine if the
// pool is not initialized or is momentarily saturated.
func Go(fn func()) {
	mu.Lock()
	p := pool
	mu.Unlock()

	if p == nil {
		go fn()
		return
	}

	if err := p.Submit(fn); err != nil {
		log.Warn("pool saturated, running un-pooled", zap.Error(err))
		go fn()
	}
}

// Running reports the number of currently running pooled goroutines, or
// 0 if the pool has not been initialized.
func Running() int {
	mu.Lock()
	defer mu.Unlock()
	if pool == nil {
		return 0
	}
	return pool.Running()
}
