package goroutine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoRunsSubmittedWork(t *testing.T) {
	assert.NoError(t, Init(4))

	var wg sync.WaitGroup
	wg.Add(1)
	Go(func() {
		defer wg.Done()
	})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted work never ran")
	}
}

func TestGoWithoutInitFallsBackToRawGoroutine(t *testing.T) {
	mu.Lock()
	pool = nil
	mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	Go(func() { wg.Done() })

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fallback goroutine never ran")
	}
}
