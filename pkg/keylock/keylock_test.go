package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_MutualExclusionPerKey(t *testing.T) {
	km := New()

	const workers = 16
	const iterations = 200
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				km.Lock("pay-1")
				counter++
				km.Unlock("pay-1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iterations, counter)
}

func TestLock_IndependentKeys(t *testing.T) {
	km := New()

	km.Lock("pay-1")
	defer km.Unlock("pay-1")

	done := make(chan struct{})
	go func() {
		km.Lock("pay-2")
		km.Unlock("pay-2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestUnlock_RemovesEntry(t *testing.T) {
	km := New()

	km.Lock("pay-1")
	km.Unlock("pay-1")

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
