package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameKey(t *testing.T) {
	k := New()
	var wg sync.WaitGroup
	inside, maxInside := 0, 0
	var mu sync.Mutex
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("g1")
			defer unlock()
			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Zero(t, k.Len())
}

func TestLock_OtherKeysStayFree(t *testing.T) {
	k := New()
	unlock := k.Lock("g1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("g2")()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, k.Len())
}
