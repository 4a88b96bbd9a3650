package sync

import (
	gosync "sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu gosync.Mutex
	var inside, violations int

	var wg gosync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("m1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > 1 {
				violations++
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if violations != 0 {
		t.Errorf("critical section entered concurrently %d times", violations)
	}
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestKeyedMutex_EntriesReleasedAtZeroRefs(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("m1")
	unlock()

	km.mu.Lock()
	n := len(km.entries)
	km.mu.Unlock()
	if n != 0 {
		t.Errorf("entries after release = %d, want 0", n)
	}
}
