package keylock

import (
	"sync"
	"testing"
)

func TestSameKeySerializes(t *testing.T) {
	r := New()

	const workers = 20
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock("ORD-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	r := New()

	unlockA := r.Lock("a")
	defer unlockA()

	// Must not block while "a" is held.
	unlockB := r.Lock("b")
	unlockB()
}

func TestGetReturnsSameMutexForKey(t *testing.T) {
	r := New()
	if r.Get("x") != r.Get("x") {
		t.Fatal("same key must map to one mutex")
	}
	if r.Get("x") == r.Get("y") {
		t.Fatal("distinct keys must not share a mutex")
	}
}
