package locking

import (
	"sync"
	"testing"
)

func TestLockSerializesPerCustomer(t *testing.T) {
	t.Parallel()

	locks := NewCustomerLocks()
	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("cust-1")
			counter++
			release()
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestLockDistinctCustomersDoNotBlock(t *testing.T) {
	t.Parallel()

	locks := NewCustomerLocks()
	releaseA := locks.Lock("cust-a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := locks.Lock("cust-b")
		releaseB()
		close(done)
	}()
	<-done
}

func TestLockEntriesAreReleased(t *testing.T) {
	t.Parallel()

	locks := NewCustomerLocks()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			customer := "cust-" + string(rune('a'+n%3))
			for j := 0; j < 50; j++ {
				release := locks.Lock(customer)
				release()
			}
		}(i)
	}
	wg.Wait()

	locks.mu.Lock()
	remaining := len(locks.locks)
	locks.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("%d lock entries leaked", remaining)
	}
}
