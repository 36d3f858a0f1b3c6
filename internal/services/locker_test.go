package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScopeLockerSerializesSameScope(t *testing.T) {
	locker := NewScopeLocker()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("clinic_a")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestScopeLockerIndependentScopes(t *testing.T) {
	locker := NewScopeLocker()

	// Hold scope A for the whole test.
	unlockA := locker.Lock("clinic_a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlockB := locker.Lock("clinic_b")
		defer unlockB()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("scope B lock blocked behind scope A")
	}
}

func TestScopeLockerReusesMutex(t *testing.T) {
	locker := NewScopeLocker()

	unlock := locker.Lock("clinic_a")
	unlock()

	// Same scope locks again without deadlock.
	unlock = locker.Lock("clinic_a")
	unlock()

	assert.Len(t, locker.locks, 1)
}
