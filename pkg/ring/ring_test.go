package ring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReserveConfirmPopBasic(t *testing.T) {
	r := New(2, 8)

	slot, ok := r.Reserve()
	assert.True(t, ok)
	slot.Block = 1
	r.Confirm()

	assert.Equal(t, 1, r.Len())

	head, ok := r.Peek()
	assert.True(t, ok)
	assert.EqualValues(t, 1, head.Block)

	r.Pop()
	assert.Equal(t, 0, r.Len())
}

func TestCancelFreesSpace(t *testing.T) {
	r := New(1, 8)
	_, ok := r.Reserve()
	assert.True(t, ok)
	r.Cancel()
	assert.Equal(t, 0, r.Len())

	// Space should be available again without blocking.
	done := make(chan struct{})
	go func() {
		_, ok := r.Reserve()
		assert.True(t, ok)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reserve blocked after cancel freed the only slot")
	}
}

func TestBoundRespected(t *testing.T) {
	const capacity = 4
	r := New(capacity, 8)
	for i := 0; i < capacity; i++ {
		slot, ok := r.Reserve()
		assert.True(t, ok)
		slot.Block = uint64(i)
		r.Confirm()
	}

	reserved := make(chan struct{})
	go func() {
		_, _ = r.Reserve()
		close(reserved)
	}()

	select {
	case <-reserved:
		t.Fatal("reserve should have blocked: ring is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	r.Pop()
	select {
	case <-reserved:
	case <-time.After(time.Second):
		t.Fatal("reserve should have unblocked after a pop freed a slot")
	}
}

func TestProducerConsumerNoDuplicateDelivery(t *testing.T) {
	const capacity = 16
	const n = 500
	r := New(capacity, 8)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			slot, ok := r.Reserve()
			if !ok {
				return
			}
			slot.Block = uint64(i)
			r.Confirm()
		}
		slot, ok := r.Reserve()
		if ok {
			slot.Block = TerminateBlock
			r.Confirm()
		}
	}()

	seen := make(map[uint64]bool)
	go func() {
		defer wg.Done()
		for {
			slot, ok := r.Peek()
			if !ok {
				return
			}
			block := slot.Block
			r.Pop()
			if block == TerminateBlock {
				return
			}
			assert.False(t, seen[block])
			seen[block] = true
		}
	}()

	wg.Wait()
	assert.Len(t, seen, n)
}

func TestCloseUnblocksWaiters(t *testing.T) {
	r := New(1, 8)
	done := make(chan struct{})
	go func() {
		_, ok := r.Peek()
		assert.False(t, ok)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	r.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("peek did not unblock after Close")
	}
}
