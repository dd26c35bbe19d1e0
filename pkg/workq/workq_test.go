package workq

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsAllUnits(t *testing.T) {
	wq := New(4)
	defer wq.Quiesce()

	var count int64
	var wg sync.WaitGroup
	wg.Add(50)

	for i := 0; i < 50; i++ {
		err := wq.Submit(func() {
			atomic.AddInt64(&count, 1)
			wg.Done()
		}, "test-unit")
		require.NoError(t, err)
	}

	waitOrTimeout(t, &wg, 2*time.Second)
	assert.EqualValues(t, 50, atomic.LoadInt64(&count))
}

func TestQuiesceDrainsBeforeReturning(t *testing.T) {
	wq := New(2)

	var ran int64
	for i := 0; i < 10; i++ {
		err := wq.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&ran, 1)
		}, "slow-unit")
		require.NoError(t, err)
	}

	wq.Quiesce()
	assert.EqualValues(t, 10, atomic.LoadInt64(&ran))
}

func TestSubmitAfterQuiesceFails(t *testing.T) {
	wq := New(1)
	wq.Quiesce()

	err := wq.Submit(func() {}, "too-late")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestActiveCount(t *testing.T) {
	wq := New(1)
	defer wq.Quiesce()

	release := make(chan struct{})
	started := make(chan struct{})

	err := wq.Submit(func() {
		close(started)
		<-release
	}, "blocking-unit")
	require.NoError(t, err)

	<-started
	assert.Equal(t, 1, wq.ActiveCount())
	close(release)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for work units to complete")
	}
}
