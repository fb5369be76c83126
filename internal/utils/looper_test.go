package utils

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooper_RunsTasksInOrder(t *testing.T) {
	l := NewLooper(4)
	require.NoError(t, l.Start())

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Stop())

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLooper_NeverRunsTasksConcurrently(t *testing.T) {
	l := NewLooper(8)
	require.NoError(t, l.Start())

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				l.Post(func() {
					n := running.Add(1)
					if n > maxRunning.Load() {
						maxRunning.Store(n)
					}
					time.Sleep(100 * time.Microsecond)
					running.Add(-1)
				})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Stop())
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestLooper_PostAfterStopIsDropped(t *testing.T) {
	l := NewLooper(1)
	require.NoError(t, l.Start())
	require.NoError(t, l.Stop())

	assert.False(t, l.Post(func() { t.Error("task ran after stop") }))
	assert.Error(t, l.Stop())
	assert.Error(t, l.Start())
}

func TestLooper_StopReleasesBlockedPosters(t *testing.T) {
	l := NewLooper(1)
	// never started, so the queue fills up
	require.True(t, l.Post(func() {}))

	result := make(chan bool)
	go func() { result <- l.Post(func() {}) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Stop())

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("blocked Post was not released")
	}
}

func TestLooper_StartTwice(t *testing.T) {
	l := NewLooper(1)
	require.NoError(t, l.Start())
	assert.EqualError(t, l.Start(), "looper is already running")
	require.NoError(t, l.Stop())
}

func TestSliceToSet(t *testing.T) {
	set := SliceToSet([]string{"a", "b", "a"})
	assert.Len(t, set, 2)
	_, ok := set["b"]
	assert.True(t, ok)
}
