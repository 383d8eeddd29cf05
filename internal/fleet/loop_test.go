// ABOUTME: Tests for the control loop.
// ABOUTME: Covers ordering, Do completion, panic recovery and stopped loops.

package fleet

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	loop := startLoop(t)
	var got []int

	for i := 0; i < 100; i++ {
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, loop.Do(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_SerializesConcurrentPosters(t *testing.T) {
	loop := startLoop(t)
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				loop.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	require.NoError(t, loop.Do(context.Background(), func() {}))

	assert.Equal(t, 1000, counter)
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	loop := startLoop(t)

	err := loop.Do(context.Background(), func() { panic("bad command") })
	require.NoError(t, err)

	ran := false
	require.NoError(t, loop.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_DoHonorsContext(t *testing.T) {
	loop := startLoop(t)
	release := make(chan struct{})
	loop.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loop.Do(ctx, func() {}), context.DeadlineExceeded)
}

func TestLoop_StoppedRejectsWork(t *testing.T) {
	loop := NewLoop(1, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	cancel()
	<-done

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrLoopStopped)
}
