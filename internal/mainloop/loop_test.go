package mainloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := New()
	go l.Run(context.Background())
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		l.Post(func() { got = append(got, i) })
	}
	require.True(t, l.Sync(func() {}))
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PostFromLoopDoesNotBlock(t *testing.T) {
	l := New()
	go l.Run(context.Background())
	defer l.Stop()

	done := make(chan struct{})
	l.Post(func() {
		for i := 0; i < 10; i++ {
			l.Post(func() {})
		}
		l.Post(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested posts did not run")
	}
}

func TestLoop_ConcurrentPosters(t *testing.T) {
	l := New()
	go l.Run(context.Background())
	defer l.Stop()

	count := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()
	l.Sync(func() {})
	assert.Equal(t, 400, count)
}

func TestLoop_ContextCancelDrains(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	l.Post(func() { ran = true })
	cancel()
	l.Run(ctx)
	assert.True(t, ran)

	// posts after shutdown are dropped
	l.Post(func() { t.Fatal("should not run") })
	assert.False(t, l.Sync(func() {}))
}

func TestImmediate(t *testing.T) {
	ran := false
	Immediate{}.Post(func() { ran = true })
	assert.True(t, ran)
}
