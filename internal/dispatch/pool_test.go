package dispatch

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/embedder/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)

	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Go(func() {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}))
	}

	require.NoError(t, p.Close(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(10), p.Stats().Completed)
}

func TestPoolGoDoesNotBlock(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Go(func() {
		close(started)
		<-release
	}))
	<-started

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Go(func() {}))
	}
	assert.Less(t, time.Since(start), time.Second)

	assert.Eventually(t, func() bool { return p.Stats().Pending == 50 }, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int64(51), p.Stats().Completed)
}

func TestPoolClosedRejects(t *testing.T) {
	p := NewPool(0)
	assert.Equal(t, DefaultWorkers, p.Stats().Workers)
	require.NoError(t, p.Close(context.Background()))
	assert.ErrorIs(t, p.Go(func() {}), ErrPoolClosed)
}

func TestPoolCloseTimeout(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Go(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(1)
	var wg sync.WaitGroup
	wg.Add(1)

	require.NoError(t, p.Go(func() { panic("boom") }))
	require.NoError(t, p.Go(func() { wg.Done() }))

	wg.Wait()
	require.NoError(t, p.Close(context.Background()))
	st := p.Stats()
	assert.Equal(t, int64(1), st.Panics)
	assert.Equal(t, int64(2), st.Completed)
}
