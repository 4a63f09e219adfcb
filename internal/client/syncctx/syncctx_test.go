package syncctx

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartsOptimisticallyOnline(t *testing.T) {
	c := New()
	s := c.Snapshot()
	assert.True(t, s.IsOnline)
	assert.False(t, s.IsSyncing)
	assert.Zero(t, s.QueueLength)
	assert.Nil(t, s.LastError)
}

func TestSetOnline_ReportsChange(t *testing.T) {
	c := New()
	assert.False(t, c.SetOnline(true))
	assert.True(t, c.SetOnline(false))
	assert.False(t, c.IsOnline())
}

func TestTryBeginDrain_SingleHolder(t *testing.T) {
	c := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryBeginDrain() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, c.Snapshot().IsSyncing)

	c.EndDrain()
	assert.True(t, c.TryBeginDrain())
}

func TestTryBeginDrain_RefusedOffline(t *testing.T) {
	c := New()
	c.SetOnline(false)
	assert.False(t, c.TryBeginDrain())
}

func TestSubscribe_ReceivesLatestState(t *testing.T) {
	c := New()
	ch, cancel := c.Subscribe()
	defer cancel()

	c.SetQueueLength(2)
	c.SetOnline(false)

	select {
	case s := <-ch:
		assert.False(t, s.IsOnline)
		assert.Equal(t, 2, s.QueueLength)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestSubscribe_CancelAndClose(t *testing.T) {
	c := New()
	ch1, cancel1 := c.Subscribe()
	ch2, _ := c.Subscribe()

	cancel1()
	cancel1()
	_, ok := <-ch1
	assert.False(t, ok)

	c.Close()
	_, ok = <-ch2
	assert.False(t, ok)

	ch3, _ := c.Subscribe()
	_, ok = <-ch3
	assert.False(t, ok)

	c.SetLastError("still works")
	require.NotNil(t, c.Snapshot().LastError)
}

func TestLastErrorAndProgress(t *testing.T) {
	c := New()
	c.SetLastError("sync failed after 3 retries: boom")
	require.NotNil(t, c.Snapshot().LastError)
	c.ClearLastError()
	assert.Nil(t, c.Snapshot().LastError)

	require.True(t, c.TryBeginDrain())
	c.SetProgress(1, 4)
	assert.Equal(t, Progress{Current: 1, Total: 4}, c.Snapshot().Progress)
	c.EndDrain()
	assert.Equal(t, Progress{}, c.Snapshot().Progress)

	now := time.Now()
	c.SetLastSync(now)
	assert.True(t, now.Equal(*c.Snapshot().LastSyncAt))
}
