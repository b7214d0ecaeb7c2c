package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListenersDeliverInOrder(t *testing.T) {
	l := NewListeners[int]("test", quietLogger())
	var got []string
	l.Add(func(v int) { got = append(got, "a") })
	l.Add(func(v int) { got = append(got, "b") })

	assert.True(t, l.Deliver(1))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestListenersNoListeners(t *testing.T) {
	l := NewListeners[int]("test", quietLogger())
	assert.False(t, l.Deliver(1))
}

func TestListenersPanicDoesNotStopOthers(t *testing.T) {
	l := NewListeners[string]("test", quietLogger())
	var after []string
	l.Add(func(string) { panic("bad listener") })
	l.Add(func(v string) { after = append(after, v) })

	require.NotPanics(t, func() { l.Deliver("x") })
	assert.Equal(t, []string{"x"}, after)
}

func TestListenersRemove(t *testing.T) {
	l := NewListeners[int]("test", quietLogger())
	calls := 0
	id := l.Add(func(int) { calls++ })
	l.Remove(id)
	l.Remove(id)
	assert.Equal(t, 0, l.Len())
	l.Deliver(1)
	assert.Equal(t, 0, calls)
}

func TestListenersRemoveDuringDelivery(t *testing.T) {
	l := NewListeners[int]("test", quietLogger())
	var self Subscription
	calls := 0
	self = l.Add(func(int) {
		calls++
		l.Remove(self)
	})
	l.Deliver(1)
	l.Deliver(2)
	assert.Equal(t, 1, calls)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue[int]("test", 2, quietLogger())
	assert.True(t, q.Offer(1))
	assert.True(t, q.Offer(2))
	assert.False(t, q.Offer(3))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())

	q.Discard()
	assert.Equal(t, 0, q.Len())
}

func TestQueueRunPreservesOrder(t *testing.T) {
	q := NewQueue[int]("test", 10, quietLogger())
	for i := 1; i <= 5; i++ {
		q.Offer(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}
