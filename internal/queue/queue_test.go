package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimpleQueueFIFO(t *testing.T) {
	q := NewSimpleQueue()
	q.Append("a")
	q.Append("b")
	require.True(t, q.HasMessage())

	v, ok := q.TakeMessage()
	require.True(t, ok)
	require.Equal(t, "a", v)

	v, ok = q.TakeMessage()
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = q.TakeMessage()
	require.False(t, ok)
}

func TestSimpleQueueGetMessageBlocksUntilAppend(t *testing.T) {
	q := NewSimpleQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Append(42)
	}()

	v, err := q.GetMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestMessageQueueOrdersByPriority(t *testing.T) {
	q := NewMessageQueue()
	low := NewTransmission(nil, nil, PriorityPolling)
	high := NewTransmission(nil, nil, PriorityInteractive)
	mid := NewTransmission(nil, nil, PriorityDefault)

	q.Add(low)
	q.Add(mid)
	q.Add(high)

	tx, ok := q.TakeMessage()
	require.True(t, ok)
	require.Same(t, high, tx)

	tx, ok = q.TakeMessage()
	require.True(t, ok)
	require.Same(t, mid, tx)

	tx, ok = q.TakeMessage()
	require.True(t, ok)
	require.Same(t, low, tx)
}

func TestMessageQueueSkipsCancelled(t *testing.T) {
	q := NewMessageQueue()
	cancelled := NewTransmission(nil, nil, PriorityInteractive)
	cancelled.Cancel()
	live := NewTransmission(nil, nil, PriorityDefault)

	q.Add(cancelled)
	q.Add(live)

	tx, ok := q.TakeMessage()
	require.True(t, ok)
	require.Same(t, live, tx)

	_, ok = q.TakeMessage()
	require.False(t, ok)
}

func TestMessageQueueRespectsPauseUntil(t *testing.T) {
	q := NewMessageQueue()
	paused := NewTransmission(nil, nil, PriorityInteractive)
	paused.PauseUntil = time.Now().Add(50 * time.Millisecond)
	ready := NewTransmission(nil, nil, PriorityDefault)

	q.Add(paused)
	q.Add(ready)

	require.True(t, q.HasMessage())
	tx, ok := q.TakeMessage()
	require.True(t, ok)
	require.Same(t, ready, tx, "paused high-priority entry must be skipped until its time")

	_, ok = q.TakeMessage()
	require.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	tx, ok = q.TakeMessage()
	require.True(t, ok)
	require.Same(t, paused, tx)
}

func TestMessageQueueAddFirstOrdersAheadOfSamePriority(t *testing.T) {
	q := NewMessageQueue()
	first := NewTransmission(nil, nil, PriorityDefault)
	second := NewTransmission(nil, nil, PriorityDefault)
	q.Add(first)
	q.AddFirst(second)

	tx, ok := q.TakeMessage()
	require.True(t, ok)
	require.Same(t, second, tx)
}

func TestTransmissionWaitDeliversResult(t *testing.T) {
	tx := NewTransmission(nil, nil, PriorityDefault)
	go func() {
		time.Sleep(5 * time.Millisecond)
		tx.SetResult("ok")
	}()
	res, err := tx.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", res)
}

func TestMessageQueueGetMessageBlocksUntilReady(t *testing.T) {
	q := NewMessageQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tx := NewTransmission(nil, nil, PriorityDefault)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Add(tx)
	}()

	got, err := q.GetMessage(ctx)
	require.NoError(t, err)
	require.Same(t, tx, got)
}
