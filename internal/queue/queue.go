// Package queue implements the retryable, prioritized outbound work
// queues sitting above funcid/serialproto (spec §4.G): a plain FIFO for
// the controller's own decoded-message stream, and a priority queue of
// Transmissions for everything waiting to go out over the wire.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Priority orders pending Transmissions; higher values are serviced
// first. Values match the host-controller relationship: polling is
// nearly free to defer, wake-up delivery cannot wait.
type Priority int

const (
	PriorityPolling        Priority = -100
	PriorityInitialization Priority = -10
	PriorityDefault        Priority = 0
	PriorityInteractive    Priority = 100
	PriorityWakeUp         Priority = 99999
)

// Transmission is a pending outbound item: a message or node command
// plus its retry/priority bookkeeping and a future for the result.
type Transmission struct {
	TraceID  uuid.UUID
	Message  any // *zwave.MessageDef (controller) or *cc.CommandDef (node), paired with Fields
	Fields   any
	NodeID   *int
	Endpoint int
	Priority Priority

	// ResponseHandler runs, if set, when the controller dispatcher matches
	// a RESPONSE to this transmission, before the future resolves; a panic
	// in it is logged. Node command completions do not invoke it.
	ResponseHandler func(any)

	Transmitting       bool
	Retransmission     int
	MaxRetransmissions int
	PauseUntil         time.Time

	mu        sync.Mutex
	done      chan struct{}
	result    any
	err       error
	cancelled bool
}

// NewTransmission constructs a Transmission ready to be queued.
func NewTransmission(message, fields any, priority Priority) *Transmission {
	return &Transmission{
		TraceID:            uuid.New(),
		Message:            message,
		Fields:             fields,
		Priority:           priority,
		MaxRetransmissions: 3,
		done:               make(chan struct{}),
	}
}

// Done reports a channel that closes when the transmission completes,
// successfully or not.
func (t *Transmission) Done() <-chan struct{} { return t.done }

// Wait blocks for completion or ctx cancellation.
func (t *Transmission) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetResult completes the transmission successfully, unless already
// cancelled or completed.
func (t *Transmission) SetResult(result any) {
	if t.Cancelled() {
		return
	}
	t.complete(result, nil)
}

// SetError completes the transmission with a failure.
func (t *Transmission) SetError(err error) {
	t.complete(nil, err)
}

func (t *Transmission) complete(result any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return
	default:
	}
	t.result, t.err = result, err
	close(t.done)
}

// Cancel marks the transmission cancelled. A cancelled item already
// dequeued for sending is still sent; one still queued is skipped.
func (t *Transmission) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (t *Transmission) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// SimpleQueue is an unbounded FIFO with a single logical consumer,
// matching pywavez's Transmission.SimpleQueue (the controller's public
// received-message stream).
type SimpleQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []any
}

func NewSimpleQueue() *SimpleQueue {
	q := &SimpleQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Append enqueues an item and wakes any waiter.
func (q *SimpleQueue) Append(item any) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// HasMessage reports whether Take would succeed immediately.
func (q *SimpleQueue) HasMessage() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

// WaitForMessage blocks until HasMessage would return true or ctx ends.
func (q *SimpleQueue) WaitForMessage(ctx context.Context) error {
	return waitOnCond(ctx, q.cond, &q.mu, func() bool { return len(q.items) > 0 })
}

// TakeMessage removes and returns the oldest item, or ok=false if empty.
func (q *SimpleQueue) TakeMessage() (item any, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// GetMessage blocks until an item is available, then takes it.
func (q *SimpleQueue) GetMessage(ctx context.Context) (any, error) {
	if err := q.WaitForMessage(ctx); err != nil {
		return nil, err
	}
	item, ok := q.TakeMessage()
	if !ok {
		return nil, ctx.Err()
	}
	return item, nil
}

// MessageQueue is a priority-ordered queue of *Transmission, skipping
// cancelled entries and entries paused until a future instant — the Go
// counterpart of pywavez's Transmission.MessageQueue (bisect.insort over
// a list, ordered so the highest Priority pops first).
type MessageQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	h    txHeap
}

func NewMessageQueue() *MessageQueue {
	q := &MessageQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add inserts tx in priority order (bisect.insort_right equivalent: among
// equal priorities, newer entries sort after existing ones).
func (q *MessageQueue) Add(tx *Transmission) {
	q.mu.Lock()
	heap.Push(&q.h, txEntry{tx: tx, seq: q.nextSeqLocked()})
	q.cond.Broadcast()
	q.mu.Unlock()
}

// AddFirst re-inserts tx ahead of same-priority peers (bisect.insort_left
// equivalent), used when a failed send is retried.
func (q *MessageQueue) AddFirst(tx *Transmission) {
	q.mu.Lock()
	heap.Push(&q.h, txEntry{tx: tx, seq: -q.nextSeqLocked()})
	q.cond.Broadcast()
	q.mu.Unlock()
}

var seqCounter atomic.Int64

func (q *MessageQueue) nextSeqLocked() int64 {
	return seqCounter.Add(1)
}

// HasMessage reports whether a non-cancelled, non-paused entry is ready.
func (q *MessageQueue) HasMessage() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, e := range q.h {
		if e.tx.Cancelled() {
			continue
		}
		if e.tx.PauseUntil.IsZero() || e.tx.PauseUntil.Before(now) {
			return true
		}
	}
	return false
}

// WaitForMessage blocks until HasMessage would return true, the earliest
// PauseUntil among queued entries elapses, or ctx ends.
func (q *MessageQueue) WaitForMessage(ctx context.Context) error {
	for {
		q.mu.Lock()
		now := time.Now()
		var earliestPause time.Time
		ready := false
		for _, e := range q.h {
			if e.tx.Cancelled() {
				continue
			}
			if e.tx.PauseUntil.IsZero() || e.tx.PauseUntil.Before(now) {
				ready = true
				break
			}
			if earliestPause.IsZero() || e.tx.PauseUntil.Before(earliestPause) {
				earliestPause = e.tx.PauseUntil
			}
		}
		if ready {
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		if !earliestPause.IsZero() {
			waitCtx, cancel := context.WithDeadline(ctx, earliestPause)
			err := q.waitOnce(waitCtx)
			cancel()
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := q.waitOnce(ctx); err != nil {
			return err
		}
	}
}

// waitOnce blocks on q.cond until broadcast or ctx ends, without a
// predicate loop (the caller re-checks state itself).
func (q *MessageQueue) waitOnce(ctx context.Context) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	q.mu.Lock()
	defer q.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	q.cond.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// TakeMessage removes and returns the highest-priority ready entry,
// dropping cancelled entries along the way, or ok=false if none is ready.
func (q *MessageQueue) TakeMessage() (tx *Transmission, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()

	var deferred []txEntry
	for q.h.Len() > 0 {
		e := heap.Pop(&q.h).(txEntry)
		if e.tx.Cancelled() {
			continue
		}
		if e.tx.PauseUntil.IsZero() || e.tx.PauseUntil.Before(now) {
			for _, d := range deferred {
				heap.Push(&q.h, d)
			}
			return e.tx, true
		}
		deferred = append(deferred, e)
	}
	for _, d := range deferred {
		heap.Push(&q.h, d)
	}
	return nil, false
}

// GetMessage blocks until an entry is ready, then takes it.
func (q *MessageQueue) GetMessage(ctx context.Context) (*Transmission, error) {
	for {
		if err := q.WaitForMessage(ctx); err != nil {
			return nil, err
		}
		if tx, ok := q.TakeMessage(); ok {
			return tx, nil
		}
	}
}

// txEntry pairs a Transmission with an insertion sequence so the heap can
// reproduce insort_right/insort_left tie-breaking between equal
// priorities (AddFirst uses a negative seq to sort ahead of Add's).
type txEntry struct {
	tx  *Transmission
	seq int64
}

type txHeap []txEntry

func (h txHeap) Len() int { return len(h) }
func (h txHeap) Less(i, j int) bool {
	if h[i].tx.Priority != h[j].tx.Priority {
		return h[i].tx.Priority > h[j].tx.Priority
	}
	return h[i].seq < h[j].seq
}
func (h txHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *txHeap) Push(x any)   { *h = append(*h, x.(txEntry)) }
func (h *txHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// waitOnCond blocks on cond until pred() is true or ctx ends, reusing the
// pattern from serialproto: a helper goroutine rebroadcasts on
// cancellation so the single cond.Wait() loop only needs one signal.
func waitOnCond(ctx context.Context, cond *sync.Cond, mu *sync.Mutex, pred func() bool) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			cond.Broadcast()
			mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	mu.Lock()
	defer mu.Unlock()
	for !pred() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cond.Wait()
	}
	return nil
}
