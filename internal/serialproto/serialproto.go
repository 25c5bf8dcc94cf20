// Package serialproto implements the Z-Wave serial link framing state
// machine (spec §4.C): ACK/NAK/CAN flow control, idle detection, and
// transmit/receive collision handling, running as a single owning
// goroutine over a transport.Transport.
package serialproto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xx25/zwaved/internal/frame"
	"github.com/xx25/zwaved/internal/transport"
)

// Timeouts from spec §5.
const (
	firstByteTimeout = 1500 * time.Millisecond
	ackTimeout       = 1600 * time.Millisecond
	breakDuration    = 500 * time.Millisecond
)

var (
	ErrCancelled = errors.New("serialproto: send cancelled")
	ErrRejected  = errors.New("serialproto: NAK or CAN from peer")
	ErrCollision = errors.New("serialproto: incoming frame collided with send")
	ErrTimeout   = errors.New("serialproto: ack timeout")
)

// Handle is the completion handle returned by Send.
type Handle struct {
	done      chan error
	cancelled atomic.Bool
}

// Wait blocks until the send completes, fails, or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel marks the job cancelled. A cancelled job still pending in the
// queue is skipped by the framer without being sent (spec §5).
func (h *Handle) Cancel() { h.cancelled.Store(true) }

type sendJob struct {
	payload []byte
	handle  *Handle
}

// Protocol owns a transport.Transport and runs the framing state machine
// on a single goroutine, started by Run.
type Protocol struct {
	t   transport.Transport
	log *logrus.Entry

	mu         sync.Mutex
	cond       *sync.Cond
	received   [][]byte
	readerDone bool
	idle       bool
	sendQueue  []*sendJob
	stopped    chan struct{}
}

// New constructs a Protocol over t. Call Run to start the state machine.
func New(t transport.Transport, log *logrus.Entry) *Protocol {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Protocol{
		t:       t,
		log:     log.WithField("component", "serialproto"),
		stopped: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Run starts the protocol's task. It must be called exactly once, typically
// in its own goroutine: `go p.Run(ctx)`. Run returns when ctx is cancelled
// or the transport reaches EOF.
func (p *Protocol) Run(ctx context.Context) {
	defer close(p.stopped)
	defer p.signalAll(func() { p.readerDone = true })

	if err := p.t.SendBreak(breakDuration); err != nil {
		p.log.WithError(err).Warn("send break failed")
	}
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return
	}
	if err := p.sendControl(frame.NAK); err != nil {
		p.log.WithError(err).Warn("initial NAK failed")
	}

	for {
		if ctx.Err() != nil {
			return
		}
		p.setIdle(true)
		if err := p.waitForWork(ctx); err != nil {
			return
		}
		p.setIdle(false)

		if p.t.HasData() {
			b := p.t.TakeByte()
			if b != frame.SOF {
				if frame.IsControl(b) {
					p.log.Warnf("skipped unexpected control byte 0x%02x while idle", b)
				} else {
					p.log.Warnf("skipped byte 0x%02x while expecting SOF", b)
				}
				continue
			}
			if err := p.receiveFrame(ctx, false); err != nil {
				if errors.Is(err, transport.ErrEndOfStream) {
					return
				}
				p.log.WithError(err).Debug("receive failed")
			}
			continue
		}

		p.popAndSend(ctx)
	}
}

// waitForWork blocks until there is buffered data or a queued send job.
// Both waiters are tied to a derived context so that whichever wins, the
// loser's goroutine is released rather than leaked.
func (p *Protocol) waitForWork(ctx context.Context) error {
	if p.t.HasData() {
		return nil
	}
	p.mu.Lock()
	hasJob := len(p.sendQueue) > 0
	p.mu.Unlock()
	if hasJob {
		return nil
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	dataCh := make(chan error, 1)
	go func() { dataCh <- p.t.Wait(workCtx, 1) }()

	jobCh := make(chan error, 1)
	go func() { jobCh <- p.waitUntil(workCtx, func() bool { return len(p.sendQueue) > 0 }) }()

	select {
	case err := <-dataCh:
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	case err := <-jobCh:
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Protocol) setIdle(v bool) {
	p.mu.Lock()
	p.idle = v
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Idle reports whether the protocol is currently between frames.
func (p *Protocol) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// WaitForIdle blocks until the protocol reaches its idle state.
func (p *Protocol) WaitForIdle(ctx context.Context) error {
	return p.waitUntil(ctx, func() bool { return p.idle })
}

// waitUntil blocks with p.mu held, evaluating pred, until pred is true or
// ctx is done.
func (p *Protocol) waitUntil(ctx context.Context, pred func() bool) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	p.mu.Lock()
	defer p.mu.Unlock()
	for !pred() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.cond.Wait()
	}
	return nil
}

// HasMessage reports whether a decoded frame is waiting to be taken.
func (p *Protocol) HasMessage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received) > 0 || p.readerDone
}

// WaitForMessage blocks until HasMessage() would return true.
func (p *Protocol) WaitForMessage(ctx context.Context) error {
	return p.waitUntil(ctx, func() bool { return len(p.received) > 0 || p.readerDone })
}

// TakeMessage removes and returns the oldest decoded frame, or
// (nil, transport.ErrEndOfStream) if the stream ended with nothing queued.
func (p *Protocol) TakeMessage() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.received) > 0 {
		msg := p.received[0]
		p.received = p.received[1:]
		return msg, nil
	}
	if p.readerDone {
		return nil, transport.ErrEndOfStream
	}
	return nil, nil
}

// Send enqueues payload for transmission and returns a handle that resolves
// once the link layer ACKs, NAKs, or times out.
func (p *Protocol) Send(payload []byte) *Handle {
	h := &Handle{done: make(chan error, 1)}
	p.mu.Lock()
	p.sendQueue = append(p.sendQueue, &sendJob{payload: payload, handle: h})
	p.cond.Broadcast()
	p.mu.Unlock()
	return h
}

// Close releases the underlying transport.
func (p *Protocol) Close() error {
	return p.t.Close()
}

func (p *Protocol) signalAll(mutate func()) {
	p.mu.Lock()
	mutate()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Protocol) sendControl(b byte) error {
	return p.t.Send([]byte{b})
}

// receiveFrame handles the bytes following a SOF already consumed by the
// caller. If cancelSend is true, the frame is replied to with CAN once its
// bytes have arrived, without checking its checksum, and discarded (spec:
// send-side collision handling).
func (p *Protocol) receiveFrame(ctx context.Context, cancelSend bool) error {
	deadline := time.Now().Add(firstByteTimeout)

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	if err := p.t.Wait(waitCtx, 1); err != nil {
		cancel()
		p.log.Warn("timeout while receiving message (length byte)")
		return fmt.Errorf("serialproto: %w", err)
	}
	cancel()
	lengthByte := p.t.TakeByte()
	total := frame.DecodedLength(lengthByte)

	waitCtx2, cancel2 := context.WithDeadline(ctx, deadline)
	defer cancel2()
	if err := p.t.Wait(waitCtx2, total); err != nil {
		p.log.Warn("timeout while receiving message (payload)")
		return fmt.Errorf("serialproto: %w", err)
	}
	body := p.t.Take(total)
	payload := body[:len(body)-1]
	checksum := body[len(body)-1]

	if cancelSend {
		return p.sendControl(frame.CAN)
	}
	if frame.Checksum(payload) != checksum {
		p.log.Warn("checksum mismatch")
		return p.sendControl(frame.NAK)
	}
	if err := p.sendControl(frame.ACK); err != nil {
		return err
	}
	p.signalAll(func() {
		p.received = append(p.received, payload)
	})
	return nil
}

// popAndSend pops the next non-cancelled send job and drives it through
// the ACK/NAK/CAN exchange, resolving its handle.
func (p *Protocol) popAndSend(ctx context.Context) {
	var job *sendJob
	p.mu.Lock()
	for len(p.sendQueue) > 0 {
		candidate := p.sendQueue[0]
		p.sendQueue = p.sendQueue[1:]
		if candidate.handle.cancelled.Load() {
			candidate.handle.done <- ErrCancelled
			continue
		}
		job = candidate
		break
	}
	p.mu.Unlock()
	if job == nil {
		return
	}

	encoded, err := frame.Encode(job.payload)
	if err != nil {
		job.handle.done <- err
		return
	}
	if err := p.t.Send(encoded); err != nil {
		job.handle.done <- err
		return
	}

	deadline := time.Now().Add(ackTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			job.handle.done <- ErrTimeout
			return
		}
		waitCtx, cancel := context.WithTimeout(ctx, remaining)
		err := p.t.Wait(waitCtx, 1)
		cancel()
		if err != nil {
			job.handle.done <- fmt.Errorf("serialproto: %w", err)
			return
		}
		b := p.t.TakeByte()
		switch b {
		case frame.ACK:
			job.handle.done <- nil
			return
		case frame.NAK, frame.CAN:
			job.handle.done <- ErrRejected
			return
		case frame.SOF:
			if err := p.receiveFrame(ctx, true); err != nil {
				p.log.WithError(err).Debug("collision receive failed")
			}
			job.handle.done <- ErrCollision
			return
		default:
			p.log.Warnf("skipped byte 0x%02x while expecting ACK", b)
		}
	}
}
