package serialproto

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xx25/zwaved/internal/frame"
)

// fakeTransport is a minimal in-memory transport.Transport for exercising
// the state machine without a real tty or socket.
type fakeTransport struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   []byte // bytes the protocol will read
	out  []byte // bytes the protocol has written
	eof  bool
}

func newFakeTransport() *fakeTransport {
	ft := &fakeTransport{}
	ft.cond = sync.NewCond(&ft.mu)
	return ft
}

func (f *fakeTransport) feed(b []byte) {
	f.mu.Lock()
	f.in = append(f.in, b...)
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *fakeTransport) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.out))
	copy(out, f.out)
	return out
}

// resetOut discards whatever has been written so far (used to skip past
// the protocol's startup BREAK+NAK sequence before asserting on test
// traffic).
func (f *fakeTransport) resetOut() {
	f.mu.Lock()
	f.out = nil
	f.mu.Unlock()
}

func (f *fakeTransport) Wait(ctx context.Context, n int) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		case <-stop:
		}
	}()
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.in) < n {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.eof {
			return context.Canceled
		}
		f.cond.Wait()
	}
	return nil
}

func (f *fakeTransport) HasData() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in) > 0
}

func (f *fakeTransport) Take(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]byte(nil), f.in[:n]...)
	f.in = f.in[n:]
	return out
}

func (f *fakeTransport) TakeByte() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.in[0]
	f.in = f.in[1:]
	return b
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	f.out = append(f.out, data...)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendBreak(time.Duration) error { return nil }
func (f *fakeTransport) AtEOF() bool                   { return false }
func (f *fakeTransport) Close() error                  { return nil }

func TestReceiveAcksGoodFrame(t *testing.T) {
	ft := newFakeTransport()
	p := New(ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return len(ft.written()) > 0 }, time.Second, time.Millisecond)
	ft.resetOut()

	payload := []byte{0xAA, 0xBB, 0xCC}
	encoded, err := frame.Encode(payload)
	require.NoError(t, err)
	ft.feed(encoded)

	require.NoError(t, p.WaitForMessage(ctx))
	msg, err := p.TakeMessage()
	require.NoError(t, err)
	require.Equal(t, payload, msg)

	require.Eventually(t, func() bool {
		w := ft.written()
		return len(w) == 1 && w[0] == frame.ACK
	}, time.Second, time.Millisecond)
}

func TestReceiveNaksBadChecksum(t *testing.T) {
	ft := newFakeTransport()
	p := New(ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return len(ft.written()) > 0 }, time.Second, time.Millisecond)
	ft.resetOut()

	payload := []byte{0xAA, 0xBB}
	encoded, err := frame.Encode(payload)
	require.NoError(t, err)
	encoded[len(encoded)-1] ^= 0xFF // corrupt checksum
	ft.feed(encoded)

	require.Eventually(t, func() bool {
		w := ft.written()
		return len(w) == 1 && w[0] == frame.NAK
	}, time.Second, time.Millisecond)
	require.False(t, p.HasMessage())
}

func TestSendCompletesOnACK(t *testing.T) {
	ft := newFakeTransport()
	p := New(ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return len(ft.written()) > 0 }, time.Second, time.Millisecond)
	ft.resetOut()

	handle := p.Send([]byte{0x01, 0x02})

	require.Eventually(t, func() bool { return len(ft.written()) > 0 }, time.Second, time.Millisecond)
	ft.feed([]byte{frame.ACK})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, handle.Wait(waitCtx))
}

func TestSendFailsOnNAK(t *testing.T) {
	ft := newFakeTransport()
	p := New(ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return len(ft.written()) > 0 }, time.Second, time.Millisecond)
	ft.resetOut()

	handle := p.Send([]byte{0x01})

	require.Eventually(t, func() bool { return len(ft.written()) > 0 }, time.Second, time.Millisecond)
	ft.feed([]byte{frame.NAK})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	err := handle.Wait(waitCtx)
	require.ErrorIs(t, err, ErrRejected)
}
