// Package transport defines the byte-transport contract the serial protocol
// layer runs on, and two concrete implementations: a local tty and a TCP
// remote serial bridge. Framing, ACK/NAK/CAN, and retransmission are not
// this package's concern — see serialproto.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrEndOfStream is returned by Wait once the transport has reached
// EOF and no more bytes will ever arrive.
var ErrEndOfStream = errors.New("transport: end of stream")

// Transport is the collaborator contract described in spec §4.A: a
// strictly FIFO byte stream with edge-triggered arrival notification.
// Implementations must be safe for the reader side to be driven from a
// single goroutine; Send/SendBreak/Close may be called from others.
type Transport interface {
	// Wait blocks until at least n bytes are available to Take, ctx is
	// done, or the stream reaches EOF (ErrEndOfStream).
	Wait(ctx context.Context, n int) error

	// HasData reports whether at least one byte is currently buffered.
	HasData() bool

	// Take removes and returns exactly n buffered bytes. Callers must only
	// call this after Wait(ctx, n) has returned nil.
	Take(n int) []byte

	// TakeByte removes and returns a single buffered byte.
	TakeByte() byte

	// Send writes data to the transport. It may block until accepted by
	// the OS/network layer, but performs no framing-level retries.
	Send(data []byte) error

	// SendBreak asserts a line break condition for at least d.
	SendBreak(d time.Duration) error

	// AtEOF reports whether the stream has been closed by the peer.
	AtEOF() bool

	// Close releases the underlying resource.
	Close() error
}
