package transport

import (
	"context"
	"net"
	"time"
)

// Wire escape bytes used by the remote serial bridge protocol (spec §6):
// 0x10 escapes the next byte, 0x10 0x00 means a literal 0x10, 0x10 0x01
// means a literal 0x11, and a bare 0x11 on the wire is a BREAK request.
const (
	escByte   byte = 0x10
	breakWire byte = 0x11
)

// Remote is a Transport backed by a TCP connection to a remote serial
// bridge (spec §6). It escapes outbound bytes and unescapes inbound
// bytes; an inbound break request (a bare 0x11) is dropped rather than
// handed to the framer as data.
type Remote struct {
	conn net.Conn
	sb   *streamBuffer
}

// DialRemote connects to a remote serial bridge at addr ("host:port").
func DialRemote(ctx context.Context, addr string) (*Remote, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	r := &Remote{conn: conn, sb: newStreamBuffer()}
	go r.readLoop()
	return r, nil
}

// readLoop reads raw bytes off the wire, unescapes them, and appends the
// decoded device bytes to sb. An inbound break request (a bare 0x11) is
// dropped by unescapeStream and not reported; in this driver breaks only
// ever flow host→device.
func (r *Remote) readLoop() {
	raw := make([]byte, 4096)
	var pending []byte
	for {
		n, err := r.conn.Read(raw)
		if n > 0 {
			pending = append(pending, raw[:n]...)
			decoded, rest := unescapeStream(pending)
			pending = rest
			if len(decoded) > 0 {
				r.sb.mu.Lock()
				r.sb.buf = append(r.sb.buf, decoded...)
				r.sb.cond.Broadcast()
				r.sb.mu.Unlock()
			}
		}
		if err != nil {
			r.sb.mu.Lock()
			r.sb.eof = true
			if err.Error() != "EOF" {
				r.sb.err = err
			}
			r.sb.cond.Broadcast()
			r.sb.mu.Unlock()
			return
		}
	}
}

// unescapeStream decodes as much of in as forms complete escape sequences,
// returning the decoded device bytes and any trailing unconsumed tail (at
// most one byte: a lone 0x10 awaiting its successor). A bare (unescaped)
// 0x11 on the wire is a BREAK request rather than a data byte and is
// dropped from the decoded stream.
func unescapeStream(in []byte) (decoded, tail []byte) {
	out := make([]byte, 0, len(in))
	i := 0
	for i < len(in) {
		b := in[i]
		switch b {
		case escByte:
			if i+1 >= len(in) {
				return out, in[i:]
			}
			switch in[i+1] {
			case 0x00:
				out = append(out, escByte)
			case 0x01:
				out = append(out, breakWire)
			default:
				out = append(out, in[i+1])
			}
			i += 2
		case breakWire:
			// BREAK request; not a data byte.
			i++
		default:
			out = append(out, b)
			i++
		}
	}
	return out, nil
}

// escapeStream encodes outbound device bytes for the wire: a literal 0x10
// becomes 0x10 0x00, a literal 0x11 becomes 0x10 0x01 (so it is never
// confused with a bare BREAK request).
func escapeStream(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for _, b := range in {
		switch b {
		case escByte:
			out = append(out, escByte, 0x00)
		case breakWire:
			out = append(out, escByte, 0x01)
		default:
			out = append(out, b)
		}
	}
	return out
}

func (r *Remote) Wait(ctx context.Context, n int) error { return r.sb.wait(ctx, n) }
func (r *Remote) HasData() bool                         { return r.sb.hasData() }
func (r *Remote) Take(n int) []byte                     { return r.sb.take(n) }
func (r *Remote) TakeByte() byte                        { return r.sb.takeByte() }
func (r *Remote) AtEOF() bool                            { return r.sb.atEOF() }

func (r *Remote) Send(data []byte) error {
	_, err := r.conn.Write(escapeStream(data))
	return err
}

// SendBreak requests the bridge assert a break on the device side by
// sending the reserved 0x11 wire byte. d is honored by the remote bridge,
// not locally, so it is not enforced here.
func (r *Remote) SendBreak(d time.Duration) error {
	_, err := r.conn.Write([]byte{breakWire})
	return err
}

func (r *Remote) Close() error { return r.conn.Close() }
