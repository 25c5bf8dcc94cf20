//go:build linux

package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Local is a Transport backed by a local tty device, opened at 115200 baud
// 8N1 with RTS/CTS hardware flow control, per spec §6.
type Local struct {
	f  *os.File
	sb *streamBuffer
}

// OpenLocal opens path as a raw 115200-8N1 serial device with hardware
// flow control enabled.
func OpenLocal(path string) (*Local, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	if err := configureTermios(int(f.Fd())); err != nil {
		f.Close()
		return nil, fmt.Errorf("transport: configure %s: %w", path, err)
	}
	l := &Local{f: f, sb: newStreamBuffer()}
	go l.sb.pump(f)
	return l, nil
}

func configureTermios(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	// Raw mode: no line discipline, no echo, no signal generation.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | unix.CRTSCTS

	// Non-canonical read: return as soon as 1 byte is available.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	t.Cflag &^= unix.CBAUD
	t.Cflag |= unix.B115200
	t.Ispeed = unix.B115200
	t.Ospeed = unix.B115200

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func (l *Local) Wait(ctx context.Context, n int) error { return l.sb.wait(ctx, n) }
func (l *Local) HasData() bool                         { return l.sb.hasData() }
func (l *Local) Take(n int) []byte                     { return l.sb.take(n) }
func (l *Local) TakeByte() byte                        { return l.sb.takeByte() }
func (l *Local) AtEOF() bool { return l.sb.atEOF() }

func (l *Local) Send(data []byte) error {
	_, err := l.f.Write(data)
	return err
}

// SendBreak asserts a 0.25s line break (TCSBRKP with argument 0) and, when
// d is longer, then waits out the rest of d with the line idle.
func (l *Local) SendBreak(d time.Duration) error {
	if err := unix.IoctlSetInt(int(l.f.Fd()), unix.TCSBRKP, 0); err != nil {
		return err
	}
	if d > 250*time.Millisecond {
		time.Sleep(d - 250*time.Millisecond)
	}
	return nil
}

func (l *Local) Close() error { return l.f.Close() }
