// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

//go:build unix

// Package netio wraps a TCP connection's raw file descriptor for
// non-blocking reads, the same syscall.RawConn.Read + EAGAIN technique the
// teacher's raw splice copy uses, adapted here to feed the frame reader
// instead of an io.Writer.
package netio

import (
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pkg/errors"
)

// Socket is a non-blocking byte source over one accepted TCP connection. It
// implements frame.Source.
type Socket struct {
	conn *net.TCPConn
	raw  syscall.RawConn
	fd   int

	buf     []byte
	pending []byte // bytes already pulled off the wire, not yet handed out
}

// NewSocket wraps conn, resolving its descriptor once up front.
func NewSocket(conn *net.TCPConn) (*Socket, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "netio: SyscallConn")
	}

	var fd int
	var ctlErr error
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		ctlErr = err
	}
	if ctlErr != nil {
		return nil, errors.Wrap(ctlErr, "netio: resolving descriptor")
	}

	return &Socket{conn: conn, raw: raw, fd: fd, buf: make([]byte, 4096)}, nil
}

// FD returns the OS descriptor backing this connection; it is the handle
// used as the connection table key and the event dispatcher registration
// id.
func (s *Socket) FD() int { return s.fd }

// Fill hands out one already-buffered byte if one is pending, otherwise
// performs a single non-blocking raw read and hands out its first byte,
// retaining the rest for subsequent calls. Buffering bulk reads this way
// keeps syscall volume proportional to bytes actually on the wire while
// still presenting frame.ReadObject with a byte-at-a-time, no-lookahead
// source.
func (s *Socket) Fill() (chunk []byte, wouldBlock bool, err error) {
	if len(s.pending) > 0 {
		b := s.pending[0]
		s.pending = s.pending[1:]
		return []byte{b}, false, nil
	}

	n, rerr := s.rawRead()
	if rerr == unix.EAGAIN {
		return nil, true, nil
	}
	if rerr != nil {
		return nil, false, rerr
	}
	if n == 0 {
		return nil, false, io.EOF
	}

	if n > 1 {
		s.pending = append(s.pending[:0:0], s.buf[1:n]...)
	}
	return s.buf[0:1], false, nil
}

func (s *Socket) rawRead() (n int, rerr error) {
	cerr := s.raw.Read(func(fd uintptr) bool {
		n, rerr = syscall.Read(int(fd), s.buf)
		// Always accept the first attempt: returning false on EAGAIN would
		// make RawRead wait for readiness instead of reporting wouldBlock.
		return true
	})
	if cerr != nil {
		return 0, cerr
	}
	return n, rerr
}

// Buffered reports whether a byte pulled in by an earlier bulk read is still
// waiting in pending. A true result after a Complete frame means the kernel
// socket buffer was already drained by that bulk read, so a level-triggered
// readiness notification will not fire again on its own — the caller must
// re-invoke the Reader for this handle itself to drain the rest.
func (s *Socket) Buffered() bool { return len(s.pending) > 0 }

// PeekClosed performs the Reader's peer-closed probe (one non-consuming
// byte peek). closed=true means the peer closed the connection (orderly
// EOF or a terminal error); closed=false with err=nil means data is ready
// to be consumed normally, or the probe itself would have blocked (no data
// outstanding, connection still live).
func (s *Socket) PeekClosed() (closed bool, err error) {
	var n int
	var rerr error
	cerr := s.raw.Read(func(fd uintptr) bool {
		one := make([]byte, 1)
		n, _, rerr = unix.Recvfrom(int(fd), one, unix.MSG_PEEK)
		return true
	})
	if cerr != nil {
		return false, cerr
	}
	if rerr == unix.EAGAIN {
		return false, nil
	}
	if rerr != nil {
		return true, rerr
	}
	if n == 0 {
		return true, nil
	}
	return false, nil
}

// ListenerFD resolves the OS descriptor behind a listening socket, used to
// register accept-readiness with the event dispatcher.
func ListenerFD(lis *net.TCPListener) (int, error) {
	raw, err := lis.SyscallConn()
	if err != nil {
		return 0, errors.Wrap(err, "netio: listener SyscallConn")
	}
	var fd int
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return 0, errors.Wrap(err, "netio: resolving listener descriptor")
	}
	return fd, nil
}
