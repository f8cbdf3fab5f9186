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

//go:build linux

package dispatch

import (
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pkg/errors"
)

// epollDispatcher is the production Event dispatcher: one epoll instance
// shared by every registered descriptor, polled from a single background
// goroutine that fans notifications out to per-handle callbacks run on
// their own goroutines.
type epollDispatcher struct {
	epfd int

	mu        sync.Mutex
	callbacks map[int]func(int)

	closeCh   chan struct{}
	closeOnce sync.Once
}

// New creates an epoll-backed Dispatcher.
func New() (Dispatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "dispatch: epoll_create1")
	}
	d := &epollDispatcher{
		epfd:      epfd,
		callbacks: make(map[int]func(int)),
		closeCh:   make(chan struct{}),
	}
	go d.loop()
	return d, nil
}

func (d *epollDispatcher) Register(id int, conn syscall.Conn, onReadable func(int)) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return errors.Wrap(err, "dispatch: SyscallConn")
	}

	var fd int
	if cerr := raw.Control(func(s uintptr) { fd = int(s) }); cerr != nil {
		return errors.Wrap(cerr, "dispatch: resolving descriptor")
	}

	d.mu.Lock()
	d.callbacks[fd] = onReadable
	d.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		d.mu.Lock()
		delete(d.callbacks, fd)
		d.mu.Unlock()
		return errors.Wrapf(err, "dispatch: epoll_ctl add fd=%d", fd)
	}
	return nil
}

func (d *epollDispatcher) Disarm(id int) error {
	d.mu.Lock()
	delete(d.callbacks, id)
	d.mu.Unlock()
	// Best-effort: EBADF/ENOENT mean the descriptor is already gone.
	_ = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, id, nil)
	return nil
}

func (d *epollDispatcher) loop() {
	events := make([]unix.EpollEvent, 256)
	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		n, err := unix.EpollWait(d.epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			d.mu.Lock()
			cb := d.callbacks[fd]
			d.mu.Unlock()
			if cb == nil {
				continue
			}
			// Callbacks for different handles run concurrently; same-handle
			// overlap is left to the caller's own per-handle lock.
			go cb(fd)
		}
	}
}

func (d *epollDispatcher) Close() error {
	d.closeOnce.Do(func() { close(d.closeCh) })
	return unix.Close(d.epfd)
}
