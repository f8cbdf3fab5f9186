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

// Package dispatch adapts OS readiness notifications to callback
// invocations. New returns the best implementation for the host: an
// epoll-backed Dispatcher on Linux (internal/dispatch/epoll_linux.go), or a
// goroutine-per-handle fallback elsewhere (internal/dispatch/threaded_bsd.go).
package dispatch

import "syscall"

// Dispatcher multiplexes readiness notifications for many descriptors.
// Callbacks for different ids may run concurrently; callbacks for the same
// id are not guaranteed to be serialized by the Dispatcher itself — a
// caller relying on non-overlap (as the Reader does, via its per-connection
// read lock) must enforce it independently.
type Dispatcher interface {
	// Register arms read-readiness notification for conn, invoking
	// onReadable(id) each time it may be readable. id must be conn's own
	// OS descriptor (as netio.Socket.FD and netio.ListenerFD return it):
	// the epoll implementation keys registrations by that descriptor and
	// passes it to onReadable, and Disarm takes the same value.
	Register(id int, conn syscall.Conn, onReadable func(id int)) error
	// Disarm removes id from future notification.
	Disarm(id int) error
	// Close shuts the dispatcher down, releasing any OS resources it owns.
	Close() error
}
