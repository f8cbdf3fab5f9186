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

//go:build !linux && unix

package dispatch

import (
	"sync"
	"syscall"
)

// threadedDispatcher is the portable fallback Event dispatcher for
// non-Linux unix hosts: one goroutine per registered descriptor, each
// blocked in the Go runtime's netpoller (via syscall.RawConn.Read) waiting
// for the next readability signal, per §4.8's "one event per thread"
// option.
type threadedDispatcher struct {
	mu     sync.Mutex
	cancel map[int]chan struct{}
	closed bool
}

// New creates a goroutine-per-handle Dispatcher.
func New() (Dispatcher, error) {
	return &threadedDispatcher{cancel: make(map[int]chan struct{})}, nil
}

func (d *threadedDispatcher) Register(id int, conn syscall.Conn, onReadable func(int)) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	d.cancel[id] = done
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			// The one-shot idiom for internal/poll.FD.RawRead: returning
			// false on the first call forces it to actually wait for
			// readiness via the runtime netpoller before calling us again;
			// returning true the second time accepts that wakeup. Returning
			// true on the first call too would make RawRead return at once
			// without ever blocking, busy-spinning this loop. We never
			// consume bytes here, the Reader does.
			first := true
			err := raw.Read(func(uintptr) bool {
				if first {
					first = false
					return false
				}
				return true
			})
			if err != nil {
				return
			}
			select {
			case <-done:
				return
			default:
			}
			onReadable(id)
		}
	}()
	return nil
}

func (d *threadedDispatcher) Disarm(id int) error {
	d.mu.Lock()
	done, ok := d.cancel[id]
	if ok {
		delete(d.cancel, id)
	}
	d.mu.Unlock()
	if ok {
		close(done)
	}
	return nil
}

func (d *threadedDispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	ids := make([]chan struct{}, 0, len(d.cancel))
	for _, done := range d.cancel {
		ids = append(ids, done)
	}
	d.cancel = make(map[int]chan struct{})
	d.mu.Unlock()
	for _, done := range ids {
		close(done)
	}
	return nil
}
