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

package server

import (
	"time"

	"github.com/dialcore/connhub/internal/connpool"
	"github.com/dialcore/connhub/internal/frame"
	"github.com/dialcore/connhub/internal/message"
)

// onConnReadable is the Reader: it runs once per read-readiness event for
// handle, in the order required by the classification table (peer-closed
// probe before framing), draining every frame a single bulk read already
// buffered before returning.
func (s *Server) onConnReadable(handle int) {
	h := connpool.Handle(handle)

	data, ok := s.table.Lookup(h)
	if !ok {
		return // stale event for an already-removed handle
	}

	if !data.ReadLock.TryLock() {
		return // another reader is active; the next readiness event retries
	}
	defer data.ReadLock.Unlock()

	if data.Tombstoned.Load() {
		return
	}

	now := time.Now()

	if closed, _ := data.Socket.PeekClosed(); closed {
		s.queue.Push(message.NewConnectionClosedItem(data.Peer, now))
		s.counters.AddClosed()
		s.destroyConn(h, data)
		return
	}

	// A single bulk read inside Socket.Fill can pull more than one complete
	// object off the wire in one go, draining the kernel socket buffer ahead
	// of the first frame boundary. Level-triggered readiness won't fire
	// again on its own once that happens, so after each Complete frame this
	// loop checks Socket.Buffered and keeps draining frames itself until the
	// Socket's own pending buffer is empty — a software re-arm standing in
	// for the readiness event the kernel has nothing left to report.
	for {
		result := frame.ReadObject(data.Socket)
		switch result.Outcome {
		case frame.WouldBlock:
			return

		case frame.ProtocolError:
			s.queue.Push(message.NewSoftwareErrorItem(data.Peer, now, result.Err.Error()))
			s.counters.AddSoftwareError()
			s.destroyConn(h, data)
			return

		case frame.Complete:
			msg, err := s.decoder.Decode(result.Bytes)
			if err != nil {
				s.queue.Push(message.NewSoftwareErrorItem(data.Peer, now, "Could not decode message"))
				s.counters.AddSoftwareError()
			} else if msg.IsKeepAlive() {
				data.Touch(now)
			} else {
				s.queue.Push(message.NewPayload(data.Peer, now, msg))
			}
		}

		if !data.Socket.Buffered() {
			return
		}
	}
}

// destroyConn removes handle from the table and releases its resources.
// Called only while holding data.ReadLock, matching the Reader's step 3/4
// destroy path; the record is tombstoned before the lock this function
// itself is about to release is ever contended again.
func (s *Server) destroyConn(h connpool.Handle, data *connpool.Data) {
	data.Tombstoned.Store(true)
	s.table.Remove(h)
	if s.dispatcher != nil {
		s.dispatcher.Disarm(int(h))
	}
	if data.Conn != nil {
		data.Conn.Close()
	}
}
