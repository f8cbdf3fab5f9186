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

// Package timer provides the create_timer/stop_timer collaborator the
// liveness scanner and the metrics snapshot writer both run on top of, so
// neither owns a bare time.Ticker directly.
package timer

import (
	"sync"
	"time"
)

// ID names a running periodic callback.
type ID int

// Service runs any number of independent periodic callbacks, each on its
// own goroutine, and stops them all on StopAll.
type Service struct {
	mu      sync.Mutex
	next    ID
	running map[ID]chan struct{}
	closed  bool
}

// NewService returns a Service with no timers running.
func NewService() *Service {
	return &Service{running: make(map[ID]chan struct{})}
}

// Create arms a new periodic callback, invoked every period until Stop, and
// returns an ID to stop it later. A callback still executing when the next
// tick arrives delays that tick; ticks are never queued up.
func (s *Service) Create(callback func(time.Time), period time.Duration) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	done := make(chan struct{})
	if s.closed {
		return id
	}
	s.running[id] = done

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				callback(t)
			}
		}
	}()
	return id
}

// Stop halts the timer identified by id. Stopping an unknown or
// already-stopped id is a no-op.
func (s *Service) Stop(id ID) {
	s.mu.Lock()
	done, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	s.mu.Unlock()
	if ok {
		close(done)
	}
}

// StopAll halts every timer still running and prevents Create from arming
// new ones.
func (s *Service) StopAll() {
	s.mu.Lock()
	s.closed = true
	all := s.running
	s.running = make(map[ID]chan struct{})
	s.mu.Unlock()
	for _, done := range all {
		close(done)
	}
}
