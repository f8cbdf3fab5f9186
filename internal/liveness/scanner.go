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

// Package liveness implements the periodic heartbeat-age scan: it reports
// stale connections to the delivery queue but never tears one down itself.
package liveness

import (
	"time"

	"github.com/dialcore/connhub/internal/connpool"
	"github.com/dialcore/connhub/internal/message"
	"github.com/dialcore/connhub/internal/queue"
)

// Scanner ties a connection table, a delivery queue and an age threshold
// together for one periodic tick.
type Scanner struct {
	table    *connpool.Table
	q        *queue.Queue
	prod     time.Duration
	now      func() time.Time
	OnReport func()
}

// New returns a Scanner that reports connections whose last heartbeat is
// older than prod (KEEP_ALIVE_PROD). OnReport, if set, is invoked once for
// every ConnectionTimeout item actually enqueued (for metrics counters).
func New(table *connpool.Table, q *queue.Queue, prod time.Duration) *Scanner {
	return &Scanner{table: table, q: q, prod: prod, now: time.Now}
}

// Tick runs one scan. It never blocks: a contended table lock skips the
// tick entirely, and a contended queue lock skips only that one report.
// Reports are not destroys — a genuinely dead connection is torn down later
// by the Reader once it observes closure.
func (s *Scanner) Tick(time.Time) {
	now := s.now()
	s.table.TryScan(func(d *connpool.Data) {
		age := now.Sub(d.Heartbeat())
		if age <= s.prod {
			return
		}
		item := message.NewConnectionTimeoutItem(d.Peer, now)
		if s.q.TryPush(item) && s.OnReport != nil {
			s.OnReport()
		}
	})
}
