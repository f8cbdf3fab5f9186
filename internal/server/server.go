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

// Package server wires the connection table, delivery queue, event
// dispatcher, liveness scanner and metrics writer into the long-running TCP
// service: Start binds every configured listener, Stop tears everything
// down, and ReadMessage/GetConnectedList/Stats are the public consumer
// surface. Unix-only, like internal/netio and internal/dispatch beneath it.
package server

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dialcore/connhub/internal/config"
	"github.com/dialcore/connhub/internal/connpool"
	"github.com/dialcore/connhub/internal/dispatch"
	"github.com/dialcore/connhub/internal/listenaddr"
	"github.com/dialcore/connhub/internal/liveness"
	"github.com/dialcore/connhub/internal/message"
	"github.com/dialcore/connhub/internal/metrics"
	"github.com/dialcore/connhub/internal/netio"
	"github.com/dialcore/connhub/internal/queue"
	"github.com/dialcore/connhub/internal/timer"
)

// Server is the long-running TCP service. The zero value is not usable;
// construct with New.
type Server struct {
	cfg     config.Config
	decoder message.Decoder

	table *connpool.Table
	queue *queue.Queue

	mu         sync.Mutex
	listeners  []*net.TCPListener
	dispatcher dispatch.Dispatcher
	timers     *timer.Service
	scanTimer  timer.ID
	metricsID  timer.ID
	metrics    *metrics.Writer
	counters   metrics.Counters
	running    bool
}

// New constructs a Server with the given configuration and message
// decoder. Start must be called before it accepts any connection.
func New(cfg config.Config, decoder message.Decoder) *Server {
	return &Server{
		cfg:     cfg,
		decoder: decoder,
		table:   connpool.NewTable(),
		queue:   queue.New(),
	}
}

// ConnectionCount implements metrics.Source.
func (s *Server) ConnectionCount() int { return s.table.Len() }

// QueueDepth implements metrics.Source.
func (s *Server) QueueDepth() int { return s.queue.Len() }

// Counters implements metrics.Source.
func (s *Server) Counters() *metrics.Counters { return &s.counters }

// Start binds every listener named by cfg.Listen (a single "host:port" or a
// "host:minport-maxport" range), arms accept-readiness notification on
// each, installs the liveness-scanner and metrics ticks, and transitions to
// listening. Any step's failure unwinds every prior step.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("server: already started")
	}

	rng, err := listenaddr.Parse(s.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "server: parsing listen address")
	}

	disp, err := dispatch.New()
	if err != nil {
		return errors.Wrap(err, "server: creating event dispatcher")
	}

	var listeners []*net.TCPListener
	unwind := func() {
		for _, l := range listeners {
			l.Close()
		}
		disp.Close()
	}

	for _, addr := range rng.Addresses() {
		lis, err := net.Listen("tcp4", addr)
		if err != nil {
			unwind()
			return errors.Wrapf(err, "server: listening on %s", addr)
		}
		tcpLis := lis.(*net.TCPListener)
		listeners = append(listeners, tcpLis)

		fd, err := netio.ListenerFD(tcpLis)
		if err != nil {
			unwind()
			return errors.Wrap(err, "server: resolving listener descriptor")
		}
		if err := disp.Register(fd, tcpLis, s.makeAcceptCallback(tcpLis)); err != nil {
			unwind()
			return errors.Wrap(err, "server: arming accept readiness")
		}
		log.Printf("connhub: listening on %s", addr)
	}

	s.listeners = listeners
	s.dispatcher = disp
	s.timers = timer.NewService()

	scanner := liveness.New(s.table, s.queue, s.cfg.ProdDuration())
	scanner.OnReport = s.counters.AddTimeoutReported
	s.scanTimer = s.timers.Create(scanner.Tick, s.cfg.ScanInterval())

	if s.cfg.MetricsLog != "" {
		s.metrics = metrics.NewWriter(s.cfg.MetricsLog, s)
		s.metricsID = s.timers.Create(func(t time.Time) {
			if err := s.metrics.Tick(t); err != nil {
				log.Println("connhub: metrics:", err)
			}
		}, s.cfg.MetricsInterval())
	}

	s.running = true
	return nil
}

// Stop disarms every listener, cancels the periodic ticks, closes the
// listening endpoints, destroys every connection record under the table
// lock, and drains the delivery queue. Errors during teardown are logged
// and otherwise ignored, per the best-effort shutdown policy.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	if s.timers != nil {
		s.timers.StopAll()
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			log.Println("connhub: dispatcher close:", err)
		}
	}
	for _, lis := range s.listeners {
		if err := lis.Close(); err != nil {
			log.Println("connhub: listener close:", err)
		}
	}
	s.listeners = nil

	for _, d := range s.table.Destroy() {
		if d.Conn != nil {
			d.Conn.Close()
		}
	}
	s.queue.Drain(func(item message.BufferItem) { item.Dispose() })
}

// ReadMessage is the public consumer operation: it pops one item from the
// delivery queue, returning ok=false if it is currently empty.
func (s *Server) ReadMessage() (message.BufferItem, bool) {
	return s.queue.Pop()
}

// GetConnectedList returns a snapshot of every currently connected peer.
func (s *Server) GetConnectedList() []message.Peer {
	return s.table.Snapshot()
}

// Stats is a one-line census used by the SIGUSR1 handler and tests:
// connections currently live, items waiting in the delivery queue, and the
// cumulative counters the metrics writer also samples.
type Stats struct {
	Connections      int
	QueueDepth       int
	TimeoutsReported int64
	Closed           int64
	SoftwareErrors   int64
}

func (s *Server) Stats() Stats {
	return Stats{
		Connections:      s.table.Len(),
		QueueDepth:       s.queue.Len(),
		TimeoutsReported: atomic.LoadInt64(&s.counters.TimeoutsReported),
		Closed:           atomic.LoadInt64(&s.counters.Closed),
		SoftwareErrors:   atomic.LoadInt64(&s.counters.SoftwareErrors),
	}
}
