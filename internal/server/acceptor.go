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
	"log"
	"net"
	"time"

	"github.com/dialcore/connhub/internal/connpool"
	"github.com/dialcore/connhub/internal/message"
	"github.com/dialcore/connhub/internal/netio"
)

// makeAcceptCallback returns the accept-readiness handler registered with
// the event dispatcher for one listening endpoint.
func (s *Server) makeAcceptCallback(lis *net.TCPListener) func(int) {
	return func(int) {
		conn, err := lis.AcceptTCP()
		if err != nil {
			// Transient accept failure (e.g. the listener is being closed
			// concurrently with shutdown); nothing more to do this event.
			return
		}
		if err := s.registerConn(conn); err != nil {
			log.Println("connhub: accept:", err)
		}
	}
}

// registerConn implements the Acceptor's steps 2-4: build a ConnectionData,
// insert it into the table, and arm read-readiness notification on it. Any
// failure closes the handle and discards the record.
func (s *Server) registerConn(conn *net.TCPConn) error {
	now := time.Now()

	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return err
	}
	ip := net.ParseIP(host)
	peer, ok := message.PeerFromIP(ip, atoiOrZero(portStr))
	if !ok {
		conn.Close()
		return errNotIPv4
	}

	sock, err := netio.NewSocket(conn)
	if err != nil {
		conn.Close()
		return err
	}

	handle := connpool.Handle(sock.FD())
	data := connpool.NewData(handle, peer, conn, now)
	data.Socket = sock

	s.table.Insert(data)

	if err := s.dispatcher.Register(int(handle), conn, s.onConnReadable); err != nil {
		s.table.Remove(handle)
		conn.Close()
		return err
	}
	return nil
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

var errNotIPv4 = notIPv4Error{}

type notIPv4Error struct{}

func (notIPv4Error) Error() string { return "server: peer address is not IPv4" }
