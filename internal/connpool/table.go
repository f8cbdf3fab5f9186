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

// Package connpool owns the live connection table: one record per accepted
// socket, keyed by its OS descriptor, mutated only under the table's lock
// (for membership) or a per-record lock (for reads).
package connpool

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dialcore/connhub/internal/message"
)

// Handle is the OS connection identifier: the underlying file descriptor.
type Handle int

// Data is one live connection's record. ReadLock serializes the Reader for
// this connection; Tombstoned is set before teardown releases ReadLock, so a
// reader that wins the lock after teardown has begun can still tell it must
// abandon the handle (§5 of the design this package implements).
type Data struct {
	Handle     Handle
	Peer       message.Peer
	Conn       net.Conn
	Socket     Reader
	ReadLock   sync.Mutex
	Tombstoned atomic.Bool

	heartbeat atomic.Int64 // unix nanoseconds; see Heartbeat/Touch
}

// Reader is the non-blocking byte source and peer-closed probe the owning
// Data's connection speaks, satisfied by *internal/netio.Socket. Declared
// here, rather than imported from netio, to keep this package free of a
// platform-specific (unix-only) dependency.
type Reader interface {
	Fill() (chunk []byte, wouldBlock bool, err error)
	PeekClosed() (closed bool, err error)
	Buffered() bool
}

// NewData creates a record with last_heartbeat initialized to at, as spec'd
// for accept time.
func NewData(handle Handle, peer message.Peer, conn net.Conn, at time.Time) *Data {
	d := &Data{Handle: handle, Peer: peer, Conn: conn}
	d.heartbeat.Store(at.UnixNano())
	return d
}

// Heartbeat returns the last observed heartbeat time. Safe to call from the
// liveness scanner (table lock held) concurrently with Touch (read lock
// held) because the timestamp is stored atomically rather than guarded by
// either lock.
func (d *Data) Heartbeat() time.Time {
	return time.Unix(0, d.heartbeat.Load())
}

// Touch refreshes the heartbeat timestamp. Called only by this connection's
// Reader while holding ReadLock.
func (d *Data) Touch(at time.Time) {
	d.heartbeat.Store(at.UnixNano())
}

// ErrDuplicateHandle marks an internal invariant violation: a handle that
// accept() just produced collided with one already registered.
var ErrDuplicateHandle = errors.New("connpool: duplicate handle")

// Table is the process-wide handle -> Data map. All operations serialize on
// a single mutex.
type Table struct {
	mu    sync.Mutex
	conns map[Handle]*Data
}

func NewTable() *Table {
	return &Table{conns: make(map[Handle]*Data)}
}

// Insert adds d to the table. A duplicate handle is a fatal internal error:
// bookkeeping is broken if accept() just produced a handle that collides
// with one already live.
func (t *Table) Insert(d *Data) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.conns[d.Handle]; exists {
		panic(errors.Wrapf(ErrDuplicateHandle, "handle=%d", d.Handle))
	}
	t.conns[d.Handle] = d
}

// Lookup returns the record for h, if any.
func (t *Table) Lookup(h Handle) (*Data, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.conns[h]
	return d, ok
}

// Remove removes h from the table, if present, returning the removed
// record. The caller is responsible for closing the resources it names.
func (t *Table) Remove(h Handle) (*Data, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.conns[h]
	if ok {
		delete(t.conns, h)
	}
	return d, ok
}

// TryScan attempts to acquire the table lock and, on success, invokes visit
// for every record, returning scanned=true. On contention it returns false
// immediately without blocking, as the liveness scanner requires.
func (t *Table) TryScan(visit func(*Data)) (scanned bool) {
	if !t.mu.TryLock() {
		return false
	}
	defer t.mu.Unlock()
	for _, d := range t.conns {
		visit(d)
	}
	return true
}

// Snapshot returns the peers of every currently registered connection, for
// get_connected_list.
func (t *Table) Snapshot() []message.Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	peers := make([]message.Peer, 0, len(t.conns))
	for _, d := range t.conns {
		peers = append(peers, d.Peer)
	}
	return peers
}

// Len reports the number of live connections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Destroy empties the table, tombstoning every record before it is removed,
// and returns them so the caller (server shutdown) can close their
// connections outside the table lock.
func (t *Table) Destroy() []*Data {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Data, 0, len(t.conns))
	for h, d := range t.conns {
		d.Tombstoned.Store(true)
		out = append(out, d)
		delete(t.conns, h)
	}
	return out
}
