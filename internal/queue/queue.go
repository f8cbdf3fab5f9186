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

// Package queue implements the single process-wide delivery FIFO.
package queue

import (
	"container/list"
	"sync"

	"github.com/dialcore/connhub/internal/message"
)

// Queue is an unbounded FIFO of message.BufferItem, guarded by a single
// mutex. Cross-writer ordering is the order of lock acquisition.
type Queue struct {
	mu   sync.Mutex
	list *list.List
}

func New() *Queue {
	return &Queue{list: list.New()}
}

// Push appends item to the tail. It never blocks except to acquire the
// queue's mutex.
func (q *Queue) Push(item message.BufferItem) {
	q.mu.Lock()
	q.list.PushBack(item)
	q.mu.Unlock()
}

// TryPush appends item to the tail only if the mutex is immediately
// available, returning false on contention. The liveness scanner uses this
// so that a blocked push never holds the connection table lock.
func (q *Queue) TryPush(item message.BufferItem) bool {
	if !q.mu.TryLock() {
		return false
	}
	q.list.PushBack(item)
	q.mu.Unlock()
	return true
}

// Pop removes and returns the head item, or reports ok=false if empty.
func (q *Queue) Pop() (item message.BufferItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.list.Front()
	if front == nil {
		return message.BufferItem{}, false
	}
	q.list.Remove(front)
	return front.Value.(message.BufferItem), true
}

// Drain empties the queue, invoking dispose on each remaining item in FIFO
// order.
func (q *Queue) Drain(dispose func(message.BufferItem)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.list.Front(); e != nil; {
		next := e.Next()
		item := e.Value.(message.BufferItem)
		q.list.Remove(e)
		if dispose != nil {
			dispose(item)
		}
		e = next
	}
}

// Len reports the current queue depth. Intended for metrics, not control flow.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}
