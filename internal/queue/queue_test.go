package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/dialcore/connhub/internal/message"
)

func TestPushPopFIFO(t *testing.T) {
	q := New()
	now := time.Now()
	peer, _ := message.PeerFromIP([]byte{127, 0, 0, 1}, 1)

	q.Push(message.NewPayload(peer, now, message.Message{Type: "X"}))
	q.Push(message.NewPayload(peer, now, message.Message{Type: "Y"}))

	first, ok := q.Pop()
	if !ok || first.Message.Type != "X" {
		t.Fatalf("expected X first, got %+v ok=%v", first, ok)
	}
	second, ok := q.Pop()
	if !ok || second.Message.Type != "Y" {
		t.Fatalf("expected Y second, got %+v ok=%v", second, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestDrainDisposesInOrder(t *testing.T) {
	q := New()
	peer, _ := message.PeerFromIP([]byte{10, 0, 0, 1}, 1)
	types := []string{"A", "B", "C"}
	for _, typ := range types {
		q.Push(message.NewPayload(peer, time.Now(), message.Message{Type: typ}))
	}

	var disposed []string
	q.Drain(func(item message.BufferItem) { disposed = append(disposed, item.Message.Type) })

	if len(disposed) != 3 {
		t.Fatalf("expected 3 disposed items, got %d", len(disposed))
	}
	for i, typ := range types {
		if disposed[i] != typ {
			t.Fatalf("dispose order %v, want %v", disposed, types)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue to be empty after drain")
	}
}

func TestTryPushUnderContention(t *testing.T) {
	q := New()
	q.mu.Lock()
	ok := q.TryPush(message.BufferItem{})
	q.mu.Unlock()

	if ok {
		t.Fatalf("expected TryPush to report contention")
	}
}

func TestConcurrentPushOrderingPerWriter(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	peer, _ := message.PeerFromIP([]byte{1, 2, 3, 4}, 1)

	const writers = 8
	const perWriter = 50
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				fields := map[string]interface{}{"w": w, "i": i}
				q.Push(message.NewPayload(peer, time.Now(), message.Message{Type: "X", Fields: fields}))
			}
		}(w)
	}
	wg.Wait()

	if got, want := q.Len(), writers*perWriter; got != want {
		t.Fatalf("queue length = %d, want %d", got, want)
	}

	next := make([]int, writers)
	for item, ok := q.Pop(); ok; item, ok = q.Pop() {
		w, i := item.Message.Fields["w"].(int), item.Message.Fields["i"].(int)
		if i != next[w] {
			t.Fatalf("writer %d: popped item %d, want %d", w, i, next[w])
		}
		next[w]++
	}
}
