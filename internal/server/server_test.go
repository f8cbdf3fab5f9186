//go:build unix

package server

import (
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dialcore/connhub/internal/config"
	"github.com/dialcore/connhub/internal/message"
)

var testPort int32 = 19201

func nextAddr() string {
	p := atomic.AddInt32(&testPort, 1)
	return fmt.Sprintf("127.0.0.1:%d", p)
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, string) {
	t.Helper()
	addr := nextAddr()
	cfg.Listen = addr
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = 1
	}
	if cfg.KeepAliveCheckPeriod == 0 {
		cfg.KeepAliveCheckPeriod = 1
	}
	if cfg.KeepAliveProd == 0 {
		cfg.KeepAliveProd = 1
	}
	s := New(cfg, message.JSONDecoder{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, addr
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp4", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return conn
}

func waitForMessage(t *testing.T, s *Server, timeout time.Duration) message.BufferItem {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if item, ok := s.ReadMessage(); ok {
			return item
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for a delivered message")
	return message.BufferItem{}
}

func TestSinglePayloadDelivered(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	conn := dial(t, addr)
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"X","v":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	item := waitForMessage(t, s, 2*time.Second)
	if item.Kind != message.Payload {
		t.Fatalf("got kind %v, want Payload", item.Kind)
	}
	if item.Message.Type != "X" {
		t.Fatalf("got type %q, want X", item.Message.Type)
	}
}

func TestInterleavedFramingDeliversBothInOrder(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	conn := dial(t, addr)
	defer conn.Close()

	if _, err := conn.Write([]byte("\n\r{\"type\":\"X\"}{\"type\":\"Y\"}")); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := waitForMessage(t, s, 2*time.Second)
	second := waitForMessage(t, s, 2*time.Second)
	if first.Message.Type != "X" || second.Message.Type != "Y" {
		t.Fatalf("got order %q, %q; want X, Y", first.Message.Type, second.Message.Type)
	}
}

func TestHeartbeatSuppression(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	conn := dial(t, addr)
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"KEEP_ALIVE"}{"type":"X"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	item := waitForMessage(t, s, 2*time.Second)
	if item.Message.Type != "X" {
		t.Fatalf("got type %q, want X", item.Message.Type)
	}
	if _, ok := s.ReadMessage(); ok {
		t.Fatalf("expected KEEP_ALIVE to never reach the queue")
	}
}

func TestDecodeFailureReportsSoftwareError(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	conn := dial(t, addr)
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	item := waitForMessage(t, s, 2*time.Second)
	if item.Kind != message.SoftwareError {
		t.Fatalf("got kind %v, want SoftwareError", item.Kind)
	}
	if item.Reason != "Could not decode message" {
		t.Fatalf("got reason %q", item.Reason)
	}
}

func TestAbruptCloseDeliversConnectionClosed(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	conn := dial(t, addr)
	conn.Close()

	item := waitForMessage(t, s, 2*time.Second)
	if item.Kind != message.ConnectionClosed {
		t.Fatalf("got kind %v, want ConnectionClosed", item.Kind)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(s.GetConnectedList()) != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(s.GetConnectedList()) != 0 {
		t.Fatalf("expected the closed peer to be removed from the connected list")
	}
}

func TestTimeoutReportedWithoutDestroying(t *testing.T) {
	s, addr := newTestServer(t, config.Config{
		KeepAliveInterval:    1,
		KeepAliveCheckPeriod: 1,
		KeepAliveProd:        1,
	})
	conn := dial(t, addr)
	defer conn.Close()

	item := waitForMessage(t, s, 4*time.Second)
	if item.Kind != message.ConnectionTimeout {
		t.Fatalf("got kind %v, want ConnectionTimeout", item.Kind)
	}
	if len(s.GetConnectedList()) != 1 {
		t.Fatalf("expected the connection to remain in the table after a reported timeout")
	}
}

func TestGetConnectedListReflectsConcurrentConnects(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	const n = 8
	conns := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		conns[i] = dial(t, addr)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(s.GetConnectedList()) != n {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(s.GetConnectedList()); got != n {
		t.Fatalf("got %d connected peers, want %d", got, n)
	}
}

func TestStopDrainsQueueToEmpty(t *testing.T) {
	s, addr := newTestServer(t, config.Config{})
	conn := dial(t, addr)
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"X"}{"type":"Y"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	s.Stop()

	for i := 0; i < 10; i++ {
		if _, ok := s.ReadMessage(); ok {
			t.Fatalf("expected ReadMessage to stay empty after Stop drains the queue")
		}
	}
}
