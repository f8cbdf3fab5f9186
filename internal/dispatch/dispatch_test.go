//go:build unix

package dispatch

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dialcore/connhub/internal/netio"
)

func TestDispatcherFiresOnAcceptReadiness(t *testing.T) {
	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()
	tcpLis := lis.(*net.TCPListener)

	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	fd, err := netio.ListenerFD(tcpLis)
	if err != nil {
		t.Fatalf("ListenerFD: %v", err)
	}

	fired := make(chan struct{}, 1)
	if err := d.Register(fd, tcpLis, func(int) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	conn, err := net.DialTimeout("tcp4", tcpLis.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected accept-readiness callback to fire")
	}
}

func TestDisarmStopsFurtherCallbacks(t *testing.T) {
	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()
	tcpLis := lis.(*net.TCPListener)

	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	fd, err := netio.ListenerFD(tcpLis)
	if err != nil {
		t.Fatalf("ListenerFD: %v", err)
	}

	var count int64
	if err := d.Register(fd, tcpLis, func(int) {
		atomic.AddInt64(&count, 1)
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Disarm(fd); err != nil {
		t.Fatalf("Disarm: %v", err)
	}

	conn, err := net.DialTimeout("tcp4", tcpLis.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt64(&count) != 0 {
		t.Fatalf("expected no callbacks after Disarm, got %d", count)
	}
}
