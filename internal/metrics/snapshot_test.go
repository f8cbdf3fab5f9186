package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	conns, depth int
	counters     Counters
}

func (f *fakeSource) ConnectionCount() int { return f.conns }
func (f *fakeSource) QueueDepth() int      { return f.depth }
func (f *fakeSource) Counters() *Counters  { return &f.counters }

func TestTickIsNoopWithoutPath(t *testing.T) {
	w := NewWriter("", &fakeSource{})
	if err := w.Tick(time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestTickWritesHeaderThenRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.csv")
	src := &fakeSource{conns: 3, depth: 1}
	src.counters.AddTimeoutReported()
	src.counters.AddClosed()
	src.counters.AddSoftwareError()

	w := NewWriter(path, src)
	if err := w.Tick(time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	src.conns = 4
	if err := w.Tick(time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows): %q", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "Unix,Connections") {
		t.Fatalf("missing header, got %q", lines[0])
	}
	if !strings.Contains(lines[1], ",3,1,1,1,1") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if !strings.Contains(lines[2], ",4,1,1,1,1") {
		t.Fatalf("unexpected second row %q", lines[2])
	}
}
