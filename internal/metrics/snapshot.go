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

// Package metrics is a pure observer: it periodically snapshots counters
// exposed by the server and appends them to a CSV file. It never mutates
// connection or queue state and gates no operation described elsewhere.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Snapshot is one row of observed counters.
type Snapshot struct {
	Connections      int
	QueueDepth       int
	TimeoutsReported int64
	Closed           int64
	SoftwareErrors   int64
}

func (s Snapshot) header() []string {
	return []string{"Unix", "Connections", "QueueDepth", "TimeoutsReported", "Closed", "SoftwareErrors"}
}

func (s Snapshot) row(at time.Time) []string {
	return []string{
		fmt.Sprint(at.Unix()),
		fmt.Sprint(s.Connections),
		fmt.Sprint(s.QueueDepth),
		fmt.Sprint(s.TimeoutsReported),
		fmt.Sprint(s.Closed),
		fmt.Sprint(s.SoftwareErrors),
	}
}

// Counters tracks the cumulative event counts a Writer samples alongside a
// live Snapshot. All fields are safe for concurrent increment from the
// Reader/Acceptor/Scanner goroutines.
type Counters struct {
	TimeoutsReported int64
	Closed           int64
	SoftwareErrors   int64
}

func (c *Counters) AddTimeoutReported() { atomic.AddInt64(&c.TimeoutsReported, 1) }
func (c *Counters) AddClosed()          { atomic.AddInt64(&c.Closed, 1) }
func (c *Counters) AddSoftwareError()   { atomic.AddInt64(&c.SoftwareErrors, 1) }

// Source supplies the live values a Writer samples on every tick.
type Source interface {
	ConnectionCount() int
	QueueDepth() int
	Counters() *Counters
}

// Writer appends one CSV row per tick to path, splitting path into
// directory and filename and running the filename half through
// time.Format, and writing a header row the first time the file is empty.
type Writer struct {
	path   string
	source Source
	now    func() time.Time
}

// NewWriter returns a Writer. path may be empty, in which case Tick is a
// no-op (metrics logging is simply disabled).
func NewWriter(path string, source Source) *Writer {
	return &Writer{path: path, source: source, now: time.Now}
}

// Tick samples source and appends one row. Errors are returned rather than
// logged directly so the caller can decide how noisy to be.
func (w *Writer) Tick(time.Time) error {
	if w.path == "" {
		return nil
	}
	now := w.now()
	dir, name := filepath.Split(w.path)
	f, err := os.OpenFile(dir+now.Format(name), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return errors.Wrap(err, "metrics: open snapshot file")
	}
	defer f.Close()

	snap := Snapshot{
		Connections: w.source.ConnectionCount(),
		QueueDepth:  w.source.QueueDepth(),
	}
	counters := w.source.Counters()
	snap.TimeoutsReported = atomic.LoadInt64(&counters.TimeoutsReported)
	snap.Closed = atomic.LoadInt64(&counters.Closed)
	snap.SoftwareErrors = atomic.LoadInt64(&counters.SoftwareErrors)

	cw := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := cw.Write(snap.header()); err != nil {
			return errors.Wrap(err, "metrics: write header")
		}
	}
	if err := cw.Write(snap.row(now)); err != nil {
		return errors.Wrap(err, "metrics: write row")
	}
	cw.Flush()
	return cw.Error()
}
