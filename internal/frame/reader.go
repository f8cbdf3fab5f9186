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

// Package frame reads one brace-delimited JSON object off a non-blocking
// byte source, tracking nesting depth with no awareness of string literals
// (open question: braces inside a quoted string will misframe the object;
// upstream clients are expected not to embed them).
package frame

import "github.com/pkg/errors"

// Outcome classifies the result of one ReadObject call.
type Outcome int

const (
	// Complete means a full balanced object was read.
	Complete Outcome = iota
	// WouldBlock means the source had nothing to offer before any object
	// byte was consumed; retry on the next readiness event.
	WouldBlock
	// ProtocolError means the stream is unusable: a partial object because
	// the source ran dry mid-frame, or the first non-whitespace byte
	// wasn't '{'.
	ProtocolError
)

var (
	// ErrPartialObject is returned when the source goes quiet after some
	// object bytes were already consumed.
	ErrPartialObject = errors.New("frame: partial object, source unavailable mid-frame")
	// ErrBadLeadingByte is returned when the first non-whitespace byte
	// isn't '{'.
	ErrBadLeadingByte = errors.New("frame: expected '{' to start an object")
)

// Source is a non-blocking byte source. Fill attempts to produce more
// bytes without blocking: wouldBlock=true means no data is available right
// now (retry later); err!=nil means the source is dead (e.g. EOF, a
// terminal socket error).
type Source interface {
	Fill() (chunk []byte, wouldBlock bool, err error)
}

// Result is the outcome of one ReadObject call.
type Result struct {
	Outcome Outcome
	Bytes   []byte
	Err     error
}

// ReadObject reads exactly one brace-delimited JSON object from src. It may
// call src.Fill() more than once internally (looping non-blocking reads
// until the object completes, the source blocks, or it errors), but it
// retains no state across separate ReadObject calls: a caller must invoke
// it at most once per readiness event, per the framing contract.
func ReadObject(src Source) Result {
	var buf []byte
	depth := 0
	started := false

	var chunk []byte
	idx := 0

	nextByte := func() (b byte, ok bool, err error) {
		for idx >= len(chunk) {
			c, blocked, ferr := src.Fill()
			if ferr != nil {
				return 0, false, ferr
			}
			if blocked || len(c) == 0 {
				return 0, false, nil
			}
			chunk = c
			idx = 0
		}
		b = chunk[idx]
		idx++
		return b, true, nil
	}

	for {
		b, ok, err := nextByte()
		if err != nil {
			return Result{Outcome: ProtocolError, Err: err}
		}
		if !ok {
			if started {
				return Result{Outcome: ProtocolError, Err: ErrPartialObject}
			}
			return Result{Outcome: WouldBlock}
		}

		if !started {
			if b == '\n' || b == '\r' {
				continue
			}
			if b != '{' {
				return Result{Outcome: ProtocolError, Err: ErrBadLeadingByte}
			}
			started = true
			depth = 1
			buf = append(buf, b)
			continue
		}

		buf = append(buf, b)
		switch b {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return Result{Outcome: Complete, Bytes: buf}
			}
		}
	}
}
