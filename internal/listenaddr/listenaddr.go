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

// Package listenaddr parses "host:port" and "host:minport-maxport" bind
// addresses, letting the server run one Acceptor per port in the range
// while still sharing a single connection table and delivery queue.
package listenaddr

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var addrMatcher = regexp.MustCompile(`^(.*):([0-9]{1,5})(?:-([0-9]{1,5}))?$`)

// Range is a parsed bind address: one host and an inclusive port span.
// MinPort == MaxPort for a plain "host:port" address.
type Range struct {
	Host    string
	MinPort uint64
	MaxPort uint64
}

// Parse parses addr, which is either "host:port" or "host:minport-maxport".
func Parse(addr string) (*Range, error) {
	matches := addrMatcher.FindStringSubmatch(addr)
	if len(matches) < 4 {
		return nil, errors.Errorf("listenaddr: malformed address %q", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, errors.Wrapf(err, "listenaddr: parsing port in %q", addr)
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, errors.Wrapf(err, "listenaddr: parsing max port in %q", addr)
		}
	}

	if minPort > maxPort || minPort > 65535 || maxPort > 65535 || minPort == 0 || maxPort == 0 {
		return nil, errors.Errorf("listenaddr: invalid port range in %q: %d-%d", addr, minPort, maxPort)
	}

	return &Range{Host: matches[1], MinPort: uint64(minPort), MaxPort: uint64(maxPort)}, nil
}

// Addresses expands the range into one "host:port" string per port, in
// ascending order, each to be handed to its own Acceptor.
func (r *Range) Addresses() []string {
	out := make([]string, 0, r.MaxPort-r.MinPort+1)
	for p := r.MinPort; p <= r.MaxPort; p++ {
		out = append(out, fmt.Sprintf("%s:%d", r.Host, p))
	}
	return out
}
