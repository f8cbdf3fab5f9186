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

// Package message defines the delivery-queue item and the decoded wire
// message it carries, plus the decode collaborator the reader calls into.
package message

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Kind distinguishes the four shapes a BufferItem can take.
type Kind int

const (
	Payload Kind = iota
	SoftwareError
	ConnectionClosed
	ConnectionTimeout
)

func (k Kind) String() string {
	switch k {
	case Payload:
		return "Payload"
	case SoftwareError:
		return "SoftwareError"
	case ConnectionClosed:
		return "ConnectionClosed"
	case ConnectionTimeout:
		return "ConnectionTimeout"
	default:
		return "Unknown"
	}
}

// KeepAliveType is the one semantic message type the core treats as
// liveness-only; it never reaches the delivery queue.
const KeepAliveType = "KEEP_ALIVE"

// Peer is an IPv4 endpoint. The core only ever captures IPv4 remotes (a
// connection whose accept-time address isn't IPv4 is rejected before it
// reaches the connection table), so there is no v6 representation to carry.
type Peer struct {
	IP   [4]byte
	Port uint16
}

// PeerFromIP builds a Peer from a net.IP/port pair, reporting false if ip
// does not have an IPv4 form.
func PeerFromIP(ip net.IP, port int) (Peer, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return Peer{}, false
	}
	var p Peer
	copy(p.IP[:], v4)
	p.Port = uint16(port)
	return p, true
}

// IsZero reports whether p is the zero Peer, used for items synthesized
// without an originating connection.
func (p Peer) IsZero() bool { return p == Peer{} }

func (p Peer) String() string {
	if p.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", p.IP[0], p.IP[1], p.IP[2], p.IP[3], p.Port)
}

// Message is the decoded form of one framed JSON object.
type Message struct {
	Type   string
	Fields map[string]interface{}
}

// IsKeepAlive reports whether m is a heartbeat, never delivered to consumers.
func (m Message) IsKeepAlive() bool { return m.Type == KeepAliveType }

// Decoder is the external collaborator named decode_message in the wire
// protocol: a pure function from framed bytes to a decoded Message.
type Decoder interface {
	Decode(raw []byte) (Message, error)
}

// JSONDecoder is the concrete Decoder this repo ships: it expects a JSON
// object with a string "type" field and treats the rest as opaque fields.
// The real application schema is an external concern (out of scope per the
// wire protocol's own description); this is the minimal stand-in needed to
// exercise every classification rule end to end.
type JSONDecoder struct{}

func (JSONDecoder) Decode(raw []byte) (Message, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, errors.Wrap(err, "message: decode")
	}
	typ, _ := fields["type"].(string)
	if typ == "" {
		return Message{}, errors.New(`message: missing "type" field`)
	}
	return Message{Type: typ, Fields: fields}, nil
}

// BufferItem is one delivery-queue entry.
type BufferItem struct {
	Kind     Kind
	Peer     Peer
	RecvTime time.Time
	Message  Message
	Reason   string // populated for SoftwareError
}

func NewPayload(peer Peer, at time.Time, msg Message) BufferItem {
	return BufferItem{Kind: Payload, Peer: peer, RecvTime: at, Message: msg}
}

// softwareErrorMessage synthesizes the error-kinded message carried by a
// SoftwareError item, per the wire protocol's software_error collaborator.
func softwareErrorMessage(reason string) Message {
	return Message{Type: "SOFTWARE_ERROR", Fields: map[string]interface{}{"reason": reason}}
}

func NewSoftwareErrorItem(peer Peer, at time.Time, reason string) BufferItem {
	return BufferItem{Kind: SoftwareError, Peer: peer, RecvTime: at, Message: softwareErrorMessage(reason), Reason: reason}
}

func NewConnectionClosedItem(peer Peer, at time.Time) BufferItem {
	return BufferItem{Kind: ConnectionClosed, Peer: peer, RecvTime: at}
}

func NewConnectionTimeoutItem(peer Peer, at time.Time) BufferItem {
	return BufferItem{Kind: ConnectionTimeout, Peer: peer, RecvTime: at}
}

// Dispose is the consumer-side disposal hook (free_bufferitem in the
// external interface); under a garbage collector it has nothing to do.
func (b BufferItem) Dispose() {}
