/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package xerror defines the sentinel errors the codec and connection
// runtime raise, classified per the three error families: protocol,
// transport and capacity/lag.
package xerror

import "errors"

// Codec errors. Each maps to a distinct decode failure kind so callers can
// react precisely instead of string-matching.
var (
	ErrMalformed                    = errors.New("xerror: malformed packet")
	ErrMalformedLength              = errors.New("xerror: malformed remaining length")
	ErrFlagBits                     = errors.New("xerror: invalid fixed header flag bits")
	ErrPacketType                   = errors.New("xerror: invalid or unsupported packet type")
	ErrWillQoS                      = errors.New("xerror: invalid will qos")
	ErrUTF8                         = errors.New("xerror: invalid utf-8 string")
	ErrInvalidProtocol              = errors.New("xerror: invalid protocol name")
	ErrV3UnacceptableProtocolVersion = errors.New("xerror: unacceptable protocol version")
	ErrV3IdentifierRejected         = errors.New("xerror: client identifier rejected")
	ErrInvalidReturnCode            = errors.New("xerror: invalid return code")
	ErrBadTopicFilter               = errors.New("xerror: malformed topic filter")
	ErrBadTopicName                 = errors.New("xerror: malformed topic name")
)

// Protocol is a connection-closing protocol violation. Sessions are only
// preserved across a Protocol error when the active session's
// CleanSession flag is false (see internal/runtime).
type Protocol struct {
	Err error
}

func (e *Protocol) Error() string { return "protocol error: " + e.Err.Error() }
func (e *Protocol) Unwrap() error { return e.Err }

func NewProtocol(err error) *Protocol { return &Protocol{Err: err} }

// Transport wraps an I/O or TLS/WebSocket-layer failure. Unless the peer
// sent DISCONNECT first, the session's will (if any) is published when a
// Transport error terminates a connection.
type Transport struct {
	Err error
}

func (e *Transport) Error() string { return "transport error: " + e.Err.Error() }
func (e *Transport) Unwrap() error { return e.Err }

func NewTransport(err error) *Transport { return &Transport{Err: err} }

// Lag describes a subscriber mailbox overflow in which messages were
// dropped. Nothing in the broker constructs one: registry.Publish drops
// the oldest pending message on overflow without raising a Lag or
// logging a warning, and the subscriber keeps receiving from the oldest
// still-available message.
type Lag struct {
	Dropped int
}

func (e *Lag) Error() string {
	return "subscriber mailbox overflow, dropped messages"
}

func NewLag(dropped int) *Lag { return &Lag{Dropped: dropped} }
