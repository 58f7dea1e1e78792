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

// Package transport abstracts TCP, TLS, and WebSocket connections behind
// a single Stream capability so the connection runtime does not care
// which transport produced its bytes.
//
// Grounded on mqtt-broker/src/net.rs's MqttStream trait
// (original_source), which unifies TcpStream and TlsStream<TcpStream>
// behind one trait; gorilla/websocket's *websocket.Conn is adapted to
// the same io.ReadWriteCloser shape so a third transport slots in
// without the runtime layer changing.
package transport

import (
	"io"
	"net"
)

// Stream is a byte-oriented, closable, peer-addressable connection —
// the minimum surface the connection runtime needs regardless of
// whether the bytes arrived over TCP, TLS, or a WebSocket binary frame
// stream.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
}

// Listener accepts Streams. TCP/TLS listeners are net.Listener adapted
// to return Stream; the WebSocket listener bridges an HTTP upgrade
// handler onto the same interface.
type Listener interface {
	Accept() (Stream, error)
	Close() error
	Addr() net.Addr
}
