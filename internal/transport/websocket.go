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

package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// MQTT-over-WebSocket requires the "mqtt" subprotocol to be
	// negotiated (RFC-less convention followed by every MQTT broker
	// that speaks WebSocket); we accept it and any unset subprotocol
	// list from the client rather than rejecting older clients outright.
	Subprotocols:    []string{"mqtt", "mqttv3.1"},
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsStream adapts a *websocket.Conn, which is message-oriented, to the
// byte-stream Stream interface the connection runtime expects: reads
// are served out of a buffer refilled one binary WS message at a time.
type wsStream struct {
	conn *websocket.Conn
	buf  bytes.Buffer
}

func (w *wsStream) Read(p []byte) (int, error) {
	for w.buf.Len() == 0 {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		w.buf.Write(data)
	}
	return w.buf.Read(p)
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error         { return w.conn.Close() }
func (w *wsStream) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }

// wsListener bridges an http.Server's upgrade handler onto the
// Listener/Accept() shape the rest of the broker expects, so the
// listener package can treat it the same as a TCP/TLS listener.
type wsListener struct {
	addr     net.Addr
	server   *http.Server
	accepted chan *wsStream
	closed   chan struct{}
}

// ListenWebSocket binds addr and serves MQTT-over-WebSocket on path,
// upgrading every incoming HTTP request there to a WebSocket connection
// and handing it to Accept().
func ListenWebSocket(addr, path string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		addr:     ln.Addr(),
		accepted: make(chan *wsStream),
		closed:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case l.accepted <- &wsStream{conn: conn}:
		case <-l.closed:
			conn.Close()
		}
	})

	l.server = &http.Server{Handler: mux}
	go l.server.Serve(ln)
	return l, nil
}

func (l *wsListener) Accept() (Stream, error) {
	select {
	case s := <-l.accepted:
		return s, nil
	case <-l.closed:
		return nil, errors.New("transport: websocket listener closed")
	}
}

func (l *wsListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return l.server.Shutdown(context.Background())
}

func (l *wsListener) Addr() net.Addr { return l.addr }
