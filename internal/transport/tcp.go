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

import "net"

// tcpListener adapts a plain net.Listener to Listener. net.Conn already
// satisfies Stream.
type tcpListener struct {
	ln net.Listener
}

// ListenTCP binds addr and returns a Listener producing plain TCP
// Streams.
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln}, nil
}

func (t *tcpListener) Accept() (Stream, error) {
	conn, err := t.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (t *tcpListener) Close() error   { return t.ln.Close() }
func (t *tcpListener) Addr() net.Addr { return t.ln.Addr() }
