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

package runtime

import "sync"

// ActiveRegistry tracks which client id is live on which connection, so a
// CONNECT for an already-active client id can take over per MQTT 3.1.1:
// the prior connection is closed without firing its will.
type ActiveRegistry struct {
	mu      sync.Mutex
	clients map[string]*Connection
}

// NewActiveRegistry returns an empty registry.
func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{clients: make(map[string]*Connection)}
}

// TakeOver registers conn as the active connection for clientID and
// returns any connection it displaces (nil if none). It does not close
// the displaced connection; handleConnect does that via RequestClose.
func (a *ActiveRegistry) TakeOver(clientID string, conn *Connection) *Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.clients[clientID]
	a.clients[clientID] = conn
	return prev
}

// Remove drops clientID from the registry, but only if conn is still the
// registered connection for it (a newer takeover may have already
// replaced it).
func (a *ActiveRegistry) Remove(clientID string, conn *Connection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clients[clientID] == conn {
		delete(a.clients, clientID)
	}
}
