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

// Package memory is the default session.Store: a mutex-guarded map, gone
// the moment the process exits. This is the backend selected by
// session_store.backend = "memory".
package memory

import (
	"sync"
	"time"

	"github.com/yunqi/beaconmq/internal/persistence/session"
)

// Store is an in-process session.Store backend.
type Store struct {
	mu       sync.Mutex
	sessions map[string]session.Disconnected
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]session.Disconnected)}
}

// Take implements session.Store.
func (s *Store) Take(clientID string) (session.Disconnected, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.sessions[clientID]
	if ok {
		delete(s.sessions, clientID)
	}
	return d, ok, nil
}

// Insert implements session.Store.
func (s *Store) Insert(d session.Disconnected) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[d.ClientID] = d
	return nil
}

// SweepExpired implements session.Store.
func (s *Store) SweepExpired() ([]string, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, d := range s.sessions {
		if d.Expired(now) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}
