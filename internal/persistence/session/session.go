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

// Package session defines the disconnected-session record and the
// pluggable Store interface persisting it, so a clean_session=false
// client can resume where it left off after a reconnect.
//
// Grounded on mqtt-broker/src/session.rs (original_source) for the
// Active/Disconnected record split and the SurgeMQ session.go example
// for the Go shape of a persisted session snapshot.
package session

import "time"

// InflightPublish is the wire-level snapshot of one in-flight QoS1/QoS2
// publish kept across a disconnect, enough to rebuild an assurance.Entry
// on resume without importing the assurance package here, so the stored
// record stays plain data that the Redis backend can JSON-encode.
type InflightPublish struct {
	PacketID  uint16
	TopicName string
	QoS       byte
	Payload   []byte
	Dup       bool
	Retain    bool
	// Stage records which side of the exchange this entry was on
	// (sender Origin/Rec or receiver Publish/Rel) so resume can restore
	// it verbatim instead of guessing.
	Stage int
}

// Subscription is a persisted subscribed filter and its granted QoS.
type Subscription struct {
	Filter string
	QoS    byte
}

// Disconnected is a session's durable content, minus anything tied to a
// live connection (keep-alive deadlines, the socket itself). LastSeen
// drives expiry: SweepExpired removes entries whose keep-alive window
// has elapsed since LastSeen.
type Disconnected struct {
	ClientID      string
	KeepAlive     uint16
	LastSeen      time.Time
	Subscriptions []Subscription
	QoS1Inflight  []InflightPublish
	QoS2Inflight  []InflightPublish
}

// Expired reports whether d should be swept at now. A zero KeepAlive
// disables expiry entirely, matching the keep-alive-disabled broker
// configuration.
func (d Disconnected) Expired(now time.Time) bool {
	if d.KeepAlive == 0 {
		return false
	}
	deadline := time.Duration(d.KeepAlive) * time.Second
	return now.Sub(d.LastSeen) > deadline
}

// Store is the pluggable backend behind the disconnected-session
// registry. Implementations: memory.Store (default, in-process map) and
// redisstore.Store (github.com/go-redis/redis/v8-backed, for broker
// deployments sharing session state across processes).
type Store interface {
	// Take removes and returns the disconnected session for clientID, if
	// any. Used when a CONNECT arrives for a client id that has a
	// persisted session to resume.
	Take(clientID string) (Disconnected, bool, error)
	// Insert stores d, replacing any existing entry for its ClientID.
	// Used when a persistent session's connection terminates.
	Insert(d Disconnected) error
	// SweepExpired removes every entry whose keep-alive window has
	// elapsed, returning the removed client ids.
	SweepExpired() ([]string, error)
}
