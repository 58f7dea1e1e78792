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

// Package runtime implements the per-connection session state machine
// and the connection event loop that drives it.
//
// Grounded on the SurgeMQ session.go example for the active-session
// field shape (subscriptions, inflight lists, packet-id allocator all
// owned exclusively by the session) and on mqtt-broker/src/session.rs
// (original_source) for the Active/Disconnected split and the exact
// content each carries.
package runtime

import (
	"time"

	"github.com/yunqi/beaconmq/internal/assurance"
	"github.com/yunqi/beaconmq/internal/idalloc"
	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/persistence/session"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/topic"
)

// Will is the optional at-disconnect message recorded from CONNECT.
type Will struct {
	Topic   string
	Payload []byte
	QoS     qos.Level
	Retain  bool
}

// subscription is one subscribed filter, its granted QoS, and the live
// registry handles backing it — one per currently-matching topic name,
// since a wildcard filter can match more than one.
type subscription struct {
	filterText string
	qos        qos.Level
	subs       []*registry.Subscription
}

// Session is the live state of one accepted, CONNECTed connection. It is
// owned exclusively by its connection goroutine; nothing outside
// internal/runtime ever mutates it directly.
type Session struct {
	ClientID  string
	KeepAlive uint16
	Will      *Will
	// CleanSession mirrors the CONNECT flag: a true value means this
	// session is dropped rather than persisted at disconnect.
	CleanSession bool

	LastRead time.Time

	subs map[string]*subscription

	qos1 *assurance.List
	qos2 *assurance.List

	senderIDs   *idalloc.Allocator
	receiverIDs *idalloc.Allocator
}

// NewSession starts a fresh (non-resumed) session.
func NewSession(clientID string, keepAlive uint16, will *Will) *Session {
	return &Session{
		ClientID:    clientID,
		KeepAlive:   keepAlive,
		Will:        will,
		LastRead:    time.Now(),
		subs:        make(map[string]*subscription),
		qos1:        assurance.NewList(),
		qos2:        assurance.NewList(),
		senderIDs:   idalloc.New(idalloc.Broker),
		receiverIDs: idalloc.New(idalloc.Client),
	}
}

// Resume rebuilds a Session from a persisted Disconnected record,
// restoring subscriptions and in-flight ids so retries/dedup continue
// seamlessly. The caller answers the CONNACK with session_present=1.
//
// Restoring a subscription means more than remembering its filter text:
// the session's previous live registry.Subscription handles died with
// the old connection (terminate unsubscribes them), so each persisted
// filter is re-subscribed against reg here to get fresh fan-out handles
// — otherwise fanInSubscriptions would start zero goroutines for a
// resumed session and it would never receive another message on a
// previously-subscribed topic. Any currently-retained message matching a
// restored filter is returned for the caller to deliver once the
// handshake's CONNACK has gone out, mirroring a fresh SUBSCRIBE's
// retained-delivery rule.
func Resume(d session.Disconnected, will *Will, reg *registry.Registry) (*Session, []*registry.Published) {
	s := NewSession(d.ClientID, d.KeepAlive, will)
	var retained []*registry.Published
	for _, persisted := range d.Subscriptions {
		filterQoS := qos.Level(persisted.QoS)
		sub := &subscription{filterText: persisted.Filter, qos: filterQoS}
		s.subs[persisted.Filter] = sub

		filter, err := topic.ParseFilter(persisted.Filter)
		if err != nil {
			// The filter was validated at SUBSCRIBE time; a parse
			// failure here would mean stored state is corrupt. Keep the
			// bookkeeping entry but skip re-subscribing it.
			continue
		}
		subs, r, err := reg.Subscribe(filter, filterQoS)
		if err != nil {
			continue
		}
		sub.subs = subs
		retained = append(retained, r...)
	}
	for _, ip := range d.QoS1Inflight {
		s.senderIDs.Reserve(packet.PacketID(ip.PacketID))
		s.qos1.Insert(packet.PacketID(ip.PacketID), toPublish(ip), assurance.Stage(ip.Stage))
	}
	for _, ip := range d.QoS2Inflight {
		s.senderIDs.Reserve(packet.PacketID(ip.PacketID))
		s.qos2.Insert(packet.PacketID(ip.PacketID), toPublish(ip), assurance.Stage(ip.Stage))
	}
	return s, retained
}

func toPublish(ip session.InflightPublish) *packet.Publish {
	return &packet.Publish{
		Dup:       ip.Dup,
		QoS:       qos.Level(ip.QoS),
		Retain:    ip.Retain,
		TopicName: ip.TopicName,
		PacketID:  packet.PacketID(ip.PacketID),
		Payload:   ip.Payload,
	}
}

// Snapshot captures s as a session.Disconnected record for persistence,
// when the session's clean_session flag is false.
func (s *Session) Snapshot() session.Disconnected {
	d := session.Disconnected{
		ClientID:  s.ClientID,
		KeepAlive: s.KeepAlive,
		LastSeen:  time.Now(),
	}
	for _, sub := range s.subs {
		d.Subscriptions = append(d.Subscriptions, session.Subscription{Filter: sub.filterText, QoS: byte(sub.qos)})
	}
	for id, e := range s.qos1.Snapshot() {
		d.QoS1Inflight = append(d.QoS1Inflight, snapshotEntry(id, e))
	}
	for id, e := range s.qos2.Snapshot() {
		d.QoS2Inflight = append(d.QoS2Inflight, snapshotEntry(id, e))
	}
	return d
}

func snapshotEntry(id packet.PacketID, e *assurance.Entry) session.InflightPublish {
	return session.InflightPublish{
		PacketID:  uint16(id),
		TopicName: e.Publish.TopicName,
		QoS:       byte(e.Publish.QoS),
		Payload:   e.Publish.Payload,
		Dup:       e.Publish.Dup,
		Retain:    e.Publish.Retain,
		Stage:     int(e.Stage),
	}
}
