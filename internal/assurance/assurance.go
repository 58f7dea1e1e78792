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

// Package assurance implements the QoS 1/2 message-assurance engine: the
// in-flight packet state machines, exponential-backoff retry scheduling,
// and terminal-stage cleanup.
//
// Grounded on mqtt-core/src/msg_assurance/mod.rs (original_source) for the
// ExponentialBackoff shape (200ms base, doubling, ceiling) and
// mqtt-broker/src/session.rs for the sender/receiver packet lists.
package assurance

import (
	"time"

	"github.com/bytedance/gopkg/lang/fastrand"

	"github.com/yunqi/beaconmq/internal/packet"
)

// RetryBase is the initial retry interval for a freshly in-flight QoS 1/2
// packet.
const RetryBase = 200 * time.Millisecond

// MaxRetryInterval is the ceiling the exponential backoff saturates at
// rather than doubling forever.
const MaxRetryInterval = time.Minute

// CleanupThreshold is the inflight-list length past which a cleanup pass
// sweeps terminal-stage entries and releases their ids (math.MaxUint16/16).
const CleanupThreshold = 65535 / 16

// Stage is a QoS1/QoS2 in-flight packet's position in its state machine.
type Stage int

const (
	// QoS1 sender-side stages.
	StageOrigin Stage = iota // sent, awaiting PUBACK (QoS1) or PUBREC (QoS2)
	StageAck                 // QoS1: PUBACK received, awaiting cleanup
	// QoS2 sender-side stages.
	StageRec  // PUBREC received, PUBREL sent, awaiting PUBCOMP
	StageComp // PUBCOMP received

	// QoS2 receiver-side stages.
	StagePublish // PUBLISH arrived, PUBREC sent, awaiting PUBREL
	StageRel     // PUBREL received, payload routed, awaiting PUBCOMP send
)

func (s Stage) terminal() bool {
	switch s {
	case StageAck, StageComp, StageRel:
		return true
	default:
		return false
	}
}

func (s Stage) retryable() bool {
	switch s {
	case StageOrigin, StageRec:
		return true
	default:
		return false
	}
}

// Entry is one in-flight QoS1 or QoS2 packet.
type Entry struct {
	ID        packet.PacketID
	Publish   *packet.Publish
	Stage     Stage
	changedAt time.Time
	interval  time.Duration
	armed     time.Duration
}

func newEntry(id packet.PacketID, p *packet.Publish, stage Stage) *Entry {
	return &Entry{ID: id, Publish: p, Stage: stage, changedAt: time.Now(), interval: RetryBase, armed: jitter(RetryBase)}
}

func (e *Entry) transition(stage Stage) {
	e.Stage = stage
	e.changedAt = time.Now()
}

// shouldRetry reports whether e is due for a retransmission at now. The
// jittered interval (not the raw exponential one) is what's actually
// armed, so retries fan out instead of firing in lockstep across
// sessions sharing the same backoff schedule.
func (e *Entry) shouldRetry(now time.Time) bool {
	return e.Stage.retryable() && now.Sub(e.changedAt) > e.armed
}

// advanceBackoff doubles the retry interval, saturating at
// MaxRetryInterval, and re-jitters it by up to +/-10%.
func (e *Entry) advanceBackoff() {
	next := e.interval * 2
	if next > MaxRetryInterval || next <= 0 {
		next = MaxRetryInterval
	}
	e.interval = next
	e.armed = jitter(next)
	e.changedAt = time.Now()
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := int64(d) / 10
	if spread <= 0 {
		return d
	}
	offset := fastrand.Int63n(2*spread+1) - spread
	return d + time.Duration(offset)
}

// List is a session's QoS1 or QoS2 in-flight packet list.
type List struct {
	entries map[packet.PacketID]*Entry
}

// NewList returns an empty in-flight list.
func NewList() *List {
	return &List{entries: make(map[packet.PacketID]*Entry)}
}

// Get returns the entry for id, if any.
func (l *List) Get(id packet.PacketID) (*Entry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// Insert adds a new in-flight entry.
func (l *List) Insert(id packet.PacketID, p *packet.Publish, stage Stage) *Entry {
	e := newEntry(id, p, stage)
	l.entries[id] = e
	return e
}

// Transition moves the entry for id to a new stage, if present.
func (l *List) Transition(id packet.PacketID, stage Stage) bool {
	e, ok := l.entries[id]
	if !ok {
		return false
	}
	e.transition(stage)
	return true
}

// Remove drops the entry for id.
func (l *List) Remove(id packet.PacketID) {
	delete(l.entries, id)
}

// Len reports the number of in-flight entries, terminal or not.
func (l *List) Len() int { return len(l.entries) }

// Snapshot returns the list's current entries, keyed by id, for
// persisting a disconnecting session's in-flight state. Callers must
// not mutate the returned entries.
func (l *List) Snapshot() map[packet.PacketID]*Entry {
	return l.entries
}

// DueForRetry returns every entry due for retransmission at now and
// advances each one's backoff.
func (l *List) DueForRetry(now time.Time) []*Entry {
	var due []*Entry
	for _, e := range l.entries {
		if e.shouldRetry(now) {
			due = append(due, e)
			e.advanceBackoff()
		}
	}
	return due
}

// RetryInterval exposes the jittered interval currently armed for e,
// mainly for tests asserting the backoff schedule.
func RetryInterval(e *Entry) time.Duration { return e.armed }

// RetryPacket builds the wire packet to retransmit for e: a DUP=1
// PUBLISH while in StageOrigin, or a bare PUBREL while in StageRec. Any
// other stage is not retryable and returns ok=false.
func (e *Entry) RetryPacket() (packet.Packet, bool) {
	switch e.Stage {
	case StageOrigin:
		dup := *e.Publish
		dup.Dup = true
		return &dup, true
	case StageRec:
		return &packet.PubRel{PacketID: e.ID}, true
	default:
		return nil, false
	}
}

// CleanupTerminal removes every terminal-stage entry once the list grows
// past CleanupThreshold, returning the freed packet ids so the caller can
// release them from the session's id allocator.
func (l *List) CleanupTerminal() []packet.PacketID {
	if l.Len() <= CleanupThreshold {
		return nil
	}
	var freed []packet.PacketID
	for id, e := range l.entries {
		if e.Stage.terminal() {
			freed = append(freed, id)
			delete(l.entries, id)
		}
	}
	return freed
}
