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

// Package idalloc allocates and frees the 16-bit packet identifiers MQTT
// uses to correlate QoS 1/2 acknowledgements, partitioned by originator
// parity: client-originated ids are odd, broker-originated ids are even.
//
// Grounded on mqtt-core/src/id.rs's IdGenerator (original_source): a
// bitset plus a cursor that scans forward by 2, wrapping at u16::MAX back
// to the cursor's own parity, with 0 reserved as an always-invalid id.
package idalloc

import "github.com/yunqi/beaconmq/internal/packet"

// Origin selects which parity partition an Allocator draws ids from.
type Origin int

const (
	// Client allocates odd ids (1, 3, 5, ...), used for packets the
	// broker originates to behave like a client-role originator is
	// never exercised directly by this broker, but the partition exists
	// so a restored session's ids land in the same half they were
	// allocated from originally.
	Client Origin = iota
	// Broker allocates even ids (2, 4, 6, ...).
	Broker
)

const bitsetWords = 1 << 16 / 64

// Allocator hands out 16-bit packet ids from one parity partition. It is
// not safe for concurrent use; callers serialize access through the
// owning session.
type Allocator struct {
	origin Origin
	last   uint16
	inUse  [bitsetWords]uint64
}

// New returns an Allocator seeded so the first Allocate() call returns the
// lowest id of the correct parity (1 for Client, 2 for Broker).
func New(origin Origin) *Allocator {
	last := uint16(0)
	if origin == Client {
		// next_id starts by advancing from `last`, so starting at
		// u16::MAX (odd distance away) makes the very first allocation
		// wrap around to 1.
		last = ^uint16(0)
	} else {
		last = ^uint16(0) - 1
	}
	return &Allocator{origin: origin, last: last}
}

func (a *Allocator) set(id uint16)   { a.inUse[id/64] |= 1 << (id % 64) }
func (a *Allocator) unset(id uint16) { a.inUse[id/64] &^= 1 << (id % 64) }
func (a *Allocator) isSet(id uint16) bool {
	return a.inUse[id/64]&(1<<(id%64)) != 0
}

func incr(id uint16) uint16 {
	if id > ^uint16(0)-2 {
		// wraps: preserve parity by landing back on id%2.
		return id % 2
	}
	return id + 2
}

// Allocate returns the next free id of this Allocator's parity, or
// ok=false if every id in the partition is in use (2^15 odd ids for
// Client; 2^15-1 even ids for Broker, since 0 is never handed out).
func (a *Allocator) Allocate() (id packet.PacketID, ok bool) {
	cur := incr(a.last)
	for {
		if cur == 0 {
			cur = incr(cur)
			continue
		}
		if cur == a.last {
			return 0, false
		}
		if !a.isSet(cur) {
			a.set(cur)
			a.last = cur
			return packet.PacketID(cur), true
		}
		cur = incr(cur)
	}
}

// Release marks id as free again.
func (a *Allocator) Release(id packet.PacketID) {
	a.unset(uint16(id))
}

// Reserve marks id as in use without going through Allocate, used when
// rebuilding an allocator's state from a restored disconnected session's
// recorded in-flight ids.
func (a *Allocator) Reserve(id packet.PacketID) {
	a.set(uint16(id))
}
