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

// Package registry implements the topic routing table: fan-out channels
// per topic name, retained-message storage, and subscription matching
// against topic filters.
//
// Grounded on mqtt-broker/src/mailbox.rs and mqtt-broker/src/topic.rs
// (original_source) for the bounded-broadcast / drop-oldest
// semantics, and on github.com/gonzalop/mq's subscription tree for the
// shape of a Go multi-reader topic map (sync.RWMutex guarding a plain
// map, linear filter scan on subscribe).
package registry

import (
	"sync"

	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/topic"
	"github.com/yunqi/beaconmq/internal/xerror"
)

// Published is an immutably shared handle to a routed PUBLISH. The Go
// garbage collector makes the original source's reference counting
// unnecessary: every subscriber's channel holds the same pointer.
type Published struct {
	TopicName string
	QoS       qos.Level
	Retain    bool
	Payload   []byte
}

// entry is one topic's fan-out channel and retained-message slot.
type entry struct {
	mu       sync.Mutex
	fanout   []chan *Published
	retained *Published
}

// Registry is the process-wide topic → {fanout, retained} map. The zero
// value is not usable; construct with New.
type Registry struct {
	mu             sync.RWMutex
	topics         map[string]*entry
	maxQueueLength int
}

// New returns an empty Registry whose fan-out channels are bounded to
// maxQueueLength entries (the configured broker.max_queued_messages).
func New(maxQueueLength int) *Registry {
	if maxQueueLength <= 0 {
		maxQueueLength = 128
	}
	return &Registry{topics: make(map[string]*entry), maxQueueLength: maxQueueLength}
}

func (r *Registry) entryFor(name string) *entry {
	r.mu.RLock()
	e, ok := r.topics[name]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.topics[name]; ok {
		return e
	}
	e = &entry{}
	r.topics[name] = e
	return e
}

// Publish routes p to every current subscriber of its topic, creating an
// (initially subscriber-less) entry if none existed. Having no receivers
// is not an error.
func (r *Registry) Publish(p *Published) {
	e := r.entryFor(p.TopicName)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.fanout {
		select {
		case ch <- p:
		default:
			// Subscriber's mailbox is full: drop the oldest pending
			// message for it and make room for this one, per the
			// bounded broadcast / "drop oldest" backpressure policy.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}

// Retain stores p as the topic's retained message, or clears the slot if
// p's payload is empty.
func (r *Registry) Retain(p *Published) {
	e := r.entryFor(p.TopicName)
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(p.Payload) == 0 {
		e.retained = nil
		return
	}
	cp := *p
	cp.Retain = true
	e.retained = &cp
}

// Subscription is a live receiver handle returned by Subscribe.
type Subscription struct {
	Filter  topic.Filter
	QoS     qos.Level
	channel chan *Published
}

// Receive returns the channel new PUBLISHes for this subscription arrive
// on.
func (s *Subscription) Receive() <-chan *Published { return s.channel }

// Subscribe linearly scans every known topic, returning one Subscription
// per matching topic name plus any retained message synthesized as an
// immediate delivery.
func (r *Registry) Subscribe(filter topic.Filter, filterQoS qos.Level) ([]*Subscription, []*Published, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.topics))
	for name := range r.topics {
		names = append(names, name)
	}
	r.mu.RUnlock()

	var subs []*Subscription
	var retained []*Published
	for _, name := range names {
		n, err := topic.ParseName(name)
		if err != nil {
			return nil, nil, xerror.NewProtocol(err)
		}
		if !topic.Match(filter, n) {
			continue
		}
		e := r.entryFor(name)
		e.mu.Lock()
		ch := make(chan *Published, r.maxQueueLength)
		e.fanout = append(e.fanout, ch)
		if e.retained != nil {
			deliverQoS := qos.Min(filterQoS, e.retained.QoS)
			cp := *e.retained
			cp.QoS = deliverQoS
			cp.Retain = true
			retained = append(retained, &cp)
		}
		e.mu.Unlock()
		subs = append(subs, &Subscription{Filter: filter, QoS: filterQoS, channel: ch})
	}
	return subs, retained, nil
}

// SubscribeTopic registers interest directly against a single topic name,
// creating its entry if needed, rather than scanning every known topic for
// a filter match. The broker subscribes only through Subscribe; this entry
// point is used by tests.
func (r *Registry) SubscribeTopic(name string, filterQoS qos.Level) (*Subscription, *Published) {
	e := r.entryFor(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *Published, r.maxQueueLength)
	e.fanout = append(e.fanout, ch)
	var retained *Published
	if e.retained != nil {
		deliverQoS := qos.Min(filterQoS, e.retained.QoS)
		cp := *e.retained
		cp.QoS = deliverQoS
		cp.Retain = true
		retained = &cp
	}
	return &Subscription{Filter: topic.Filter{}, QoS: filterQoS, channel: ch}, retained
}

// Unsubscribe removes sub's channel from its topic's fan-out list. It is
// a linear scan over every known topic; callers pass the exact Subscription returned by Subscribe.
func (r *Registry) Unsubscribe(sub *Subscription) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.topics {
		e.mu.Lock()
		for i, ch := range e.fanout {
			if ch == sub.channel {
				e.fanout = append(e.fanout[:i], e.fanout[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
	}
}
