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

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yunqi/beaconmq/internal/assurance"
	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/topic"
)

// fanInSubscriptions spawns one goroutine per live subscription
// forwarding its receiver channel into the connection's single shared
// delivery channel, so the event loop only ever selects on one channel
// regardless of how many topics are subscribed.
func (c *Connection) fanInSubscriptions(ctx context.Context, delivery chan<- *registry.Published) {
	for _, sub := range c.session.subs {
		for _, s := range sub.subs {
			c.startFanIn(ctx, delivery, s)
		}
	}
}

// startFanIn spawns the single goroutine that forwards one subscription's
// channel into the connection's shared delivery channel. Called once per
// subscription at startup (fanInSubscriptions) and again whenever
// dispatch registers a new one mid-session (a SUBSCRIBE after the
// connection is already running).
func (c *Connection) startFanIn(ctx context.Context, delivery chan<- *registry.Published, s *registry.Subscription) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-s.Receive():
				if !ok {
					return
				}
				select {
				case delivery <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// forward delivers a routed PUBLISH to this connection's peer, applying
// QoS downgrade and (re)allocating a broker-originated packet id when
// needed.
func (c *Connection) forward(msg *registry.Published) {
	granted := c.grantedQoSFor(msg.TopicName)
	deliverQoS := qos.Min(granted, msg.QoS)

	out := &packet.Publish{
		QoS:       deliverQoS,
		Retain:    msg.Retain,
		TopicName: msg.TopicName,
		Payload:   msg.Payload,
	}

	if deliverQoS > qos.AtMostOnce {
		id, ok := c.session.senderIDs.Allocate()
		if !ok {
			c.log.Warn("sender id space exhausted, dropping delivery", zap.String("topic", msg.TopicName))
			return
		}
		out.PacketID = id
		if deliverQoS == qos.AtLeastOnce {
			c.session.qos1.Insert(id, out, assurance.StageOrigin)
		} else {
			// deliverQoS is ExactlyOnce here, so granted is ExactlyOnce
			// as well and the QoS2->QoS1 check below never holds: a
			// subscriber granted QoS1 against a QoS2 publish takes the
			// AtLeastOnce branch above and is served at QoS1.
			if msg.QoS == qos.ExactlyOnce && granted == qos.AtLeastOnce {
				c.log.Debug("qos2->qos1 downgrade unimplemented, delivering at qos0", zap.String("topic", msg.TopicName))
				c.session.senderIDs.Release(id)
				out.QoS = qos.AtMostOnce
				out.PacketID = 0
			} else {
				c.session.qos2.Insert(id, out, assurance.StageOrigin)
			}
		}
	}

	if err := c.send(out); err != nil {
		c.log.Debug("forward failed", zap.Error(err))
	}
}

func (c *Connection) grantedQoSFor(topicName string) qos.Level {
	best := qos.AtMostOnce
	name, err := topic.ParseName(topicName)
	if err != nil {
		return best
	}
	for _, sub := range c.session.subs {
		filter, err := topic.ParseFilter(sub.filterText)
		if err == nil && topic.Match(filter, name) && sub.qos > best {
			best = sub.qos
		}
	}
	return best
}

// housekeep runs message-assurance retries and inflight-list cleanup,
// called once per event-loop tick.
func (c *Connection) housekeep() {
	now := time.Now()
	for _, e := range c.session.qos1.DueForRetry(now) {
		c.retransmit(e)
	}
	for _, e := range c.session.qos2.DueForRetry(now) {
		c.retransmit(e)
	}
	for _, id := range c.session.qos1.CleanupTerminal() {
		c.session.senderIDs.Release(id)
	}
	for _, id := range c.session.qos2.CleanupTerminal() {
		c.session.senderIDs.Release(id)
	}
}

func (c *Connection) retransmit(e *assurance.Entry) {
	pkt, ok := e.RetryPacket()
	if !ok {
		return
	}
	if err := c.send(pkt); err != nil {
		c.log.Debug("retry send failed", zap.Error(err))
	}
}

// terminate runs connection shutdown: publish the will unless suppressed,
// unsubscribe every live subscription, persist or drop the session, and
// release the active-client-id slot.
func (c *Connection) terminate(suppressWill bool) {
	if !suppressWill && c.session.Will != nil {
		w := c.session.Will
		c.registry.Publish(&registry.Published{TopicName: w.Topic, QoS: w.QoS, Retain: w.Retain, Payload: w.Payload})
		if w.Retain {
			c.registry.Retain(&registry.Published{TopicName: w.Topic, QoS: w.QoS, Payload: w.Payload})
		}
	}
	c.unsubscribeAll()
	c.persistOrDrop()
	c.active.Remove(c.session.ClientID, c)
}

// unsubscribeAll drops every one of the session's live registry
// subscriptions. Called unconditionally at termination: a persistent
// session's filters are remembered by filter text/QoS in the snapshot
// and re-subscribed against the registry on resume (getting fresh
// fan-out channels), so the old channels must not be left registered
// forever once this connection stops draining them.
func (c *Connection) unsubscribeAll() {
	for _, sub := range c.session.subs {
		for _, s := range sub.subs {
			c.registry.Unsubscribe(s)
		}
	}
}

// persistOrDrop moves the session into the disconnected registry if it
// is persistent (clean_session=false), or drops it otherwise.
func (c *Connection) persistOrDrop() {
	if c.session == nil || c.session.CleanSession {
		return
	}
	_ = c.sessionStore.Insert(c.session.Snapshot())
}
