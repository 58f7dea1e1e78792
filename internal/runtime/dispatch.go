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
	"github.com/yunqi/beaconmq/internal/assurance"
	"github.com/yunqi/beaconmq/internal/code"
	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/topic"
	"github.com/yunqi/beaconmq/internal/xerror"
	"github.com/yunqi/beaconmq/internal/xtrace"
)

// dispatch handles one decoded inbound packet per SPEC_FULL.md §4.7.1's
// dispatch table. A true return means the caller should close the
// connection cleanly (DISCONNECT, will suppressed); a non-nil error
// means a protocol violation that should close the connection without
// suppressing the will.
func (c *Connection) dispatch(p packet.Packet) (disconnect bool, err error) {
	switch pkt := p.(type) {
	case *packet.Publish:
		return false, c.handlePublish(pkt)
	case *packet.PubAck:
		c.session.qos1.Transition(pkt.PacketID, assurance.StageAck)
		return false, nil
	case *packet.PubRec:
		if ok := c.session.qos2.Transition(pkt.PacketID, assurance.StageRec); ok {
			e, _ := c.session.qos2.Get(pkt.PacketID)
			if rel, retryOK := e.RetryPacket(); retryOK {
				return false, c.send(rel)
			}
		}
		return false, nil
	case *packet.PubRel:
		return false, c.handlePubRel(pkt)
	case *packet.PubComp:
		c.session.qos2.Transition(pkt.PacketID, assurance.StageComp)
		return false, nil
	case *packet.Subscribe:
		return false, c.handleSubscribe(pkt)
	case *packet.Unsubscribe:
		return false, c.handleUnsubscribe(pkt)
	case *packet.PingReq:
		return false, c.send(&packet.PingResp{})
	case *packet.Disconnect:
		return true, nil
	default:
		return false, xerror.NewProtocol(xerror.ErrPacketType)
	}
}

func (c *Connection) handlePublish(p *packet.Publish) error {
	if p.Retain {
		c.registry.Retain(&registry.Published{TopicName: p.TopicName, QoS: p.QoS, Payload: p.Payload})
	}

	switch p.QoS {
	case qos.AtMostOnce:
		c.route(p)
		return nil
	case qos.AtLeastOnce:
		c.route(p)
		return c.send(&packet.PubAck{PacketID: p.PacketID})
	case qos.ExactlyOnce:
		if e, exists := c.session.qos2.Get(p.PacketID); exists && e.Stage == assurance.StagePublish {
			// Duplicate of an already-received QoS2 publish: do not
			// re-route, just re-acknowledge.
			return c.send(&packet.PubRec{PacketID: p.PacketID})
		}
		c.session.qos2.Insert(p.PacketID, p, assurance.StagePublish)
		return c.send(&packet.PubRec{PacketID: p.PacketID})
	default:
		return xerror.NewProtocol(xerror.ErrFlagBits)
	}
}

func (c *Connection) handlePubRel(p *packet.PubRel) error {
	e, exists := c.session.qos2.Get(p.PacketID)
	if exists && e.Stage == assurance.StagePublish {
		c.session.qos2.Transition(p.PacketID, assurance.StageRel)
		c.route(e.Publish)
	}
	return c.send(&packet.PubComp{PacketID: p.PacketID})
}

// route publishes p to the topic registry, stripping RETAIN for the
// wire copy subscribers see unless it is a retained-delivery-on-subscribe
// (handled separately in handleSubscribe). Runs under its own span per
// SPEC_FULL.md §10.3's "one span per PUBLISH routing operation".
func (c *Connection) route(p *packet.Publish) {
	_, span := xtrace.StartSpan(c.runCtx, "mqtt.publish.route")
	defer span.End()
	c.registry.Publish(&registry.Published{TopicName: p.TopicName, QoS: p.QoS, Payload: p.Payload})
}

func (c *Connection) handleSubscribe(p *packet.Subscribe) error {
	codes := make([]code.SubscribeCode, len(p.Requests))
	for i, req := range p.Requests {
		filter, err := topic.ParseFilter(req.TopicFilter)
		if err != nil {
			codes[i] = code.SubscribeFailure
			continue
		}

		subs, retained, err := c.registry.Subscribe(filter, req.QoS)
		if err != nil {
			codes[i] = code.SubscribeFailure
			continue
		}

		c.session.subs[req.TopicFilter] = &subscription{filterText: req.TopicFilter, qos: req.QoS, subs: subs}
		for _, s := range subs {
			c.startFanIn(c.runCtx, c.delivery, s)
		}

		for _, r := range retained {
			if err := c.send(&packet.Publish{QoS: r.QoS, Retain: true, TopicName: r.TopicName, Payload: r.Payload}); err != nil {
				return err
			}
		}

		codes[i] = qosToSubackCode(req.QoS)
	}
	return c.send(&packet.Suback{PacketID: p.PacketID, Codes: codes})
}

func (c *Connection) handleUnsubscribe(p *packet.Unsubscribe) error {
	for _, filter := range p.TopicFilters {
		if sub, ok := c.session.subs[filter]; ok {
			for _, s := range sub.subs {
				c.registry.Unsubscribe(s)
			}
			delete(c.session.subs, filter)
		}
	}
	return c.send(&packet.UnsubAck{PacketID: p.PacketID})
}

func qosToSubackCode(l qos.Level) code.SubscribeCode {
	switch l {
	case qos.AtLeastOnce:
		return code.SubscribeQoS1
	case qos.ExactlyOnce:
		return code.SubscribeQoS2
	default:
		return code.SubscribeQoS0
	}
}
