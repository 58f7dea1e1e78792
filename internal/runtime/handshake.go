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

	"go.uber.org/zap"

	"github.com/yunqi/beaconmq/internal/code"
	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/xtrace"
)

// handshake reads exactly one first packet and either establishes
// c.session and returns true, or closes the connection and returns
// false.
func (c *Connection) handshake(ctx context.Context) bool {
	first, err := packet.Decode(c.stream)
	if err != nil {
		c.log.Debug("handshake read failed", zap.Error(err))
		return false
	}

	switch p := first.(type) {
	case *packet.PingReq:
		// A bare PINGREQ before CONNECT is a legal liveness probe; reply
		// and close without establishing a session.
		_ = c.send(&packet.PingResp{})
		return false
	case *packet.Connect:
		return c.handleConnect(ctx, p)
	default:
		c.log.Debug("first packet was not CONNECT", zap.String("type", first.Type().String()))
		return false
	}
}

// handleConnect processes the CONNECT packet under its own span, per
// SPEC_FULL.md §10.3's "one span per CONNECT handshake".
func (c *Connection) handleConnect(ctx context.Context, p *packet.Connect) bool {
	_, span := xtrace.StartSpan(ctx, "mqtt.connect")
	defer span.End()

	if c.cfg.RequireAuth {
		if err := c.auth.Authenticate(p.Username, p.Password); err != nil {
			_ = c.send(&packet.Connack{Code: code.BadUsernameOrPassword})
			return false
		}
	}

	var will *Will
	if p.WillFlag {
		will = &Will{Topic: p.WillTopic, Payload: p.WillMessage, QoS: p.WillQoS, Retain: p.WillRetain}
	}

	if prev := c.active.TakeOver(p.ClientID, c); prev != nil {
		prev.RequestClose()
	}

	sessionPresent := false
	var resumedRetained []*registry.Published
	if p.CleanSession {
		if _, ok, err := c.sessionStore.Take(p.ClientID); err == nil && ok {
			// discard any persisted state per clean_session=true
		}
		c.session = NewSession(p.ClientID, p.KeepAlive, will)
	} else if d, ok, err := c.sessionStore.Take(p.ClientID); err == nil && ok {
		c.session, resumedRetained = Resume(d, will, c.registry)
		c.session.KeepAlive = p.KeepAlive
		sessionPresent = true
	} else {
		c.session = NewSession(p.ClientID, p.KeepAlive, will)
	}
	c.session.CleanSession = p.CleanSession

	if err := c.send(&packet.Connack{SessionPresent: sessionPresent, Code: code.Success}); err != nil {
		return false
	}

	for _, r := range resumedRetained {
		if err := c.send(&packet.Publish{QoS: r.QoS, Retain: true, TopicName: r.TopicName, Payload: r.Payload}); err != nil {
			return false
		}
	}
	return true
}
