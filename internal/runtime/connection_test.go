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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/beaconmq/internal/code"
	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/persistence/session/memory"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/registry"
)

type openAuth struct{}

func (openAuth) Authenticate(string, []byte) error { return nil }

func newHarness(t *testing.T) (client net.Conn, reg *registry.Registry, stop func()) {
	t.Helper()
	server, client := net.Pipe()
	reg = registry.New(16)
	store := memory.New()
	active := NewActiveRegistry()
	conn := NewConnection(server, reg, store, active, openAuth{}, Config{
		MaxQueueMessages:  16,
		HousekeepInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		conn.Run(ctx)
		close(done)
	}()

	return client, reg, func() {
		cancel()
		_ = client.Close()
		<-done
	}
}

func connectAndExpectAck(t *testing.T, client net.Conn, clientID string) {
	t.Helper()
	require.NoError(t, (&packet.Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: packet.ProtocolLevel311,
		CleanSession:  true,
		ClientID:      clientID,
		KeepAlive:     60,
	}).Encode(client))

	p, err := packet.Decode(client)
	require.NoError(t, err)
	ack, ok := p.(*packet.Connack)
	require.True(t, ok, "expected CONNACK, got %T", p)
	assert.Equal(t, code.Success, ack.Code)
	assert.False(t, ack.SessionPresent)
}

func TestConnectEstablishesSession(t *testing.T) {
	client, _, stop := newHarness(t)
	defer stop()

	connectAndExpectAck(t, client, "client-1")
}

func TestSubscribePublishRoundTrip(t *testing.T) {
	subscriber, reg, stopSub := newHarness(t)
	defer stopSub()
	connectAndExpectAck(t, subscriber, "subscriber")

	// Subscribe only matches topic names the registry already knows
	// about; seed "room/temp" so the subscription below has a topic.
	reg.Publish(&registry.Published{TopicName: "room/temp", QoS: qos.AtMostOnce, Payload: []byte("seed")})

	require.NoError(t, (&packet.Subscribe{
		PacketID: 1,
		Requests: []packet.SubscribeRequest{{TopicFilter: "room/temp", QoS: qos.AtMostOnce}},
	}).Encode(subscriber))

	p, err := packet.Decode(subscriber)
	require.NoError(t, err)
	suback, ok := p.(*packet.Suback)
	require.True(t, ok, "expected SUBACK, got %T", p)
	assert.Equal(t, []code.SubscribeCode{code.SubscribeQoS0}, suback.Codes)

	// Give the subscribe call's fan-out registration a moment to land
	// before publishing to the registry.
	time.Sleep(20 * time.Millisecond)

	reg.Publish(&registry.Published{TopicName: "room/temp", QoS: qos.AtMostOnce, Payload: []byte("21C")})

	p, err = packet.Decode(subscriber)
	require.NoError(t, err)
	pub, ok := p.(*packet.Publish)
	require.True(t, ok, "expected PUBLISH, got %T", p)
	assert.Equal(t, "room/temp", pub.TopicName)
	assert.Equal(t, []byte("21C"), pub.Payload)
}

func TestPingReqGetsPingResp(t *testing.T) {
	client, _, stop := newHarness(t)
	defer stop()
	connectAndExpectAck(t, client, "pinger")

	require.NoError(t, (&packet.PingReq{}).Encode(client))

	p, err := packet.Decode(client)
	require.NoError(t, err)
	_, ok := p.(*packet.PingResp)
	assert.True(t, ok, "expected PINGRESP, got %T", p)
}

func TestDisconnectClosesWithoutWill(t *testing.T) {
	client, _, stop := newHarness(t)
	defer stop()
	connectAndExpectAck(t, client, "disconnector")

	require.NoError(t, (&packet.Disconnect{}).Encode(client))

	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := packet.Decode(client)
	assert.Error(t, err, "connection should close after DISCONNECT with nothing further sent")
}

// TestPersistentSessionResumeReceivesMessagesAfterReconnect covers the
// session-persistence scenario from spec.md: a clean_session=false
// client subscribes, drops its transport ungracefully, then reconnects
// with the same client id and must still receive publishes on its
// previously-subscribed topic. That requires Resume to re-subscribe
// each persisted filter against the registry (fresh fan-out channels
// replace the ones the old connection's terminate released) rather than
// only restoring the filter bookkeeping.
func TestPersistentSessionResumeReceivesMessagesAfterReconnect(t *testing.T) {
	reg := registry.New(16)
	store := memory.New()
	active := NewActiveRegistry()
	cfg := Config{MaxQueueMessages: 16, HousekeepInterval: 10 * time.Millisecond}

	// Subscribe only matches topic names the registry already knows
	// about (see registry_test.go's TestPublishFanOutToSubscriber); seed
	// "t/a" so the "t/#" subscription below has something to match.
	reg.Publish(&registry.Published{TopicName: "t/a", QoS: qos.ExactlyOnce, Payload: []byte("seed")})

	server1, client1 := net.Pipe()
	conn1 := NewConnection(server1, reg, store, active, openAuth{}, cfg)
	ctx1, cancel1 := context.WithCancel(context.Background())
	done1 := make(chan struct{})
	go func() { conn1.Run(ctx1); close(done1) }()

	require.NoError(t, (&packet.Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: packet.ProtocolLevel311,
		CleanSession:  false,
		ClientID:      "resumer",
		KeepAlive:     60,
	}).Encode(client1))
	p, err := packet.Decode(client1)
	require.NoError(t, err)
	ack := p.(*packet.Connack)
	assert.False(t, ack.SessionPresent)

	require.NoError(t, (&packet.Subscribe{
		PacketID: 1,
		Requests: []packet.SubscribeRequest{{TopicFilter: "t/#", QoS: qos.ExactlyOnce}},
	}).Encode(client1))
	p, err = packet.Decode(client1)
	require.NoError(t, err)
	_, ok := p.(*packet.Suback)
	require.True(t, ok, "expected SUBACK, got %T", p)
	time.Sleep(20 * time.Millisecond)

	// Ungraceful disconnect: close the transport without DISCONNECT.
	_ = client1.Close()
	cancel1()
	<-done1
	time.Sleep(20 * time.Millisecond)

	server2, client2 := net.Pipe()
	conn2 := NewConnection(server2, reg, store, active, openAuth{}, cfg)
	ctx2, cancel2 := context.WithCancel(context.Background())
	done2 := make(chan struct{})
	go func() { conn2.Run(ctx2); close(done2) }()
	defer func() {
		cancel2()
		_ = client2.Close()
		<-done2
	}()

	require.NoError(t, (&packet.Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: packet.ProtocolLevel311,
		CleanSession:  false,
		ClientID:      "resumer",
		KeepAlive:     60,
	}).Encode(client2))
	p, err = packet.Decode(client2)
	require.NoError(t, err)
	ack = p.(*packet.Connack)
	assert.True(t, ack.SessionPresent, "session_present must be true on resume")
	time.Sleep(20 * time.Millisecond)

	reg.Publish(&registry.Published{TopicName: "t/a", QoS: qos.ExactlyOnce, Payload: []byte("online")})

	p, err = packet.Decode(client2)
	require.NoError(t, err)
	pub, ok := p.(*packet.Publish)
	require.True(t, ok, "resumed session must still receive messages on its previously-subscribed topic, got %T", p)
	assert.Equal(t, "t/a", pub.TopicName)
	assert.Equal(t, []byte("online"), pub.Payload)
}
