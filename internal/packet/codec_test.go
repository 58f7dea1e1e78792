package packet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/beaconmq/internal/code"
	"github.com/yunqi/beaconmq/internal/qos"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, p.Encode(buf))
	got, err := Decode(buf)
	require.NoError(t, err)
	return got
}

func TestConnectRoundTrip(t *testing.T) {
	p := &Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: ProtocolLevel311,
		CleanSession:  true,
		WillFlag:      true,
		WillQoS:       qos.AtLeastOnce,
		WillRetain:    false,
		UsernameFlag:  true,
		PasswordFlag:  true,
		KeepAlive:     60,
		ClientID:      "client-1",
		WillTopic:     "bye",
		WillMessage:   []byte("gone"),
		Username:      "alice",
		Password:      []byte("secret"),
	}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestConnectRoundTripNoWillNoAuth(t *testing.T) {
	p := &Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: ProtocolLevel311,
		CleanSession:  false,
		KeepAlive:     30,
		ClientID:      "c",
	}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestConnackRoundTrip(t *testing.T) {
	p := &Connack{SessionPresent: true, Code: code.Success}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestPublishRoundTripQoS0(t *testing.T) {
	p := &Publish{QoS: qos.AtMostOnce, TopicName: "a/b", Payload: []byte("hello")}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestPublishRoundTripQoS2(t *testing.T) {
	p := &Publish{Dup: true, QoS: qos.ExactlyOnce, Retain: true, TopicName: "a/b", PacketID: 7, Payload: []byte("x")}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestAckFamilyRoundTrip(t *testing.T) {
	assert.Equal(t, &PubAck{PacketID: 1}, roundTrip(t, &PubAck{PacketID: 1}))
	assert.Equal(t, &PubRec{PacketID: 2}, roundTrip(t, &PubRec{PacketID: 2}))
	assert.Equal(t, &PubRel{PacketID: 3}, roundTrip(t, &PubRel{PacketID: 3}))
	assert.Equal(t, &PubComp{PacketID: 4}, roundTrip(t, &PubComp{PacketID: 4}))
	assert.Equal(t, &UnsubAck{PacketID: 5}, roundTrip(t, &UnsubAck{PacketID: 5}))
}

func TestSubscribeRoundTrip(t *testing.T) {
	p := &Subscribe{
		PacketID: 10,
		Requests: []SubscribeRequest{
			{TopicFilter: "sport/#", QoS: qos.ExactlyOnce},
			{TopicFilter: "a/+", QoS: qos.AtMostOnce},
		},
	}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestSubackRoundTrip(t *testing.T) {
	p := &Suback{PacketID: 10, Codes: []code.SubscribeCode{code.SubscribeQoS2, code.SubscribeFailure}}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	p := &Unsubscribe{PacketID: 11, TopicFilters: []string{"a/b", "c/#"}}
	got := roundTrip(t, p)
	assert.Equal(t, p, got)
}

func TestZeroBodyRoundTrip(t *testing.T) {
	assert.Equal(t, &PingReq{}, roundTrip(t, &PingReq{}))
	assert.Equal(t, &PingResp{}, roundTrip(t, &PingResp{}))
	assert.Equal(t, &Disconnect{}, roundTrip(t, &Disconnect{}))
}

func TestDecodeRejectsBadFlagBits(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&PubAck{PacketID: 1}).Encode(buf))
	raw := buf.Bytes()
	raw[0] |= 0x0f // corrupt the reserved flag nibble
	_, err := Decode(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestDecodeConnectRejectsWrongProtocolLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&Connect{ProtocolName: "MQTT", ProtocolLevel: 3, KeepAlive: 1, ClientID: "c"}).Encode(buf))
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestDecodeConnectRejectsPasswordWithoutUsername(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&Connect{
		ProtocolName: "MQTT", ProtocolLevel: ProtocolLevel311, ClientID: "c",
		PasswordFlag: true, Password: []byte("x"),
	}).Encode(buf))
	_, err := Decode(buf)
	assert.Error(t, err)
}
