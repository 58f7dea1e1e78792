package assurance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/qos"
)

func TestQoS1SenderLifecycle(t *testing.T) {
	list := NewList()
	pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: 1, Payload: []byte("x")}
	list.Insert(1, pub, StageOrigin)

	e, ok := list.Get(1)
	assert.True(t, ok)
	assert.Equal(t, StageOrigin, e.Stage)

	assert.True(t, list.Transition(1, StageAck))
	e, _ = list.Get(1)
	assert.Equal(t, StageAck, e.Stage)
	assert.True(t, e.Stage.terminal())
}

func TestQoS2SenderLifecycle(t *testing.T) {
	list := NewList()
	pub := &packet.Publish{QoS: qos.ExactlyOnce, TopicName: "t", PacketID: 5, Payload: []byte("x")}
	list.Insert(5, pub, StageOrigin)

	assert.True(t, list.Transition(5, StageRec))
	e, _ := list.Get(5)
	assert.Equal(t, StageRec, e.Stage)

	pkt, ok := e.RetryPacket()
	assert.True(t, ok)
	rel, isRel := pkt.(*packet.PubRel)
	assert.True(t, isRel)
	assert.EqualValues(t, 5, rel.PacketID)

	assert.True(t, list.Transition(5, StageComp))
	e, _ = list.Get(5)
	assert.True(t, e.Stage.terminal())
}

func TestRetryDueAfterInterval(t *testing.T) {
	list := NewList()
	pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: 1, Payload: []byte("x")}
	e := list.Insert(1, pub, StageOrigin)
	e.changedAt = time.Now().Add(-RetryInterval(e) - time.Millisecond)

	due := list.DueForRetry(time.Now())
	assert.Len(t, due, 1)
	assert.Equal(t, 2*RetryBase, e.interval)
}

func TestRetryNotDueBeforeInterval(t *testing.T) {
	list := NewList()
	pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: 1, Payload: []byte("x")}
	list.Insert(1, pub, StageOrigin)

	due := list.DueForRetry(time.Now())
	assert.Empty(t, due)
}

func TestBackoffSaturatesAtCeiling(t *testing.T) {
	list := NewList()
	pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: 1, Payload: []byte("x")}
	e := list.Insert(1, pub, StageOrigin)
	for i := 0; i < 20; i++ {
		e.advanceBackoff()
	}
	assert.Equal(t, MaxRetryInterval, e.interval)
}

func TestCleanupRemovesOnlyTerminalEntriesPastThreshold(t *testing.T) {
	list := NewList()
	for i := 0; i < CleanupThreshold; i++ {
		pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: packet.PacketID(i + 1), Payload: nil}
		list.Insert(packet.PacketID(i+1), pub, StageOrigin)
	}
	assert.Empty(t, list.CleanupTerminal())

	// push past the threshold with a terminal entry.
	pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: 9000, Payload: nil}
	list.Insert(9000, pub, StageAck)

	freed := list.CleanupTerminal()
	assert.Contains(t, freed, packet.PacketID(9000))
	_, stillThere := list.Get(9000)
	assert.False(t, stillThere)
}

func TestDuplicateRetryPacketCarriesDup(t *testing.T) {
	list := NewList()
	pub := &packet.Publish{QoS: qos.AtLeastOnce, TopicName: "t", PacketID: 1, Payload: []byte("x")}
	e := list.Insert(1, pub, StageOrigin)

	pkt, ok := e.RetryPacket()
	assert.True(t, ok)
	rePub, isPub := pkt.(*packet.Publish)
	assert.True(t, isPub)
	assert.True(t, rePub.Dup)
	assert.False(t, pub.Dup, "original entry's publish must not be mutated")
}
