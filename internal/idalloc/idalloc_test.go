package idalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yunqi/beaconmq/internal/packet"
)

func TestFirstAllocationParity(t *testing.T) {
	broker := New(Broker)
	id, ok := broker.Allocate()
	assert.True(t, ok)
	assert.EqualValues(t, 2, id)

	client := New(Client)
	id, ok = client.Allocate()
	assert.True(t, ok)
	assert.EqualValues(t, 1, id)
}

func TestFilledThenUnset(t *testing.T) {
	broker := New(Broker)
	// 0 is never handed out, so the even partition holds 32767 ids.
	for i := 0; i < 32767; i++ {
		_, ok := broker.Allocate()
		assert.True(t, ok)
	}
	_, ok := broker.Allocate()
	assert.False(t, ok)

	for i := 0; i <= 32767; i++ {
		if i%2 == 0 {
			broker.Release(packet.PacketID(i))
		}
	}
	id, ok := broker.Allocate()
	assert.True(t, ok)
	assert.EqualValues(t, 2, id)
}

func TestReserveThenRelease(t *testing.T) {
	a := New(Broker)
	a.Reserve(100)
	assert.True(t, a.isSet(100))
	a.Release(100)
	assert.False(t, a.isSet(100))
}
