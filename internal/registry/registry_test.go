package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/topic"
)

func mustFilter(t *testing.T, s string) topic.Filter {
	t.Helper()
	f, err := topic.ParseFilter(s)
	assert.NoError(t, err)
	return f
}

func TestPublishFanOutToSubscriber(t *testing.T) {
	r := New(8)
	filter := mustFilter(t, "a/b")
	subs, retained, err := r.Subscribe(filter, qos.AtMostOnce)
	assert.NoError(t, err)
	assert.Empty(t, subs)
	assert.Empty(t, retained)

	// Nothing is subscribed to "a/b" yet because Subscribe only finds
	// topics that have already published or retained; use SubscribeTopic
	// to register interest in a topic name directly.
	sub, gotRetained := r.SubscribeTopic("a/b", qos.AtMostOnce)
	assert.Nil(t, gotRetained)

	r.Publish(&Published{TopicName: "a/b", QoS: qos.AtMostOnce, Payload: []byte("hi")})

	select {
	case msg := <-sub.Receive():
		assert.Equal(t, "a/b", msg.TopicName)
		assert.Equal(t, []byte("hi"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected message")
	}
}

func TestRetainThenSubscribeDeliversImmediately(t *testing.T) {
	r := New(8)
	r.Retain(&Published{TopicName: "a/b", QoS: qos.AtLeastOnce, Payload: []byte("retained")})

	filter := mustFilter(t, "a/+")
	subs, retained, err := r.Subscribe(filter, qos.AtMostOnce)
	assert.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Len(t, retained, 1)
	assert.Equal(t, qos.AtMostOnce, retained[0].QoS, "retained delivery downgrades to the subscriber's granted QoS")
	assert.True(t, retained[0].Retain)
}

func TestRetainWithEmptyPayloadClears(t *testing.T) {
	r := New(8)
	r.Retain(&Published{TopicName: "a/b", QoS: qos.AtLeastOnce, Payload: []byte("x")})
	r.Retain(&Published{TopicName: "a/b", QoS: qos.AtLeastOnce, Payload: nil})

	filter := mustFilter(t, "a/b")
	_, retained, err := r.Subscribe(filter, qos.AtMostOnce)
	assert.NoError(t, err)
	assert.Empty(t, retained)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := New(8)
	sub, _ := r.SubscribeTopic("a/b", qos.AtMostOnce)
	r.Unsubscribe(sub)
	r.Publish(&Published{TopicName: "a/b", QoS: qos.AtMostOnce, Payload: []byte("hi")})

	select {
	case <-sub.Receive():
		t.Fatal("should not have received after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDropsOldestWhenMailboxFull(t *testing.T) {
	r := New(1)
	sub, _ := r.SubscribeTopic("a/b", qos.AtMostOnce)
	r.Publish(&Published{TopicName: "a/b", Payload: []byte("first")})
	r.Publish(&Published{TopicName: "a/b", Payload: []byte("second")})

	msg := <-sub.Receive()
	assert.Equal(t, []byte("second"), msg.Payload, "bounded mailbox drops the oldest pending message")
}

func TestFilterMatchesMultipleTopics(t *testing.T) {
	r := New(8)
	r.Publish(&Published{TopicName: "a/b", Payload: []byte("1")})
	r.Publish(&Published{TopicName: "a/c", Payload: []byte("2")})

	subs, _, err := r.Subscribe(mustFilter(t, "a/+"), qos.AtMostOnce)
	assert.NoError(t, err)
	assert.Len(t, subs, 2)
}
