package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yunqi/beaconmq/internal/persistence/session"
)

// requireRedis skips the test unless a Redis instance is reachable at
// addr, since this package has no fake/mock Redis dependency to run
// against in CI-less environments.
func requireRedis(t *testing.T) *Store {
	t.Helper()
	s := New("127.0.0.1:6379")
	if err := s.client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	return s
}

func TestInsertTakeSweep(t *testing.T) {
	s := requireRedis(t)
	clientID := "redisstore-test-client"
	defer s.client.Del(context.Background(), key(clientID))

	err := s.Insert(session.Disconnected{ClientID: clientID, KeepAlive: 1, LastSeen: time.Now().Add(-10 * time.Second)})
	assert.NoError(t, err)

	removed, err := s.SweepExpired()
	assert.NoError(t, err)
	assert.Contains(t, removed, clientID)

	_, ok, err := s.Take(clientID)
	assert.NoError(t, err)
	assert.False(t, ok, "SweepExpired already removed it")
}
