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

// Package redisstore is the session.Store backend selected by
// session_store.backend = "redis": disconnected sessions survive a
// broker restart and are visible to other broker processes sharing the
// same Redis instance.
//
// Each session is one Redis hash keyed "beaconmq:session:<clientID>",
// with a "data" field holding the JSON-encoded session.Disconnected and
// an "expire_at" field holding the computed expiry as a Unix timestamp,
// so SweepExpired can identify stale entries with a field read instead
// of decoding every hash.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yunqi/beaconmq/internal/persistence/session"
)

const keyPrefix = "beaconmq:session:"
const indexKey = "beaconmq:sessions"

func key(clientID string) string { return keyPrefix + clientID }

// Store is a Redis-backed session.Store.
type Store struct {
	client *redis.Client
}

// New returns a Store talking to the Redis instance at addr.
func New(addr string) *Store {
	return &Store{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient wraps an already-configured *redis.Client, for callers
// that need TLS, auth, or a non-default DB index.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Take implements session.Store.
func (s *Store) Take(clientID string) (session.Disconnected, bool, error) {
	ctx := context.Background()
	raw, err := s.client.HGet(ctx, key(clientID), "data").Result()
	if err == redis.Nil {
		return session.Disconnected{}, false, nil
	}
	if err != nil {
		return session.Disconnected{}, false, fmt.Errorf("redisstore: take %q: %w", clientID, err)
	}

	var d session.Disconnected
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return session.Disconnected{}, false, fmt.Errorf("redisstore: decode %q: %w", clientID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key(clientID))
	pipe.SRem(ctx, indexKey, clientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return session.Disconnected{}, false, fmt.Errorf("redisstore: remove %q: %w", clientID, err)
	}
	return d, true, nil
}

// Insert implements session.Store.
func (s *Store) Insert(d session.Disconnected) error {
	ctx := context.Background()
	encoded, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redisstore: encode %q: %w", d.ClientID, err)
	}

	expireAt := int64(0)
	if d.KeepAlive != 0 {
		expireAt = d.LastSeen.Add(time.Duration(d.KeepAlive) * time.Second).Unix()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key(d.ClientID), map[string]interface{}{
		"data":      string(encoded),
		"expire_at": expireAt,
	})
	pipe.SAdd(ctx, indexKey, d.ClientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: insert %q: %w", d.ClientID, err)
	}
	return nil
}

// SweepExpired implements session.Store.
func (s *Store) SweepExpired() ([]string, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list sessions: %w", err)
	}

	now := time.Now().Unix()
	var removed []string
	for _, id := range ids {
		raw, err := s.client.HGet(ctx, key(id), "expire_at").Result()
		if err == redis.Nil {
			// Index pointed at a hash that's already gone; reconcile.
			s.client.SRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("redisstore: read expiry for %q: %w", id, err)
		}
		expireAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return removed, fmt.Errorf("redisstore: parse expiry for %q: %w", id, err)
		}
		if expireAt == 0 {
			continue // keep-alive disabled for this session
		}
		if now > expireAt {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, key(id))
			pipe.SRem(ctx, indexKey, id)
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, fmt.Errorf("redisstore: expire %q: %w", id, err)
			}
			removed = append(removed, id)
		}
	}
	return removed, nil
}
