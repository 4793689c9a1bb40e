// Package idempotency remembers which reservation a client retry key produced,
// so a retried create returns the original reservation instead of colliding
// with it.
//
// A key is claimed before the reservation is written and filled in after the
// write commits. While claimed but unfilled, the key is pending: a retry
// arriving then is told the first attempt is still in progress.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyReservationCreate is idem:reservation:create:{requester}:{client key} -> Entry (JSON)
const keyReservationCreate = "idem:reservation:create:%s:%s"

// DefaultPendingTTL bounds how long a crashed attempt can keep its key claimed.
const DefaultPendingTTL = 30 * time.Second

// Entry is what a key holds. ReservationID is empty while the key is pending.
type Entry struct {
	Fingerprint   string `json:"fp"`
	ReservationID string `json:"id,omitempty"`
}

func (e Entry) Pending() bool {
	return e.ReservationID == ""
}

// Store maps (requester, key) to the request fingerprint and resulting reservation.
type Store interface {
	// Claim marks the key pending for fingerprint. When the key is already
	// held it returns the existing entry and claimed=false.
	Claim(ctx context.Context, requesterID, key, fingerprint string) (existing Entry, claimed bool, err error)
	// Complete records the reservation a claimed key produced.
	Complete(ctx context.Context, requesterID, key string, entry Entry) error
	// Release drops a claim whose request failed, so the client may retry.
	Release(ctx context.Context, requesterID, key string) error
}

func storageKey(requesterID, key string) string {
	return fmt.Sprintf(keyReservationCreate, requesterID, key)
}

type RedisStore struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, pendingTTL: DefaultPendingTTL}
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Claim(ctx context.Context, requesterID, key, fingerprint string) (Entry, bool, error) {
	k := storageKey(requesterID, key)
	pending, err := json.Marshal(Entry{Fingerprint: fingerprint})
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency claim: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, k, pending, s.pendingTTL).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency claim: %w", err)
	}
	if ok {
		return Entry{}, true, nil
	}

	raw, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; let the caller try again.
		return Entry{Fingerprint: fingerprint}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	var existing Entry
	if err := json.Unmarshal(raw, &existing); err != nil {
		return Entry{}, false, fmt.Errorf("idempotency decode: %w", err)
	}
	return existing, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, requesterID, key string, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	if err := s.rdb.Set(ctx, storageKey(requesterID, key), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, requesterID, key string) error {
	if err := s.rdb.Del(ctx, storageKey(requesterID, key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store without expiry.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, requesterID, key, fingerprint string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storageKey(requesterID, key)
	if existing, ok := s.keys[k]; ok {
		return existing, false, nil
	}
	s.keys[k] = Entry{Fingerprint: fingerprint}
	return Entry{}, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, requesterID, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[storageKey(requesterID, key)] = entry
	return nil
}

func (s *MemoryStore) Release(_ context.Context, requesterID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, storageKey(requesterID, key))
	return nil
}
