// Package locking provides the distributed mutex that serializes syncs per
// (tenant, loan_type). The lock is a Redis key written with set-if-absent
// and a TTL; release is an unconditional delete, and the TTL guarantees
// eventual release if the holder crashes.
package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the lock lifetime; it must exceed the worst observed sync
// duration.
const DefaultTTL = 10 * time.Minute

// ErrNotAcquired is returned by Acquire when the lock is already held by a
// concurrent sync. Callers distinguish contention from lock-store failures
// with errors.Is.
var ErrNotAcquired = errors.New("sync lock held by another process")

// Key builds the lock key for a tenant and loan type.
func Key(tenantID, loanType string) string {
	return fmt.Sprintf("sync_lock:%s:%s", tenantID, loanType)
}

// Mutex acquires and releases sync locks in the shared lock store.
type Mutex struct {
	rdb *redis.Client
}

// NewMutex wraps a Redis client connected to the shared lock store.
func NewMutex(rdb *redis.Client) *Mutex {
	return &Mutex{rdb: rdb}
}

// Acquire performs a set-if-absent of token under the lock key with the
// given TTL. It returns ErrNotAcquired when the lock is already held.
func (m *Mutex) Acquire(ctx context.Context, tenantID, loanType, token string, ttl time.Duration) error {
	ok, err := m.rdb.SetNX(ctx, Key(tenantID, loanType), token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !ok {
		return errors.Wrapf(ErrNotAcquired, "tenant %s loan type %s", tenantID, loanType)
	}
	return nil
}

// Release deletes the lock key unconditionally.
func (m *Mutex) Release(ctx context.Context, tenantID, loanType string) error {
	if err := m.rdb.Del(ctx, Key(tenantID, loanType)).Err(); err != nil {
		return fmt.Errorf("releasing sync lock: %w", err)
	}
	return nil
}
