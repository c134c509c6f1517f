// Package cache invalidates the tenant-scoped query caches that go stale
// when a sync terminates. Keys follow {tenant_id}:{resource}:{discriminator}
// under a shared application prefix; the downstream query surface owns the
// population side.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// KeyPrefix namespaces all application cache keys.
const KeyPrefix = "findata"

// Invalidator deletes dependent cache keys after sync termination.
type Invalidator struct {
	rdb *redis.Client
}

// NewInvalidator wraps a Redis client connected to the cache store.
func NewInvalidator(rdb *redis.Client) *Invalidator {
	return &Invalidator{rdb: rdb}
}

func key(tenantID, resource string, parts ...string) string {
	var segments = append([]string{KeyPrefix, tenantID, resource}, parts...)
	return strings.Join(segments, ":")
}

// AfterSync deletes every cache entry that depends on the fact data or sync
// metadata of (tenant, loan_type). Called after each terminal transition,
// success or failure. Deletion failures are logged and swallowed; the
// caller falls through to the database either way.
func (i *Invalidator) AfterSync(ctx context.Context, tenantID, loanType string) error {
	var keys = []string{
		key(tenantID, "sync_configs"),
		key(tenantID, "sync_logs", "recent", "10"),
		key(tenantID, "sync_logs", "recent", "20"),
		key(tenantID, "ch_count", "fact_credit", loanType),
		key(tenantID, "ch_count", "fact_payment", loanType),
		key(tenantID, "profile", loanType, "credit"),
		key(tenantID, "profile", loanType, "payment"),
		key(tenantID, "existing_loans", loanType),
	}

	if err := i.rdb.Del(ctx, keys...).Err(); err != nil {
		log.WithFields(log.Fields{
			"tenant":   tenantID,
			"loanType": loanType,
			"err":      err,
		}).Warn("cache invalidation failed")
		return fmt.Errorf("invalidating %d cache keys: %w", len(keys), err)
	}
	log.WithFields(log.Fields{
		"tenant":   tenantID,
		"loanType": loanType,
		"keys":     len(keys),
	}).Debug("invalidated caches after sync")
	return nil
}
