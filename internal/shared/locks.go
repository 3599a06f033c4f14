package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportLockKey builds the redis key guarding daily report generation for a date.
func ReportLockKey(date string) string {
	return fmt.Sprintf("report:%s:lock", date)
}

// JobLock is a best-effort redis mutex for scheduled jobs. The database
// unique constraint remains the source of truth; the lock only avoids two
// workers doing redundant aggregation work at the same moment.
type JobLock struct {
	client *redis.Client
}

// NewJobLock constructs a JobLock.
func NewJobLock(client *redis.Client) *JobLock {
	return &JobLock{client: client}
}

// Acquire attempts to take the lock, returning false when it is already held.
func (l *JobLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release frees the lock.
func (l *JobLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
