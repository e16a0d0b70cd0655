// Package cache keeps short-lived notification state so a dose reminder is
// sent once even when several scheduler ticks see it due.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// NotificationTTL outlives the local day a key refers to in every timezone.
const NotificationTTL = 36 * time.Hour

// NotificationGuard admits a key once until it expires or is released.
type NotificationGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NotificationKey names the reminder of one medication at timeOfDay on the
// given local date.
func NotificationKey(userID, medicationID int64, localDate time.Time, timeOfDay string) string {
	return fmt.Sprintf("doseline:notified:%d:%d:%s:%s",
		userID, medicationID, localDate.Format("2006-01-02"), strings.ReplaceAll(timeOfDay, ":", ""))
}

// MemoryGuard is the in-process guard used when Redis is unavailable. It
// only deduplicates within a single process.
type MemoryGuard struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if until, ok := g.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	g.expires[key] = now.Add(ttl)

	// Prune expired keys.
	for k, until := range g.expires {
		if !now.Before(until) {
			delete(g.expires, k)
		}
	}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.expires, key)
	return nil
}
