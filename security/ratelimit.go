package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiters     = 10000
	limiterCleanupInterval = 5 * time.Minute
	limiterMaxIdle         = 30 * time.Minute
)

type limiterEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per key (usually the client IP).
// The number of buckets is bounded; the least recently used key is evicted
// when the bound is reached.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	rate       rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter allows requestsPerSecond with the given burst per key.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, defaultMaxLimiters, logger)
}

// NewRateLimiterWithConfig is NewRateLimiter with an explicit key bound.
// maxEntries of 0 means unbounded.
func NewRateLimiterWithConfig(requestsPerSecond, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		maxEntries = defaultMaxLimiters
	}
	rl := &RateLimiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: maxEntries,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request for key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[key]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		if oldest := rl.lru.Back(); oldest != nil {
			entry := oldest.Value.(*limiterEntry)
			delete(rl.entries, entry.key)
			rl.lru.Remove(oldest)
			rl.logger.Debug("Rate limiter evicted idle key", "entries", len(rl.entries))
		}
	}

	entry := &limiterEntry{key: key, limiter: rate.NewLimiter(rl.rate, rl.burst), lastAccess: now}
	rl.entries[key] = rl.lru.PushFront(entry)
	return entry.limiter.Allow()
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Cleanup drops keys idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if entry.lastAccess.After(cutoff) {
			break
		}
		prev := elem.Prev()
		delete(rl.entries, entry.key)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}
	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed", "removed", removed, "remaining", len(rl.entries))
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup(limiterMaxIdle)
		case <-rl.stop:
			return
		}
	}
}

// Stop terminates the background cleanup. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
