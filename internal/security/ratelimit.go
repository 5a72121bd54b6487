package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable per-minute limits.
type RateLimitConfig struct {
	// ToolCallsPerMin caps how many tool calls enter the pipeline.
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`

	// ResponsesPerMin caps inbound approval responses (webhook or
	// websocket), limiting brute-force attempts against request IDs.
	ResponsesPerMin int `yaml:"responses_per_min"`

	// AuthPerMin caps authentication attempts on operator endpoints.
	AuthPerMin int `yaml:"auth_per_min"`
}

func rateLimitDefaults() RateLimitConfig {
	return RateLimitConfig{
		ToolCallsPerMin: 500,
		ResponsesPerMin: 120,
		AuthPerMin:      60,
	}
}

// RateLimiter implements sliding-window rate limiting. Each bucket tracks
// timestamps of recent events within a one-minute window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// Bucket names accepted by Allow.
const (
	BucketToolCall = "tool_call"
	BucketResponse = "response"
	BucketAuth     = "auth"
)

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitDefaults()
	if cfg.ToolCallsPerMin <= 0 {
		cfg.ToolCallsPerMin = defaults.ToolCallsPerMin
	}
	if cfg.ResponsesPerMin <= 0 {
		cfg.ResponsesPerMin = defaults.ResponsesPerMin
	}
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			BucketToolCall: {window: time.Minute, limit: cfg.ToolCallsPerMin},
			BucketResponse: {window: time.Minute, limit: cfg.ResponsesPerMin},
			BucketAuth:     {window: time.Minute, limit: cfg.AuthPerMin},
		},
	}
}

// Allow checks whether an event of the given kind is allowed. Returns nil
// if allowed, ErrRateLimited if the limit is exceeded. Unknown kinds have
// no limit. Safe to call on a nil limiter.
func (rl *RateLimiter) Allow(kind string) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window. Events are appended in
// chronological order, so a single scan from the front suffices.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
