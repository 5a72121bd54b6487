package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 3})

	for i := range 3 {
		if err := rl.Allow(BucketToolCall); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if err := rl.Allow(BucketToolCall); !errors.Is(err, ErrRateLimited) {
		t.Errorf("call over limit = %v, want ErrRateLimited", err)
	}
}

func TestRateLimiter_SlidingWindowEvicts(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{ResponsesPerMin: 2})

	current := time.Now()
	var mu sync.Mutex
	rl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	if err := rl.Allow(BucketResponse); err != nil {
		t.Fatal(err)
	}
	if err := rl.Allow(BucketResponse); err != nil {
		t.Fatal(err)
	}
	if err := rl.Allow(BucketResponse); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call = %v, want ErrRateLimited", err)
	}

	mu.Lock()
	current = current.Add(61 * time.Second)
	mu.Unlock()

	if err := rl.Allow(BucketResponse); err != nil {
		t.Errorf("call after window = %v, want allowed", err)
	}
}

func TestRateLimiter_BucketsIndependent(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 1, ResponsesPerMin: 1, AuthPerMin: 1})

	if err := rl.Allow(BucketToolCall); err != nil {
		t.Fatal(err)
	}
	if err := rl.Allow(BucketToolCall); !errors.Is(err, ErrRateLimited) {
		t.Fatal("tool_call bucket should be exhausted")
	}
	if err := rl.Allow(BucketResponse); err != nil {
		t.Errorf("response bucket should be unaffected: %v", err)
	}
	if err := rl.Allow(BucketAuth); err != nil {
		t.Errorf("auth bucket should be unaffected: %v", err)
	}
}

func TestRateLimiter_UnknownKindUnlimited(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 1})
	for range 100 {
		if err := rl.Allow("no-such-bucket"); err != nil {
			t.Fatalf("unknown kind should have no limit: %v", err)
		}
	}
}

func TestRateLimiter_NilSafe(t *testing.T) {
	t.Parallel()
	var rl *RateLimiter
	if err := rl.Allow(BucketToolCall); err != nil {
		t.Errorf("nil limiter = %v, want nil", err)
	}
}
