package ingest

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(60 * time.Second)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "logger:1")
	if err != nil || !allowed {
		t.Fatalf("first attempt must pass, got allowed=%v err=%v", allowed, err)
	}

	// Within the window.
	now = now.Add(30 * time.Second)
	if allowed, _ := limiter.Allow(ctx, "logger:1"); allowed {
		t.Fatal("second attempt inside the window must be refused")
	}

	// A different key is unaffected.
	if allowed, _ := limiter.Allow(ctx, "logger:2"); !allowed {
		t.Fatal("other keys must not share the window")
	}

	// Past the window.
	now = now.Add(61 * time.Second)
	if allowed, _ := limiter.Allow(ctx, "logger:1"); !allowed {
		t.Fatal("attempt after the window must pass")
	}
}

func TestMemoryLimiterRefusalDoesNotExtendWindow(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(60 * time.Second)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limiter.Allow(ctx, "logger:1")

	now = now.Add(45 * time.Second)
	limiter.Allow(ctx, "logger:1") // refused

	// 70s after the accepted attempt; the refusal at 45s must not have
	// restarted the clock.
	now = now.Add(25 * time.Second)
	if allowed, _ := limiter.Allow(ctx, "logger:1"); !allowed {
		t.Fatal("window must be measured from the last accepted attempt")
	}
}
