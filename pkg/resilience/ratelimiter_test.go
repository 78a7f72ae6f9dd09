package resilience

import (
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 2})
	if !l.Allow() || !l.Allow() {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow() {
		t.Fatal("third call should be limited")
	}
}

func TestLimiterRefill(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 2, Burst: 1})
	l.now = func() time.Time { return now }
	if !l.Allow() {
		t.Fatal("first call should pass")
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}
	if d := l.RetryAfter(); d != 500*time.Millisecond {
		t.Fatalf("expected 500ms retry-after, got %v", d)
	}
	now = now.Add(500 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("token should have refilled")
	}
}

func TestLimiterRefillCapsAtBurst(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 100, Burst: 2})
	l.now = func() time.Time { return now }
	l.Allow()
	now = now.Add(time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("expected 2 allowed after refill, got %d", allowed)
	}
}

func TestLimiterDefaultBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1})
	if l.opts.Burst != 1 {
		t.Fatalf("expected burst 1, got %d", l.opts.Burst)
	}
}

func TestPerMinute(t *testing.T) {
	o := PerMinute(120)
	if o.Rate != 2 || o.Burst != 120 {
		t.Fatalf("unexpected %+v", o)
	}
}
