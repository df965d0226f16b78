package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireEnforcesMinimumSpacing(t *testing.T) {
	l := New(6000, 50*time.Millisecond) // generous token rate, strict min spacing
	defer l.Stop()

	ctx := context.Background()
	start := time.Now()
	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.Acquire(ctx, "example.com"); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("two acquisitions for the same domain completed in %v, want >= 50ms spacing", elapsed)
	}
}

func TestAcquireIsDomainLocal(t *testing.T) {
	l := New(6000, 200*time.Millisecond)
	defer l.Stop()

	ctx := context.Background()
	start := time.Now()
	if err := l.Acquire(ctx, "a.example.com"); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if err := l.Acquire(ctx, "b.example.com"); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Fatalf("distinct domains serialized unexpectedly, took %v", elapsed)
	}
}

func TestSetDomainConfigOverridesDefault(t *testing.T) {
	l := New(30, time.Second)
	defer l.Stop()
	l.SetDomainConfig("fast.example.com", DomainConfig{RPM: 6000, MinDelay: time.Millisecond})

	status := l.Status("fast.example.com")
	if status.Limit < 50 {
		t.Fatalf("expected overridden limit to be high, got %v", status.Limit)
	}
}
