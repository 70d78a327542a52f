package handler

import (
	"testing"
	"time"
)

func TestClientLimiters_sweepDropsIdle(t *testing.T) {
	l := newClientLimiters(1, 1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.allow("192.0.2.1", now)
	l.allow("192.0.2.2", now.Add(limiterIdleTTL))

	l.sweep(now.Add(limiterIdleTTL + time.Second))
	if _, ok := l.buckets["192.0.2.1"]; ok {
		t.Error("idle bucket survived sweep")
	}
	if _, ok := l.buckets["192.0.2.2"]; !ok {
		t.Error("active bucket was swept")
	}
}

func TestClientLimiters_retryAfter(t *testing.T) {
	if got := newClientLimiters(20, 40).retryAfter(); got != "1" {
		t.Errorf("20 rps: got %q, want 1", got)
	}
	if got := newClientLimiters(0, 1).retryAfter(); got != "1" {
		t.Errorf("0 rps: got %q, want 1", got)
	}
}
