package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// 10 tokens per second, burst of 2
	l := NewLimiter(10, 2)

	if !l.Allow(1) {
		t.Error("expected first token to be allowed")
	}
	if !l.Allow(1) {
		t.Error("expected second token to be allowed (burst)")
	}
	if l.Allow(1) {
		t.Error("expected third token to be rejected (burst exhausted)")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow(1) {
		t.Error("expected token to be refilled after wait")
	}
}

func TestKeyedLimiter(t *testing.T) {
	k := NewKeyedLimiter(100, 10, 100*time.Millisecond)
	defer k.Close()

	a := k.Get("eda.ipynb")
	b := k.Get("model.ipynb")
	if a == b {
		t.Error("expected different limiters for different notebooks")
	}
	if k.Get("eda.ipynb") != a {
		t.Error("expected same limiter for same notebook")
	}

	time.Sleep(250 * time.Millisecond)
	if k.Get("eda.ipynb") == a {
		t.Error("expected idle limiter to be replaced")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(100, 1)
	l.Allow(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Wait returned too early")
	}
}
