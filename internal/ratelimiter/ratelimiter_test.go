package ratelimiter

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		wantNil   bool
	}{
		{name: "standard rate", perSecond: 100, burst: 200},
		{name: "fractional rate", perSecond: 0.5, burst: 1},
		{name: "zero burst raised", perSecond: 10, burst: 0},
		{name: "unlimited", perSecond: 0, burst: 5, wantNil: true},
		{name: "negative rate", perSecond: -1, burst: 5, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if (limiter == nil) != tt.wantNil {
				t.Fatalf("New(%v, %d) nil=%v, want nil=%v", tt.perSecond, tt.burst, limiter == nil, tt.wantNil)
			}
		})
	}
}

func TestAllow_EnforcesBurst(t *testing.T) {
	limiter := New(1, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("admission %d should be allowed within burst", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("admission beyond burst should be refused")
	}
}

func TestAllow_Refills(t *testing.T) {
	limiter := New(50, 1)

	if !limiter.Allow() {
		t.Fatal("first admission should be allowed")
	}
	if limiter.Allow() {
		t.Fatal("second immediate admission should be refused")
	}

	time.Sleep(60 * time.Millisecond)

	if !limiter.Allow() {
		t.Fatal("admission should be allowed after refill")
	}
}

func TestNilLimiter(t *testing.T) {
	var limiter *RateLimiter

	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatal("nil limiter must admit everything")
		}
	}
	if limiter.Limit() != 0 || limiter.Tokens() != 0 {
		t.Fatal("nil limiter should report zero limit and tokens")
	}
}
