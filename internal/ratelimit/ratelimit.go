// Package ratelimit throttles the stream of editor frames a single
// connection may push into the hub.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket tuned for editor traffic: typing produces short
// bursts of small code_change frames, so the bucket holds a burst allowance
// well above the sustained per-second rate. One connection gets one Limiter.
type Limiter struct {
	mu        sync.Mutex
	fillRate  float64 // tokens added per second
	capacity  float64
	available float64
	last      time.Time
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		fillRate:  perSecond,
		capacity:  float64(burst),
		available: float64(burst),
		last:      time.Now(),
	}
}

// Allow credits the bucket for the time elapsed since the previous call and
// spends one token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.available += now.Sub(l.last).Seconds() * l.fillRate
	l.last = now
	if l.available > l.capacity {
		l.available = l.capacity
	}

	if l.available < 1 {
		return false
	}
	l.available--
	return true
}
