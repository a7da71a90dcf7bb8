// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// window tracks request timestamps for one client.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// RateLimiter limits requests per client over a sliding window. Renders
// serialize on the compile lock, so the render endpoint is limited to keep
// one client from starving the others.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewRateLimiter allows limit requests per period and client. A limit of
// zero or less disables limiting.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// allow records a request for key and reports whether it is within the
// limit. When it is not, it also returns how long until a slot frees up.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	win, ok := rl.clients[key]
	if !ok {
		win = &window{}
		rl.clients[key] = win
	}
	rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.period)

	win.mu.Lock()
	defer win.mu.Unlock()

	valid := win.timestamps[:0]
	for _, ts := range win.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	win.timestamps = valid

	if len(win.timestamps) >= rl.limit {
		return false, win.timestamps[0].Sub(cutoff)
	}
	win.timestamps = append(win.timestamps, now)
	return true, 0
}

// Prune drops clients without requests in the current period and returns
// how many remain.
func (rl *RateLimiter) Prune() int {
	cutoff := rl.now().Add(-rl.period)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, win := range rl.clients {
		win.mu.Lock()
		recent := len(win.timestamps) > 0 && win.timestamps[len(win.timestamps)-1].After(cutoff)
		win.mu.Unlock()
		if !recent {
			delete(rl.clients, key)
		}
	}
	return len(rl.clients)
}

// Middleware returns an HTTP middleware that rate-limits by client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := rl.allow(clientIP(r))
		if !ok {
			secs := int(wait.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client's IP address, checking X-Forwarded-For
// and X-Real-IP headers for proxied requests.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
