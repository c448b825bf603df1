// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CodeRateLimited is the stable error code for throttled requests.
const CodeRateLimited = "RATE_LIMITED"

// RateLimitConfig configures per-client token buckets.
type RateLimitConfig struct {
	// RPS is the sustained request rate per client. Zero or less disables
	// limiting.
	RPS float64

	// Burst is the bucket size. Values below 1 are raised to 1.
	Burst int

	// IdleTTL is how long an unused client bucket is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig allows one generation every two seconds with a
// burst of five.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RPS: 0.5, Burst: 5, IdleTTL: 10 * time.Minute}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client.
//
// # Description
//
// Clients are keyed by authenticated user id when auth assigned one that is
// not shared, otherwise by client IP. Buckets idle for IdleTTL are dropped
// lazily on the next request.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastPrune time.Time
}

// NewRateLimiter creates a limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

// Allow reports whether key may make a request now. When it may not, the
// returned duration is how long until a token frees up.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	if r.cfg.RPS <= 0 {
		return true, 0
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastPrune) > r.cfg.IdleTTL {
		for k, b := range r.buckets {
			if now.Sub(b.lastSeen) > r.cfg.IdleTTL {
				delete(r.buckets, k)
			}
		}
		r.lastPrune = now
	}

	b, ok := r.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(r.cfg.RPS), r.cfg.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked clients.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// Middleware throttles requests with 429 and a Retry-After header.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := r.Allow(clientKey(c))
		if !ok {
			retry := int(math.Ceil(wait.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if info := GetAuthInfo(c); info != nil && info.UserID != "" && info.UserID != "local-user" && info.UserID != "token-user" {
		return "user:" + info.UserID
	}
	return "ip:" + c.ClientIP()
}
