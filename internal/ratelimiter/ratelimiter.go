// Package ratelimiter implements the rate limiter (C8): a per-principal
// token bucket keyed by authenticated user id or client IP, with a static
// tier table and lazy cleanup of buckets unused for over an hour, grounded
// on infrastructure/ratelimit's use of golang.org/x/time/rate.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tier names the static (rpm, burst) pairs a principal can be assigned to.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierBasic     Tier = "basic"
	TierPro       Tier = "pro"
	TierInternal  Tier = "internal"
)

// TierLimits is one tier's requests-per-minute and burst allowance.
type TierLimits struct {
	RPM   int
	Burst int
}

// defaultTiers is the static tier table from §4.7. It is held behind the
// limiter's mutex so tiers can be swapped live.
var defaultTiers = map[Tier]TierLimits{
	TierAnonymous: {RPM: 60, Burst: 10},
	TierBasic:     {RPM: 600, Burst: 50},
	TierPro:       {RPM: 3000, Burst: 200},
	TierInternal:  {RPM: 12000, Burst: 1000},
}

type bucket struct {
	limiter    *rate.Limiter
	lastUsedAt time.Time
}

// Limiter is a map of per-key token buckets. All operations are
// non-blocking and lock-local per §5, except the janitor sweep.
type Limiter struct {
	mu      sync.Mutex
	tiers   map[Tier]TierLimits
	buckets map[string]*bucket

	staleAfter time.Duration
	stopCh     chan struct{}
}

// New constructs a Limiter and starts its lazy-cleanup janitor.
func New() *Limiter {
	l := &Limiter{
		tiers:      cloneTiers(defaultTiers),
		buckets:    make(map[string]*bucket),
		staleAfter: time.Hour,
		stopCh:     make(chan struct{}),
	}
	go l.janitorLoop()
	return l
}

func cloneTiers(src map[Tier]TierLimits) map[Tier]TierLimits {
	dst := make(map[Tier]TierLimits, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// SetTier live-updates a tier's (rpm, burst) pair; existing buckets for
// that tier keep their current token count but adopt the new refill rate
// and cap on their next request.
func (l *Limiter) SetTier(tier Tier, limits TierLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tiers[tier] = limits
}

// Key selects the bucket key for a request: the authenticated principal id
// if present, else the client IP, per §4.7.
func Key(principalID, clientIP string) string {
	if principalID != "" {
		return "principal:" + principalID
	}
	return "ip:" + clientIP
}

// LimitsFor returns the currently configured (rpm, burst) pair for tier,
// falling back to the anonymous tier's limits if tier is unrecognized. Used
// by the HTTP perimeter middleware to report an accurate Retry-After/limit
// on a 429.
func (l *Limiter) LimitsFor(tier Tier) TierLimits {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limits, ok := l.tiers[tier]; ok {
		return limits
	}
	return l.tiers[TierAnonymous]
}

// Allow reports whether the request identified by key, bucketed under
// tier, may proceed, consuming a token if so.
func (l *Limiter) Allow(key string, tier Tier) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limits, ok := l.tiers[tier]
	if !ok {
		limits = l.tiers[TierAnonymous]
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(ratePerSecond(limits.RPM), limits.Burst)}
		l.buckets[key] = b
	} else {
		b.limiter.SetLimit(ratePerSecond(limits.RPM))
		b.limiter.SetBurst(limits.Burst)
	}
	b.lastUsedAt = time.Now()
	return b.limiter.Allow()
}

func ratePerSecond(rpm int) rate.Limit {
	if rpm <= 0 {
		return rate.Limit(1)
	}
	return rate.Limit(float64(rpm) / 60.0)
}

// BucketCount reports the number of tracked buckets, for tests and metrics.
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the janitor goroutine.
func (l *Limiter) Close() {
	close(l.stopCh)
}

func (l *Limiter) janitorLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweepStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) sweepStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.staleAfter)
	for key, b := range l.buckets {
		if b.lastUsedAt.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
