package middleware

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/licensor-backend/api/responses"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// PublicRateLimiter is a per-client-IP token bucket for the unauthenticated
// license client endpoints.
type PublicRateLimiter struct {
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	logg    *logger.Logger

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPublicRateLimiter builds a limiter allowing rps requests per second per
// IP with the given burst. A non-positive rps disables limiting.
func NewPublicRateLimiter(rps float64, burst int, idleTTL time.Duration, logg *logger.Logger) *PublicRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &PublicRateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		logg:    logg,
		buckets: map[string]*ipBucket{},
	}
}

func (l *PublicRateLimiter) bucket(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = l.now()
	return b.limiter
}

// Handler rejects requests over budget with RATE_LIMIT_EXCEEDED.
func (l *PublicRateLimiter) Handler(next http.Handler) http.Handler {
	if l == nil || l.rps <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		lim := l.bucket(ip)
		now := l.now()
		res := lim.ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			if l.logg != nil {
				l.logg.Warn(l.logg.WithField(r.Context(), "ip", ip), "public.rate_limit.blocked")
			}
			seconds := int(math.Ceil(delay.Seconds()))
			err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
				WithDetails(map[string]any{"retry_after_seconds": seconds})
			responses.WriteError(r.Context(), nil, w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep drops buckets idle for longer than the idle TTL and returns how many
// were removed.
func (l *PublicRateLimiter) Sweep() int {
	if l.idleTTL <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked IPs.
func (l *PublicRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets until ctx is cancelled.
func (l *PublicRateLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || l.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
