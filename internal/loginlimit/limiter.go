// Package loginlimit tracks failed logins per (client ip, account) pair and
// locks a pair out once it reaches the configured number of failures.
//
// State is process-local. Each re-check of a pair happens lazily: an elapsed
// lockout is discarded the next time the pair is looked at, after which the
// pair behaves as if it had never failed.
package loginlimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 15 * time.Minute
)

// Params configures a Limiter. Zero values take the package defaults; a zero
// IdleTTL disables idle eviction in Sweep.
type Params struct {
	MaxAttempts int
	Lockout     time.Duration
	IdleTTL     time.Duration
	Now         func() time.Time
}

// Status is the answer to IsLocked.
type Status struct {
	Locked    bool
	Remaining time.Duration
}

// RemainingSeconds truncates the remaining lockout to whole seconds.
func (s Status) RemainingSeconds() int {
	return int(s.Remaining / time.Second)
}

// FailureResult describes the pair after RecordFailure.
type FailureResult struct {
	FailCount int
	// JustLocked is true only for the failure that crossed the threshold.
	JustLocked bool
	// Locked is true whenever the pair is inside a lockout window.
	Locked           bool
	LockoutRemaining time.Duration
}

// LockoutSeconds truncates the remaining lockout to whole seconds.
func (r FailureResult) LockoutSeconds() int {
	return int(r.LockoutRemaining / time.Second)
}

type pairKey struct {
	ip      string
	account string
}

type record struct {
	failCount   int
	firstFail   time.Time
	lastFail    time.Time
	lockedUntil time.Time
}

func (r *record) lockedAt(now time.Time) bool {
	return !r.lockedUntil.IsZero() && now.Before(r.lockedUntil)
}

func (r *record) lockElapsed(now time.Time) bool {
	return !r.lockedUntil.IsZero() && !now.Before(r.lockedUntil)
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	records     map[pairKey]*record
	maxAttempts int
	lockout     time.Duration
	idleTTL     time.Duration
	now         func() time.Time
}

// NewLimiter builds a Limiter from p.
func NewLimiter(p Params) *Limiter {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultLockout
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Limiter{
		records:     make(map[pairKey]*record),
		maxAttempts: p.MaxAttempts,
		lockout:     p.Lockout,
		idleTTL:     p.IdleTTL,
		now:         p.Now,
	}
}

// MaxAttempts returns the failure threshold.
func (l *Limiter) MaxAttempts() int {
	return l.maxAttempts
}

// IsLocked reports whether the pair is inside a lockout window.
func (l *Limiter) IsLocked(ip, account string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := pairKey{ip: ip, account: account}
	rec, ok := l.records[k]
	if !ok {
		return Status{}
	}
	if rec.lockedAt(now) {
		return Status{Locked: true, Remaining: rec.lockedUntil.Sub(now)}
	}
	if rec.lockElapsed(now) {
		delete(l.records, k)
	}
	return Status{}
}

// RecordFailure counts one failed attempt for the pair. Failures reported
// while the pair is already locked are not counted and do not extend the
// lockout.
func (l *Limiter) RecordFailure(ip, account string) FailureResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := pairKey{ip: ip, account: account}
	rec, ok := l.records[k]
	if ok && rec.lockedAt(now) {
		return FailureResult{
			FailCount:        rec.failCount,
			Locked:           true,
			LockoutRemaining: rec.lockedUntil.Sub(now),
		}
	}
	if !ok || rec.lockElapsed(now) {
		rec = &record{firstFail: now}
		l.records[k] = rec
	}

	rec.failCount++
	rec.lastFail = now
	if rec.failCount >= l.maxAttempts {
		rec.lockedUntil = now.Add(l.lockout)
		return FailureResult{
			FailCount:        rec.failCount,
			JustLocked:       true,
			Locked:           true,
			LockoutRemaining: l.lockout,
		}
	}
	return FailureResult{FailCount: rec.failCount}
}

// RecordSuccess forgets the pair, including any active lockout.
func (l *Limiter) RecordSuccess(ip, account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, pairKey{ip: ip, account: account})
}

// RemainingAttempts returns how many failures the pair may still make before
// it locks. A pair whose lockout has elapsed counts as fresh.
func (l *Limiter) RemainingAttempts(ip, account string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := pairKey{ip: ip, account: account}
	rec, ok := l.records[k]
	if !ok {
		return l.maxAttempts
	}
	if rec.lockElapsed(now) {
		delete(l.records, k)
		return l.maxAttempts
	}
	if remaining := l.maxAttempts - rec.failCount; remaining > 0 {
		return remaining
	}
	return 0
}

// Sweep drops elapsed lockouts and, when an idle TTL is configured, unlocked
// records whose last failure is older than it. It returns the number removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, rec := range l.records {
		switch {
		case rec.lockElapsed(now):
		case rec.lockedUntil.IsZero() && l.idleTTL > 0 && now.Sub(rec.lastFail) >= l.idleTTL:
		default:
			continue
		}
		delete(l.records, k)
		removed++
	}
	return removed
}

// Len returns the number of tracked pairs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
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
