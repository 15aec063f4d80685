package ratelimiter

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/types"
)

// entry tracks one identifier inside the current window. Entries are
// created on first failed attempt, deleted on success, and otherwise
// held until the block expires.
type entry struct {
	count       int
	windowReset time.Time
	blocked     bool
	blockReset  time.Time
}

// Status is the outcome of a limit check. RetryAfter is only set on
// denial, in whole seconds remaining on the block.
type Status struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
}

type Opts struct {
	TimeProvider func() time.Time
}

// Limiter is a sliding-window attempt counter with block-on-exceed.
// Checking a limit never consumes an attempt; attempts are recorded
// separately once the outcome of the action is known.
type Limiter struct {
	mu           sync.Mutex
	entries      map[string]*entry
	policy       config.RateLimitPolicy
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func New(policy config.RateLimitPolicy, logger *logrus.Logger, opts *Opts) *Limiter {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	return &Limiter{
		entries:      make(map[string]*entry),
		policy:       policy,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// NewPerAction builds one independent limiter per action from the
// configured policy table.
func NewPerAction(policies map[string]config.RateLimitPolicy, logger *logrus.Logger, opts *Opts) map[types.Action]*Limiter {
	limiters := make(map[types.Action]*Limiter, len(policies))
	for action, policy := range policies {
		limiters[types.Action(action)] = New(policy, logger, opts)
	}
	return limiters
}

// CheckLimit reports whether the identifier may proceed. Reaching the
// attempt budget transitions the entry to blocked for the full block
// duration; the check-then-block sequence runs under one lock so two
// concurrent requests cannot both slip past the threshold.
func (l *Limiter) CheckLimit(identifier string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeProvider()
	e, ok := l.entries[identifier]
	if !ok {
		return Status{Allowed: true, Remaining: l.policy.MaxAttempts}
	}

	if e.blocked {
		if now.Before(e.blockReset) {
			return Status{
				Allowed:    false,
				RetryAfter: secondsUntil(now, e.blockReset),
			}
		}
		// Block expired: the identifier starts clean.
		delete(l.entries, identifier)
		return Status{Allowed: true, Remaining: l.policy.MaxAttempts}
	}

	if now.After(e.windowReset) {
		delete(l.entries, identifier)
		return Status{Allowed: true, Remaining: l.policy.MaxAttempts}
	}

	if e.count >= l.policy.MaxAttempts {
		e.blocked = true
		e.blockReset = now.Add(l.policy.BlockDuration)
		l.logger.WithFields(logrus.Fields{
			"identifier":     identifier,
			"attempts":       e.count,
			"block_duration": l.policy.BlockDuration,
		}).Warn("identifier blocked after exceeding attempt budget")
		return Status{
			Allowed:    false,
			RetryAfter: int(l.policy.BlockDuration.Seconds()),
		}
	}

	return Status{Allowed: true, Remaining: l.policy.MaxAttempts - e.count}
}

// RecordAttempt registers the outcome of an attempt. A success fully
// resets the identifier; a failure increments the counter on the
// current window, opening a fresh window if the previous one expired.
func (l *Limiter) RecordAttempt(identifier string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.entries, identifier)
		return
	}

	now := l.timeProvider()
	e, ok := l.entries[identifier]
	if !ok || (!e.blocked && now.After(e.windowReset)) {
		l.entries[identifier] = &entry{
			count:       1,
			windowReset: now.Add(l.policy.Window),
		}
		return
	}
	e.count++
}

// Sweep removes entries whose window has expired and which are not
// currently blocked. It returns how many entries were evicted.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeProvider()
	removed := 0
	for identifier, e := range l.entries {
		if e.blocked {
			if now.After(e.blockReset) {
				delete(l.entries, identifier)
				removed++
			}
			continue
		}
		if now.After(e.windowReset) {
			delete(l.entries, identifier)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func secondsUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Seconds()))
}
