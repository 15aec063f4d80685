package ipreputation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/pathlearn/authguard/pkg/cache"
	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/types"
)

// Analyzer classifies IP addresses with a time-bounded cache in
// front of an intelligence provider. The default provider is the
// local heuristic one; an external provider, when configured, runs
// behind a circuit breaker and falls back to the local heuristics.
type Analyzer struct {
	provider IntelligenceProvider
	fallback IntelligenceProvider
	cache    *cache.TTLMap
	group    singleflight.Group
	policy   config.IPPolicy
	logger   *logrus.Logger
}

type Option func(*Analyzer)

// WithProvider substitutes an external intelligence provider. It is
// automatically wrapped in a circuit breaker; the local heuristics
// serve as fallback while the breaker is open.
func WithProvider(p IntelligenceProvider) Option {
	return func(a *Analyzer) {
		a.provider = NewBreakerProvider(p, a.logger)
	}
}

func New(policy config.IPPolicy, logger *logrus.Logger, opts ...Option) *Analyzer {
	local := NewHeuristicProvider(logger)
	a := &Analyzer{
		provider: local,
		fallback: local,
		cache:    cache.NewTTLMap(policy.CacheTTL),
		policy:   policy,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the cached classification of ip, computing and
// caching it on miss. Concurrent misses for the same IP share one
// lookup. The user agent only feeds the VPN-indicator keyword check.
func (a *Analyzer) Analyze(ctx context.Context, ip, userAgent string) (*types.IPInfo, error) {
	if cached, ok := a.cache.Get(ip); ok {
		info, ok := cached.(*types.IPInfo)
		if ok {
			return info, nil
		}
	}

	v, err, _ := a.group.Do(ip, func() (interface{}, error) {
		info, err := a.provider.Lookup(ctx, ip, userAgent)
		if err != nil {
			a.logger.WithError(err).WithField("ip", ip).
				Warn("intelligence provider failed, using local heuristics")
			info, err = a.fallback.Lookup(ctx, ip, userAgent)
			if err != nil {
				return nil, fmt.Errorf("ip analysis failed for %s: %w", ip, err)
			}
		}
		a.cache.Set(ip, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}

	info, ok := v.(*types.IPInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected lookup result type for %s", ip)
	}
	return info, nil
}

// Sweep evicts expired cache entries.
func (a *Analyzer) Sweep() int {
	return a.cache.Sweep()
}
