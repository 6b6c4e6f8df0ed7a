package routing

import (
	"context"
	"time"

	"journey-app/pkg/logger"
)

// Resolver tries each strategy in order and returns the first success. The
// straight-line strategy is appended unconditionally, so Resolve always
// yields a route when both endpoints are known; upstream failures never
// surface to the caller.
type Resolver struct {
	strategies []Strategy
	timeout    time.Duration
}

// NewResolver builds the default chain: the external routing service (when
// configured) followed by the straight-line fallback.
func NewResolver(serviceURL string, timeout time.Duration) *Resolver {
	var strategies []Strategy
	if serviceURL != "" {
		strategies = append(strategies, NewOSRMStrategy(serviceURL, timeout))
	}
	strategies = append(strategies, &StraightLineStrategy{Mode: ModeDriving})

	return &Resolver{strategies: strategies, timeout: timeout}
}

// NewResolverWithStrategies is for tests and callers with custom chains.
// The straight-line fallback is still appended as the last resort.
func NewResolverWithStrategies(timeout time.Duration, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: append(strategies, &StraightLineStrategy{Mode: ModeDriving}),
		timeout:    timeout,
	}
}

func (r *Resolver) Resolve(ctx context.Context, origin, destination Point) *Route {
	for _, strategy := range r.strategies {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		route, err := strategy.Route(attemptCtx, origin, destination)
		cancel()

		if err != nil {
			logger.Debug("Routing strategy %s failed: %v", strategy.Name(), err)
			continue
		}
		return route
	}

	// The straight-line strategy never fails, so this only runs if the
	// resolver was constructed with an empty chain.
	straight, _ := (&StraightLineStrategy{Mode: ModeDriving}).Route(ctx, origin, destination)
	return straight
}
