package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/crm-service/internal/observability"
)

// invalidationPlan lists the cached views a committed write made stale.
type invalidationPlan struct {
	leadID         string
	leadListings   bool
	clientID       string
	clientListings bool
}

// invalidate runs every step of plan concurrently and waits for all of them. Failures are
// logged and counted; the committed write stands.
func invalidate(ctx context.Context, cache CacheInvalidator, logger *zap.Logger, metrics *observability.Metrics, plan invalidationPlan) {
	if cache == nil {
		return
	}

	type step struct {
		target string
		run    func(context.Context) error
	}
	steps := []step{}
	if plan.leadID != "" {
		steps = append(steps, step{"lead", func(ctx context.Context) error { return cache.InvalidateLead(ctx, plan.leadID) }})
	}
	if plan.leadListings {
		steps = append(steps, step{"lead_listings", cache.InvalidateLeadListings})
	}
	if plan.clientID != "" {
		steps = append(steps, step{"client", func(ctx context.Context) error { return cache.InvalidateClient(ctx, plan.clientID) }})
	}
	if plan.clientListings {
		steps = append(steps, step{"client_listings", cache.InvalidateClientListings})
	}

	var g errgroup.Group
	for _, s := range steps {
		s := s
		g.Go(func() error {
			if err := s.run(ctx); err != nil {
				logger.Warn("cache invalidation failed",
					zap.String("target", s.target),
					zap.String("lead_id", plan.leadID),
					zap.String("client_id", plan.clientID),
					zap.Error(err))
				metrics.RecordCacheFailure(s.target)
			}
			return nil
		})
	}
	_ = g.Wait()
}
