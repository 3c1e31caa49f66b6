package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/observability"
)

// Service recomputes and serves health snapshots.
type Service struct {
	store   schemas.Store
	cfg     config.HealthConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	flights singleflight.Group
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service. On-demand recomputes share one token bucket
// sized by cfg.RecomputeRate and cfg.RecomputeBurst.
func NewService(store schemas.Store, cfg config.HealthConfig, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cfg:     cfg,
		logger:  logger.Named("health"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RecomputeRate), cfg.RecomputeBurst),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored snapshot without recomputing. A snapshot older than
// StaleAfter is still served, marked stale. schemas.ErrNotFound means health
// has not been computed yet.
func (s *Service) Get(ctx context.Context, orgID string) (*schemas.HealthView, error) {
	if orgID == "" {
		return nil, schemas.Invalid("org_id", "is required")
	}
	snap, err := s.store.GetHealthSnapshot(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load health snapshot for org %s: %w", orgID, err)
	}
	return &schemas.HealthView{
		Snapshot: *snap,
		Stale:    s.now().Sub(snap.ComputedAt) > s.cfg.StaleAfter,
	}, nil
}

// RecomputeOnDemand is Recompute behind the rate limiter.
func (s *Service) RecomputeOnDemand(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error) {
	if !s.limiter.Allow() {
		return nil, schemas.ErrRateLimited
	}
	return s.Recompute(ctx, orgID)
}

const defaultRecomputeTimeout = time.Minute

// Recompute gathers inputs, computes the snapshot and replaces the stored one
// in a single write. Concurrent calls for the same organisation share one
// computation. The shared computation is not cancelled with any one caller's
// ctx; it runs under RecomputeTimeout, and each caller stops waiting when its
// own ctx ends.
func (s *Service) Recompute(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error) {
	if orgID == "" {
		return nil, schemas.Invalid("org_id", "is required")
	}
	timeout := s.cfg.RecomputeTimeout
	if timeout <= 0 {
		timeout = defaultRecomputeTimeout
	}
	ch := s.flights.DoChan(orgID, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return s.recompute(flightCtx, orgID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Joined in-flight health recompute", zap.String("org_id", orgID))
		}
		snap := *res.Val.(*schemas.HealthSnapshot)
		return &snap, nil
	}
}

func (s *Service) recompute(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error) {
	start := time.Now()
	now := s.now()
	in := Inputs{OrgID: orgID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scores, err := s.store.LatestScores(gctx, orgID, now.Add(-s.cfg.Lookback))
		if err != nil {
			return fmt.Errorf("failed to load latest scores: %w", err)
		}
		in.Scores = scores
		return nil
	})
	g.Go(func() error {
		counts, err := s.store.OpenEscalationCounts(gctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load open escalations: %w", err)
		}
		in.OpenEscalations = counts
		return nil
	})
	g.Go(func() error {
		counts, err := s.store.ActionCounts(gctx, orgID, now)
		if err != nil {
			return fmt.Errorf("failed to load action counts: %w", err)
		}
		in.Actions = counts
		return nil
	})
	g.Go(func() error {
		events, err := s.store.DriftEventsSince(gctx, orgID, now.Add(-s.cfg.DriftLookback))
		if err != nil {
			return fmt.Errorf("failed to load drift events: %w", err)
		}
		in.DriftEvents = events
		return nil
	})
	if err := g.Wait(); err != nil {
		observability.HealthRecomputeErrors.Inc()
		s.logger.Error("Health inputs unavailable", zap.String("org_id", orgID), zap.Error(err))
		return nil, err
	}

	snap := Compute(s.cfg, in, now)
	if err := s.store.UpsertHealthSnapshot(ctx, &snap); err != nil {
		observability.HealthRecomputeErrors.Inc()
		s.logger.Error("Failed to store health snapshot", zap.String("org_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("failed to store health snapshot: %w", err)
	}
	observability.HealthRecomputeDuration.Observe(time.Since(start).Seconds())

	fields := []zap.Field{zap.String("org_id", orgID), zap.String("status", string(snap.Status))}
	if snap.HealthScore != nil {
		fields = append(fields, zap.Int("health_score", *snap.HealthScore))
	}
	s.logger.Info("Health snapshot recomputed", fields...)
	return &snap, nil
}

// RecomputeAll recomputes every organisation with at most concurrency in
// flight. One organisation failing does not stop the others; their errors are
// joined in the result.
func (s *Service) RecomputeAll(ctx context.Context, concurrency int) (int, error) {
	orgs, err := s.store.ListOrganisations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list organisations: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu   sync.Mutex
		done int
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, orgID := range orgs {
		g.Go(func() error {
			_, err := s.Recompute(ctx, orgID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("org %s: %w", orgID, err))
				return nil
			}
			done++
			return nil
		})
	}
	_ = g.Wait()
	return done, errors.Join(errs...)
}
