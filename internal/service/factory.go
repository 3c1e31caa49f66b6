// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/drift"
	"github.com/xkilldash9x/trustscore/internal/engine"
	"github.com/xkilldash9x/trustscore/internal/events"
	"github.com/xkilldash9x/trustscore/internal/health"
	"github.com/xkilldash9x/trustscore/internal/reassessment"
	"github.com/xkilldash9x/trustscore/internal/scoring"
	"github.com/xkilldash9x/trustscore/internal/store"
)

// ComponentFactory creates the component set. The abstraction keeps the
// commands testable without a database.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// poolConfig translates the database section into a pgxpool configuration.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is not configured (hint: check TRUSTSCORE_DATABASE_URL)")
	}
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	return pc, nil
}

// Create handles the full dependency injection of the engine's components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Question bank. Fail fast on a bad override before touching the network.
	bank, err := scoring.LoadBank(cfg.Scoring().QuestionBankPath)
	if err != nil {
		initializationErr = fmt.Errorf("failed to load question bank: %w", err)
		return nil, initializationErr
	}

	// 2. Database pool and store.
	pc, err := poolConfig(cfg.Database())
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
		return nil, initializationErr
	}
	components.DBPool = dbPool

	st, err := store.New(ctx, dbPool, logger, cfg.Database().QueryTimeout)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize store: %w", err)
		return nil, initializationErr
	}

	// 3. Event publisher.
	pub, err := events.New(cfg.NATS(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize event publisher: %w", err)
		return nil, initializationErr
	}
	components.Publisher = pub

	// 4. Domain services.
	Wire(components, st, pub, bank, cfg, logger)
	logger.Info("Components initialized",
		zap.Strings("assessment_types", assessmentTypeNames(bank)),
		zap.Bool("nats", cfg.NATS().Enabled))
	return components, nil
}

// Wire builds the domain services on top of an existing store and publisher.
func Wire(c *Components, st schemas.Store, pub schemas.Publisher, bank *scoring.Bank, cfg config.Interface, logger *zap.Logger) {
	c.Store = st
	c.Publisher = pub
	c.Bank = bank
	c.logger = logger
	c.Detector = drift.NewDetector(cfg.Drift())
	c.Scheduler = reassessment.NewScheduler(st, pub, cfg.Reassessment(), logger)
	c.Engine = engine.New(st, bank, c.Detector, c.Scheduler, pub, logger)
	c.Health = health.NewService(st, cfg.Health(), logger)
}

func assessmentTypeNames(bank *scoring.Bank) []string {
	types := bank.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
