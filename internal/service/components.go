// File: internal/service/components.go
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/drift"
	"github.com/xkilldash9x/trustscore/internal/engine"
	"github.com/xkilldash9x/trustscore/internal/health"
	"github.com/xkilldash9x/trustscore/internal/reassessment"
	"github.com/xkilldash9x/trustscore/internal/scoring"
)

// Components holds every initialized service. It centralizes lifecycle
// management for the serve, sweep and health commands.
type Components struct {
	Store     schemas.Store
	Publisher schemas.Publisher
	Bank      *scoring.Bank
	Detector  *drift.Detector
	Scheduler *reassessment.Scheduler
	Engine    *engine.Engine
	Health    *health.Service
	DBPool    *pgxpool.Pool

	logger *zap.Logger
}

// Shutdown releases resources in reverse order of creation.
func (c *Components) Shutdown() {
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger.Debug("Beginning components shutdown sequence.")

	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.logger.Warn("Error closing event publisher.", zap.Error(err))
		} else {
			c.logger.Debug("Event publisher closed.")
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		c.logger.Debug("Database connection pool closed.")
	}

	c.logger.Info("All components shut down.")
}
