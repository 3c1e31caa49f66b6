package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/drift"
	"github.com/xkilldash9x/trustscore/internal/observability"
	"github.com/xkilldash9x/trustscore/internal/scoring"
)

// -- Interfaces for Dependency Inversion --

// PolicyRecorder updates a target's reassessment policy when one of its runs
// completes, inside the completing transaction.
type PolicyRecorder interface {
	OnRunCompleted(ctx context.Context, tx schemas.Tx, run *schemas.Run, completedAt time.Time) (*schemas.ReassessmentPolicy, error)
}

// Engine completes assessment runs: it scores answers, derives risk flags,
// measures drift against the target's history and records the completion
// against the reassessment policy, all in one transaction.
type Engine struct {
	store     schemas.Store
	bank      *scoring.Bank
	detector  *drift.Detector
	policies  PolicyRecorder
	publisher schemas.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine.
func New(
	store schemas.Store,
	bank *scoring.Bank,
	detector *drift.Detector,
	policies PolicyRecorder,
	publisher schemas.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:     store,
		bank:      bank,
		detector:  detector,
		policies:  policies,
		publisher: publisher,
		logger:    logger.Named("engine"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompleteRun scores the run and performs the single in_progress -> completed
// transition. When answers is empty the run's stored answers are scored.
// A run that is already completed yields schemas.ErrAlreadyCompleted and
// nothing is written.
func (e *Engine) CompleteRun(ctx context.Context, runID string, answers []schemas.Answer) (*schemas.CompletionResult, error) {
	if runID == "" {
		return nil, schemas.Invalid("run_id", "is required")
	}

	var (
		result *schemas.CompletionResult
		event  *schemas.DriftEvent
		run    *schemas.Run
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx schemas.Tx) error {
		var err error
		run, err = tx.LockRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", runID, err)
		}
		switch run.Status {
		case schemas.RunInProgress:
		case schemas.RunCompleted:
			return schemas.ErrAlreadyCompleted
		default:
			return fmt.Errorf("run %s is %s: %w", runID, run.Status, schemas.ErrInvalidTransition)
		}

		questions := e.bank.Questions(run.AssessmentType)
		if len(questions) == 0 {
			return schemas.Invalid("assessment_type", "no question bank for %q", run.AssessmentType)
		}

		submitted := len(answers) > 0
		if !submitted {
			answers, err = tx.LoadAnswers(ctx, runID, scoring.AnswerTypes(questions))
			if err != nil {
				return fmt.Errorf("failed to load answers for run %s: %w", runID, err)
			}
		}
		indexed, err := scoring.IndexAnswers(questions, answers)
		if err != nil {
			return err
		}

		dims := scoring.DimensionScores(questions, indexed)
		overall := scoring.OverallScore(dims)
		completedAt := e.now()
		run.DimensionScores = dims
		run.OverallScore = &overall
		run.RiskFlags = scoring.RiskFlags(run.AssessmentType, indexed)
		run.CompletedAt = &completedAt

		history, err := tx.CompletedHistory(ctx, run.TargetID, run.AssessmentType, e.detector.HistoryDepth())
		if err != nil {
			return fmt.Errorf("failed to load run history: %w", err)
		}
		res := e.detector.Detect(*run, excludeRun(history, run.ID))
		run.DriftFromPrevious = res.Delta
		run.DriftFlag = res.Material
		run.Stability = res.Stability

		if submitted {
			if err := tx.SaveAnswers(ctx, runID, answers); err != nil {
				return fmt.Errorf("failed to save answers: %w", err)
			}
		}
		if err := tx.MarkRunCompleted(ctx, run); err != nil {
			return fmt.Errorf("failed to complete run %s: %w", runID, err)
		}
		run.Status = schemas.RunCompleted

		if event = e.detector.Event(*run, res, completedAt); event != nil {
			if err := tx.InsertDriftEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to record drift event: %w", err)
			}
		}
		if _, err := e.policies.OnRunCompleted(ctx, tx, run, completedAt); err != nil {
			return fmt.Errorf("failed to update reassessment policy: %w", err)
		}

		result = &schemas.CompletionResult{
			RunID:             run.ID,
			Version:           run.Version,
			DimensionScores:   dims,
			OverallScore:      overall,
			RiskFlags:         run.RiskFlags,
			DriftFromPrevious: res.Delta,
			DriftFlag:         res.Material,
			DimensionDrift:    res.DimensionDeltas,
			Stability:         res.Stability,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, schemas.ErrConflict) {
			observability.RunCompletionConflicts.Inc()
			e.logger.Warn("Run completion rejected", zap.String("run_id", runID), zap.Error(err))
		}
		return nil, err
	}

	observability.RunsCompleted.WithLabelValues(string(run.AssessmentType)).Inc()
	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("org_id", run.OrgID),
		zap.String("target_id", run.TargetID),
		zap.Int("version", run.Version),
		zap.Int("overall_score", result.OverallScore),
		zap.Int("risk_flags", len(result.RiskFlags)),
		zap.String("stability", string(result.Stability)),
	}
	if result.DriftFromPrevious != nil {
		fields = append(fields, zap.Int("drift", *result.DriftFromPrevious), zap.Bool("drift_flag", result.DriftFlag))
	}
	e.logger.Info("Run completed", fields...)

	if event != nil {
		observability.DriftEvents.WithLabelValues(strconv.FormatBool(event.Material)).Inc()
		if e.publisher != nil {
			if err := e.publisher.PublishDrift(ctx, *event); err != nil {
				e.logger.Warn("Failed to publish drift event", zap.String("drift_event_id", event.ID), zap.Error(err))
			}
		}
	}
	return result, nil
}

// GetRun returns a run with its stored scores.
func (e *Engine) GetRun(ctx context.Context, runID string) (*schemas.Run, error) {
	if runID == "" {
		return nil, schemas.Invalid("run_id", "is required")
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return run, nil
}

// Bank exposes the question bank the engine scores against.
func (e *Engine) Bank() *scoring.Bank {
	return e.bank
}

func excludeRun(runs []schemas.Run, id string) []schemas.Run {
	out := runs[:0:0]
	for _, r := range runs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
