// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) NATS() config.NATSConfig {
	args := m.Called()
	return args.Get(0).(config.NATSConfig)
}

func (m *MockConfig) Scoring() config.ScoringConfig {
	args := m.Called()
	return args.Get(0).(config.ScoringConfig)
}

func (m *MockConfig) Drift() config.DriftConfig {
	args := m.Called()
	return args.Get(0).(config.DriftConfig)
}

func (m *MockConfig) Health() config.HealthConfig {
	args := m.Called()
	return args.Get(0).(config.HealthConfig)
}

func (m *MockConfig) Reassessment() config.ReassessmentConfig {
	args := m.Called()
	return args.Get(0).(config.ReassessmentConfig)
}

func (m *MockConfig) Worker() config.WorkerConfig {
	args := m.Called()
	return args.Get(0).(config.WorkerConfig)
}

func (m *MockConfig) SetDatabaseURL(url string) { m.Called(url) }
func (m *MockConfig) SetServerAddr(addr string) { m.Called(addr) }
func (m *MockConfig) SetWorkerEnabled(b bool)   { m.Called(b) }

// -- Store Mock --

// MockStore mocks schemas.Store. WithTx records the call and, unless the
// expectation returns an error, runs fn against Tx.
type MockStore struct {
	mock.Mock
	Tx *MockTx
}

// NewMockStore returns a store whose transactions run against a fresh MockTx.
func NewMockStore() *MockStore {
	return &MockStore{Tx: new(MockTx)}
}

func (m *MockStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx schemas.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m.Tx)
}

func (m *MockStore) GetRun(ctx context.Context, runID string) (*schemas.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Run), args.Error(1)
}

func (m *MockStore) ListOrganisations(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) LatestScores(ctx context.Context, orgID string, since time.Time) ([]schemas.TargetScore, error) {
	args := m.Called(ctx, orgID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.TargetScore), args.Error(1)
}

func (m *MockStore) OpenEscalationCounts(ctx context.Context, orgID string) (map[schemas.Severity]int, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[schemas.Severity]int), args.Error(1)
}

func (m *MockStore) ActionCounts(ctx context.Context, orgID string, now time.Time) (schemas.ActionCounts, error) {
	args := m.Called(ctx, orgID, now)
	return args.Get(0).(schemas.ActionCounts), args.Error(1)
}

func (m *MockStore) DriftEventsSince(ctx context.Context, orgID string, since time.Time) ([]schemas.DriftEvent, error) {
	args := m.Called(ctx, orgID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.DriftEvent), args.Error(1)
}

func (m *MockStore) GetHealthSnapshot(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.HealthSnapshot), args.Error(1)
}

func (m *MockStore) UpsertHealthSnapshot(ctx context.Context, snap *schemas.HealthSnapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (m *MockStore) ListPolicies(ctx context.Context, orgID string, assessmentType *schemas.AssessmentType) ([]schemas.ReassessmentPolicy, error) {
	args := m.Called(ctx, orgID, assessmentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ReassessmentPolicy), args.Error(1)
}

// -- Tx Mock --

// MockTx mocks schemas.Tx.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) LockRun(ctx context.Context, runID string) (*schemas.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Run), args.Error(1)
}

func (m *MockTx) LoadAnswers(ctx context.Context, runID string, types map[string]schemas.AnswerType) ([]schemas.Answer, error) {
	args := m.Called(ctx, runID, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Answer), args.Error(1)
}

func (m *MockTx) SaveAnswers(ctx context.Context, runID string, answers []schemas.Answer) error {
	return m.Called(ctx, runID, answers).Error(0)
}

func (m *MockTx) CompletedHistory(ctx context.Context, targetID string, assessmentType schemas.AssessmentType, limit int) ([]schemas.Run, error) {
	args := m.Called(ctx, targetID, assessmentType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Run), args.Error(1)
}

func (m *MockTx) MarkRunCompleted(ctx context.Context, run *schemas.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockTx) InsertDriftEvent(ctx context.Context, ev *schemas.DriftEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockTx) GetPolicy(ctx context.Context, targetID string, assessmentType schemas.AssessmentType) (*schemas.ReassessmentPolicy, error) {
	args := m.Called(ctx, targetID, assessmentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ReassessmentPolicy), args.Error(1)
}

func (m *MockTx) UpsertPolicy(ctx context.Context, p *schemas.ReassessmentPolicy) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockTx) OverduePolicies(ctx context.Context, now time.Time) ([]schemas.ReassessmentPolicy, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ReassessmentPolicy), args.Error(1)
}

func (m *MockTx) MarkPolicyEscalated(ctx context.Context, policyID string, at time.Time) (bool, error) {
	args := m.Called(ctx, policyID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) ExpireAssessment(ctx context.Context, targetID string, assessmentType schemas.AssessmentType, at time.Time) (bool, error) {
	args := m.Called(ctx, targetID, assessmentType, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) ReactivateAssessment(ctx context.Context, targetID string, assessmentType schemas.AssessmentType) (bool, error) {
	args := m.Called(ctx, targetID, assessmentType)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) OverdueActions(ctx context.Context, now time.Time, minSeverity schemas.Severity) ([]schemas.Action, error) {
	args := m.Called(ctx, now, minSeverity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Action), args.Error(1)
}

func (m *MockTx) MarkActionEscalated(ctx context.Context, actionID string, at time.Time) (bool, error) {
	args := m.Called(ctx, actionID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) InsertEscalation(ctx context.Context, esc *schemas.Escalation) error {
	return m.Called(ctx, esc).Error(0)
}

func (m *MockTx) LockEscalation(ctx context.Context, escalationID string) (*schemas.Escalation, error) {
	args := m.Called(ctx, escalationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Escalation), args.Error(1)
}

func (m *MockTx) ResolveEscalation(ctx context.Context, esc *schemas.Escalation) (bool, error) {
	args := m.Called(ctx, esc)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) InsertAudit(ctx context.Context, rec *schemas.AuditRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// -- Publisher Mock --

// MockPublisher mocks schemas.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEscalation(ctx context.Context, esc schemas.Escalation) error {
	return m.Called(ctx, esc).Error(0)
}

func (m *MockPublisher) PublishDrift(ctx context.Context, ev schemas.DriftEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockPublisher) PublishAudit(ctx context.Context, rec schemas.AuditRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}
