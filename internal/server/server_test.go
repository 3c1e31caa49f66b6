package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/reassessment"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockRuns struct{ mock.Mock }

func (m *mockRuns) CompleteRun(ctx context.Context, runID string, answers []schemas.Answer) (*schemas.CompletionResult, error) {
	args := m.Called(ctx, runID, answers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.CompletionResult), args.Error(1)
}

func (m *mockRuns) GetRun(ctx context.Context, runID string) (*schemas.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Run), args.Error(1)
}

type mockHealth struct{ mock.Mock }

func (m *mockHealth) Get(ctx context.Context, orgID string) (*schemas.HealthView, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.HealthView), args.Error(1)
}

func (m *mockHealth) RecomputeOnDemand(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.HealthSnapshot), args.Error(1)
}

type mockReassessment struct{ mock.Mock }

func (m *mockReassessment) ListPolicies(ctx context.Context, orgID string, t *schemas.AssessmentType) ([]schemas.ReassessmentPolicy, error) {
	args := m.Called(ctx, orgID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ReassessmentPolicy), args.Error(1)
}

func (m *mockReassessment) Upsert(ctx context.Context, req reassessment.UpsertRequest) (*schemas.ReassessmentPolicy, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ReassessmentPolicy), args.Error(1)
}

func (m *mockReassessment) SweepExpiry(ctx context.Context, actor, reason string) (*schemas.SweepResult, error) {
	args := m.Called(ctx, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SweepResult), args.Error(1)
}

func (m *mockReassessment) ResolveEscalation(ctx context.Context, id, actor, reason string) (*schemas.Escalation, error) {
	args := m.Called(ctx, id, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Escalation), args.Error(1)
}

type testServer struct {
	server       *Server
	runs         *mockRuns
	health       *mockHealth
	reassessment *mockReassessment
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{runs: &mockRuns{}, health: &mockHealth{}, reassessment: &mockReassessment{}}
	ts.server = New(ts.runs, ts.health, ts.reassessment, config.ServerConfig{Addr: ":0"}, "test", zap.NewNop())
	t.Cleanup(func() {
		ts.runs.AssertExpectations(t)
		ts.health.AssertExpectations(t)
		ts.reassessment.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do(http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestLogLevelEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	w := ts.do(http.MethodGet, "/loglevel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"level"`)
}

func TestCompleteRun(t *testing.T) {
	yes := true

	t.Run("returns the completion result", func(t *testing.T) {
		ts := setupTestServer(t)
		answers := []schemas.Answer{{QuestionID: "sys.risk.kill_switch", Bool: &yes}}
		result := &schemas.CompletionResult{RunID: "run-1", Version: 2, OverallScore: 71, Stability: schemas.StabilityProvisional}
		ts.runs.On("CompleteRun", mock.Anything, "run-1", answers).Return(result, nil)

		w := ts.do(http.MethodPost, "/v1/runs/run-1/complete", CompleteRunRequest{Answers: answers})

		require.Equal(t, http.StatusOK, w.Code)
		var got schemas.CompletionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 71, got.OverallScore)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("empty body scores stored answers", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.runs.On("CompleteRun", mock.Anything, "run-2", []schemas.Answer(nil)).
			Return(&schemas.CompletionResult{RunID: "run-2"}, nil)

		w := ts.do(http.MethodPost, "/v1/runs/run-2/complete", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("chunked empty body scores stored answers", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.runs.On("CompleteRun", mock.Anything, "run-3", []schemas.Answer(nil)).
			Return(&schemas.CompletionResult{RunID: "run-3"}, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/runs/run-3/complete", io.MultiReader())
		req.Header.Set("Content-Type", "application/json")
		require.Equal(t, int64(-1), req.ContentLength)
		w := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		ts := setupTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/runs/run-1/complete", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decodeError(t, w).Code)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", schemas.Invalid("answers", "unknown question %q", "x"), http.StatusBadRequest, CodeValidationFailed},
		{"not found", fmt.Errorf("failed to lock run: %w", schemas.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"already completed", schemas.ErrAlreadyCompleted, http.StatusConflict, CodeAlreadyCompleted},
		{"invalid transition", fmt.Errorf("run is draft: %w", schemas.ErrInvalidTransition), http.StatusConflict, CodeInvalidTransition},
		{"unavailable", fmt.Errorf("%w: connection reset", schemas.ErrUnavailable), http.StatusServiceUnavailable, CodeUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, CodeUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			ts.runs.On("CompleteRun", mock.Anything, "run-1", mock.Anything).Return(nil, tt.err)

			w := ts.do(http.MethodPost, "/v1/runs/run-1/complete", CompleteRunRequest{})

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal error", resp.Error)
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	ts := setupTestServer(t)
	score := 64
	ts.runs.On("GetRun", mock.Anything, "run-1").
		Return(&schemas.Run{ID: "run-1", Status: schemas.RunCompleted, OverallScore: &score}, nil)

	w := ts.do(http.MethodGet, "/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"overall_score":64`)
}

func TestGetHealth(t *testing.T) {
	t.Run("returns the view", func(t *testing.T) {
		ts := setupTestServer(t)
		score := 82
		view := &schemas.HealthView{
			Snapshot: schemas.HealthSnapshot{OrgID: "org-1", Status: schemas.HealthOK, HealthScore: &score, ComputedAt: time.Now()},
			Stale:    true,
		}
		ts.health.On("Get", mock.Anything, "org-1").Return(view, nil)

		w := ts.do(http.MethodGet, "/v1/orgs/org-1/health", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got schemas.HealthView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.True(t, got.Stale)
		require.NotNil(t, got.Snapshot.HealthScore)
		assert.Equal(t, 82, *got.Snapshot.HealthScore)
	})

	t.Run("missing snapshot is not yet computed", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.health.On("Get", mock.Anything, "org-2").Return(nil, fmt.Errorf("get snapshot: %w", schemas.ErrNotFound))

		w := ts.do(http.MethodGet, "/v1/orgs/org-2/health", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, CodeNotYetComputed, decodeError(t, w).Code)
	})
}

func TestRecomputeHealth(t *testing.T) {
	t.Run("returns the fresh snapshot", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.health.On("RecomputeOnDemand", mock.Anything, "org-1").
			Return(&schemas.HealthSnapshot{OrgID: "org-1", Status: schemas.HealthUnavailable}, nil)

		w := ts.do(http.MethodPost, "/v1/orgs/org-1/health/recompute", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"health_score":null`)
	})

	t.Run("throttled", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.health.On("RecomputeOnDemand", mock.Anything, "org-1").Return(nil, schemas.ErrRateLimited)

		w := ts.do(http.MethodPost, "/v1/orgs/org-1/health/recompute", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, CodeRateLimited, decodeError(t, w).Code)
	})
}

func TestListPolicies(t *testing.T) {
	t.Run("type filter is passed through", func(t *testing.T) {
		ts := setupTestServer(t)
		sys := schemas.AssessmentSystem
		ts.reassessment.On("ListPolicies", mock.Anything, "org-1", &sys).
			Return([]schemas.ReassessmentPolicy{{ID: "pol-1", State: schemas.PolicyOverdue, IsOverdue: true}}, nil)

		w := ts.do(http.MethodGet, "/v1/orgs/org-1/policies?type=system_assessment", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got PoliciesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got.Policies, 1)
		assert.True(t, got.Policies[0].IsOverdue)
	})

	t.Run("no filter and no policies", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.reassessment.On("ListPolicies", mock.Anything, "org-1", (*schemas.AssessmentType)(nil)).
			Return(nil, nil)

		w := ts.do(http.MethodGet, "/v1/orgs/org-1/policies", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"policies":[]}`, w.Body.String())
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		ts := setupTestServer(t)
		w := ts.do(http.MethodGet, "/v1/orgs/org-1/policies?type=vendor_review", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Error, "oneof")
	})
}

func TestUpsertPolicy(t *testing.T) {
	t.Run("maps the request", func(t *testing.T) {
		ts := setupTestServer(t)
		want := reassessment.UpsertRequest{
			OrgID:          "org-1",
			TargetID:       "sys-1",
			AssessmentType: schemas.AssessmentSystem,
			FrequencyDays:  30,
			Actor:          "alice",
			Reason:         "quarterly cadence",
		}
		ts.reassessment.On("Upsert", mock.Anything, want).
			Return(&schemas.ReassessmentPolicy{ID: "pol-1", FrequencyDays: 30, State: schemas.PolicyScheduled}, nil)

		w := ts.do(http.MethodPost, "/v1/policies", UpsertPolicyRequest{
			OrgID: "org-1", TargetID: "sys-1", AssessmentType: "system_assessment",
			FrequencyDays: 30, Actor: "alice", Reason: "quarterly cadence",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"state":"scheduled"`)
	})

	t.Run("frequency below one day is rejected", func(t *testing.T) {
		ts := setupTestServer(t)
		w := ts.do(http.MethodPost, "/v1/policies", map[string]any{
			"org_id": "org-1", "target_id": "sys-1", "assessment_type": "system_assessment",
			"frequency_days": -5, "actor": "alice", "reason": "r",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Error, "FrequencyDays")
	})

	t.Run("missing actor is rejected", func(t *testing.T) {
		ts := setupTestServer(t)
		w := ts.do(http.MethodPost, "/v1/policies", map[string]any{
			"org_id": "org-1", "target_id": "sys-1", "assessment_type": "system_assessment",
			"frequency_days": 30, "reason": "r",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Error, "Actor: failed required")
	})
}

func TestSweepExpiry(t *testing.T) {
	ts := setupTestServer(t)
	ts.reassessment.On("SweepExpiry", mock.Anything, "ops", "nightly").
		Return(&schemas.SweepResult{ExpiredCount: 2, EscalationCount: 3, ActionEscalationCount: 1}, nil)

	w := ts.do(http.MethodPost, "/v1/sweeps/expiry", OperatorRequest{Actor: "ops", Reason: "nightly"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"expired_count":2,"escalation_count":3,"action_escalation_count":1}`, w.Body.String())
}

func TestResolveEscalation(t *testing.T) {
	t.Run("resolves", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.reassessment.On("ResolveEscalation", mock.Anything, "esc-1", "bob", "done").
			Return(&schemas.Escalation{ID: "esc-1", Status: schemas.EscalationResolved}, nil)

		w := ts.do(http.MethodPost, "/v1/escalations/esc-1/resolve", OperatorRequest{Actor: "bob", Reason: "done"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"resolved"`)
	})

	t.Run("already resolved is a conflict", func(t *testing.T) {
		ts := setupTestServer(t)
		ts.reassessment.On("ResolveEscalation", mock.Anything, "esc-1", "bob", "again").
			Return(nil, schemas.ErrAlreadyResolved)

		w := ts.do(http.MethodPost, "/v1/escalations/esc-1/resolve", OperatorRequest{Actor: "bob", Reason: "again"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, CodeAlreadyResolved, decodeError(t, w).Code)
	})

	t.Run("reason is required", func(t *testing.T) {
		ts := setupTestServer(t)
		w := ts.do(http.MethodPost, "/v1/escalations/esc-1/resolve", map[string]string{"actor": "bob"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
