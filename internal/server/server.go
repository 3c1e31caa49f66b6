package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/observability"
	"github.com/xkilldash9x/trustscore/internal/reassessment"
)

// Runs completes and reads assessment runs.
type Runs interface {
	CompleteRun(ctx context.Context, runID string, answers []schemas.Answer) (*schemas.CompletionResult, error)
	GetRun(ctx context.Context, runID string) (*schemas.Run, error)
}

// Health serves and recomputes organisation health snapshots.
type Health interface {
	Get(ctx context.Context, orgID string) (*schemas.HealthView, error)
	RecomputeOnDemand(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error)
}

// Reassessment manages policies, sweeps and escalations.
type Reassessment interface {
	ListPolicies(ctx context.Context, orgID string, assessmentType *schemas.AssessmentType) ([]schemas.ReassessmentPolicy, error)
	Upsert(ctx context.Context, req reassessment.UpsertRequest) (*schemas.ReassessmentPolicy, error)
	SweepExpiry(ctx context.Context, actor, reason string) (*schemas.SweepResult, error)
	ResolveEscalation(ctx context.Context, escalationID, actor, reason string) (*schemas.Escalation, error)
}

// Server is the HTTP API.
type Server struct {
	runs         Runs
	health       Health
	reassessment Reassessment
	cfg          config.ServerConfig
	version      string
	logger       *zap.Logger
	router       *gin.Engine
	httpServer   *http.Server
}

// New builds the router. Call Start to listen.
func New(runs Runs, health Health, reassess Reassessment, cfg config.ServerConfig, version string, logger *zap.Logger) *Server {
	s := &Server{
		runs:         runs,
		health:       health,
		reassessment: reassess,
		cfg:          cfg,
		version:      version,
		logger:       logger.Named("server"),
	}

	router := gin.New()
	router.Use(s.requestLogger(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("Handler panicked", zap.Any("panic", recovered), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal})
	}))

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/loglevel", gin.WrapH(observability.LevelHandler()))
	router.PUT("/loglevel", gin.WrapH(observability.LevelHandler()))

	v1 := router.Group("/v1")
	v1.POST("/runs/:id/complete", s.handleCompleteRun)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.GET("/orgs/:org_id/health", s.handleGetHealth)
	v1.POST("/orgs/:org_id/health/recompute", s.handleRecomputeHealth)
	v1.GET("/orgs/:org_id/policies", s.handleListPolicies)
	v1.POST("/policies", s.handleUpsertPolicy)
	v1.POST("/sweeps/expiry", s.handleSweepExpiry)
	v1.POST("/escalations/:id/resolve", s.handleResolveEscalation)

	s.router = router
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until the server is shut down. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		s.logger.Info("Request handled",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleCompleteRun(c *gin.Context) {
	var req CompleteRunRequest
	// An empty body, chunked or not, means "score the stored answers".
	if c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBindError(c, err)
			return
		}
	}

	result, err := s.runs.CompleteRun(c.Request.Context(), c.Param("id"), req.Answers)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleGetHealth(c *gin.Context) {
	view, err := s.health.Get(c.Request.Context(), c.Param("org_id"))
	if errors.Is(err, schemas.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
			Error: "health not yet computed for organisation " + c.Param("org_id"),
			Code:  CodeNotYetComputed,
		})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleRecomputeHealth(c *gin.Context) {
	snap, err := s.health.RecomputeOnDemand(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleListPolicies(c *gin.Context) {
	var q PoliciesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	var filter *schemas.AssessmentType
	if q.Type != "" {
		t := schemas.AssessmentType(q.Type)
		filter = &t
	}

	policies, err := s.reassessment.ListPolicies(c.Request.Context(), c.Param("org_id"), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if policies == nil {
		policies = []schemas.ReassessmentPolicy{}
	}
	c.JSON(http.StatusOK, PoliciesResponse{Policies: policies})
}

func (s *Server) handleUpsertPolicy(c *gin.Context) {
	var req UpsertPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	policy, err := s.reassessment.Upsert(c.Request.Context(), reassessment.UpsertRequest{
		OrgID:           req.OrgID,
		TargetID:        req.TargetID,
		AssessmentType:  schemas.AssessmentType(req.AssessmentType),
		FrequencyDays:   req.FrequencyDays,
		LastCompletedAt: req.LastCompletedAt,
		Actor:           req.Actor,
		Reason:          req.Reason,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (s *Server) handleSweepExpiry(c *gin.Context) {
	var req OperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	result, err := s.reassessment.SweepExpiry(c.Request.Context(), req.Actor, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleResolveEscalation(c *gin.Context) {
	var req OperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	esc, err := s.reassessment.ResolveEscalation(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}
