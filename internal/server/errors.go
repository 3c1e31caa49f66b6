package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeNotYetComputed    = "NOT_YET_COMPUTED"
	CodeAlreadyCompleted  = "ALREADY_COMPLETED"
	CodeAlreadyResolved   = "ALREADY_RESOLVED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
)

// statusFor maps the error taxonomy onto an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, schemas.ErrValidation):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, schemas.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, schemas.ErrAlreadyCompleted):
		return http.StatusConflict, CodeAlreadyCompleted
	case errors.Is(err, schemas.ErrAlreadyResolved):
		return http.StatusConflict, CodeAlreadyResolved
	case errors.Is(err, schemas.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, schemas.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, schemas.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case schemas.IsRetryable(err):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError logs and renders err. Internal errors hide their detail.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError:
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	default:
		s.logger.Debug("Request rejected", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// writeBindError renders a request binding failure as a 400.
func writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: describeBindError(err),
		Code:  CodeInvalidRequest,
	})
}

// describeBindError turns validator failures into "field: rule" messages.
func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
