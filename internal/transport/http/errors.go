package http

import (
	"errors"
	"net/http"

	"fanfrenzy/internal/app"
	"fanfrenzy/internal/domain"
	"fanfrenzy/internal/engine"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func jsonError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// statusFor maps a use-case error onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, "sign in to continue"
	case errors.Is(err, domain.ErrContentNotFound):
		return http.StatusNotFound, "content not found"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "too many new games requested, try again in a minute"
	case errors.Is(err, engine.ErrTooFewItems):
		return http.StatusUnprocessableEntity, "this game has too few moments to play"
	case app.IsContentError(err):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "storage unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	body := ErrorResponse{Error: http.StatusText(status), Message: msg}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
		body.Message = verr.Message
	}
	c.AbortWithStatusJSON(status, body)
}
