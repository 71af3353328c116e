package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/model"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		ve  *model.ValidationError
		ext *model.ExternalServiceError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, kanban.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kanban.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &ext):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(code, gin.H{"error": msg})
}
