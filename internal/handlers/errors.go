package handlers

import (
	"errors"
	"net/http"

	"luckydraw/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

type errorBody struct {
	Kind      services.Kind   `json:"kind"`
	Reason    services.Reason `json:"reason,omitempty"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
	RoundID   string          `json:"roundId,omitempty"`
	PrizeID   string          `json:"prizeId,omitempty"`
	Details   []string        `json:"details,omitempty"`
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindInvalidState, services.KindExhausted, services.KindEmpty, services.KindConflict:
		return http.StatusConflict
	case services.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body with the status of its kind.
func respondError(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorBody{Kind: "internal", Message: "internal error"}})
		return
	}

	status := statusFor(svcErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": errorBody{
		Kind:      svcErr.Kind,
		Reason:    svcErr.Reason,
		Message:   svcErr.Message(),
		Retryable: svcErr.Retryable(),
		RoundID:   svcErr.RoundID,
		PrizeID:   svcErr.PrizeID,
		Details:   svcErr.Details,
	}})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
		Kind:    services.KindInvalidInput,
		Reason:  services.ReasonValidation,
		Message: message,
	}})
}
