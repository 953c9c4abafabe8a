package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fluid-gateway/internal/actions"
	"fluid-gateway/internal/chain"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/wallet"
)

var errUnavailable = errors.New("component not configured")

// statusFor maps domain errors to HTTP status codes, using fallback for
// anything unrecognised.
func statusFor(err error, fallback int) int {
	var txErr *actions.TransactionFailedError
	switch {
	case errors.Is(err, actions.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, wallet.ErrReadOnly), errors.Is(err, actions.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, actions.ErrAlreadyClaimed), errors.Is(err, actions.ErrActionInProgress):
		return http.StatusConflict
	case errors.Is(err, actions.ErrBelowMinimum),
		errors.Is(err, actions.ErrUnsupportedToken),
		errors.Is(err, actions.ErrInvalidAmount),
		errors.Is(err, actions.ErrWrongChain),
		errors.Is(err, chain.ErrUnsupportedChain),
		errors.Is(err, wallet.ErrInvalidAddress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, history.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnavailable),
		errors.Is(err, chain.ErrContractNotConfigured),
		errors.Is(err, chain.ErrRPCNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &txErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return fallback
}

func (s *Server) fail(c *gin.Context, err error, fallback int) {
	status := statusFor(err, fallback)
	body := gin.H{"error": err.Error()}

	var txErr *actions.TransactionFailedError
	if errors.As(err, &txErr) && txErr.Hash != "" {
		body["hash"] = txErr.Hash
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("route", c.FullPath()).Int("status", status).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func unprocessable(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}
