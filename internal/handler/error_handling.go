package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lips-server/internal/ai"
	"lips-server/internal/models"
)

// handleServiceError транслирует ошибки сервиса в HTTP статусы:
// валидация - 400, авторизация - 403, не найдено - 404,
// нарушение предусловия - 409, сбой AI - 502, остальное - 500.
func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrSeedTextRequired):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrNotSessionHost),
		errors.Is(err, models.ErrNotSessionParticipant),
		errors.Is(err, models.ErrInvitationNotAccepted):
		statusCode = http.StatusForbidden
		errResp = ErrorResponse{Code: ErrCodeForbidden, Message: err.Error()}
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrTurnNotFound),
		errors.Is(err, models.ErrVaultNotFound),
		errors.Is(err, models.ErrParticipantNotFound),
		errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrNoAcceptedParticipants),
		errors.Is(err, models.ErrSessionNotActive),
		errors.Is(err, models.ErrTurnNotSubmittable),
		errors.Is(err, models.ErrTurnAlreadyResolved):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodePrecondition, Message: err.Error()}
	case errors.Is(err, ai.ErrAIGenerationFailed):
		statusCode = http.StatusBadGateway
		errResp = ErrorResponse{Code: ErrCodeAIUpstream, Message: "AI provider failed to generate text"}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
