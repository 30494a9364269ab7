package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-quiz-server/internal/domain/auth"
	"voice-quiz-server/internal/domain/capture"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/image"
	"voice-quiz-server/internal/domain/session"
	"voice-quiz-server/internal/domain/transcription"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondDomainError maps a domain error to its HTTP status and aborts.
func RespondDomainError(c *gin.Context, err error) {
	status, message := StatusFor(err)
	_ = c.Error(err)
	RespondError(c, status, message, nil)
	c.Abort()
}

// StatusFor picks the HTTP status and client message for err.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, transcription.ErrAuth), errors.Is(err, evaluation.ErrAuth):
		return http.StatusUnauthorized, "invalid OpenAI API key"
	case errors.Is(err, transcription.ErrQuotaExceeded), errors.Is(err, evaluation.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "OpenAI API quota exceeded"
	case errors.Is(err, transcription.ErrPayloadTooLarge), errors.Is(err, capture.ErrClipTooLarge):
		return http.StatusRequestEntityTooLarge, "audio file too large"
	case errors.Is(err, transcription.ErrEmptyClip), errors.Is(err, capture.ErrNoAudio):
		return http.StatusBadRequest, "no audio provided"
	case errors.Is(err, evaluation.ErrInvalidContext), errors.Is(err, image.ErrInvalidImage),
		errors.Is(err, session.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "session belongs to another user"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "game session not found"
	case errors.Is(err, session.ErrAlreadyCompleted):
		return http.StatusConflict, "game session already completed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
