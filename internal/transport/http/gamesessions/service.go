// Package gamesessions exposes the session state machine: start, complete,
// fetch and history of quiz attempts.
package gamesessions

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voice-quiz-server/internal/domain/session"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/logging"
	httptransport "voice-quiz-server/internal/transport/http"
)

type Service struct {
	logger   *logging.Logger
	sessions *session.Service
	now      func() time.Time
}

func NewService(logger *logging.Logger, sessions *session.Service) (*Service, error) {
	if sessions == nil {
		return nil, perrors.New(perrors.KindConfig, "gamesessions.new", "session service is required")
	}
	return &Service{logger: logger, sessions: sessions, now: time.Now}, nil
}

// Register mounts the routes on a group that sets the learner id.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/game-sessions", s.handlePost)
	router.GET("/game-sessions", s.handleList)
	router.GET("/game-sessions/:id", s.handleGet)
	s.logger.InfoTag("HTTP", "game session routes registered")
	return nil
}

func (s *Service) handlePost(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.QuizID == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "Quiz ID is required", nil)
		return
	}
	userID := httptransport.UserID(c)

	if !req.IsCompleted {
		gs, created, err := s.sessions.GetOrCreate(c.Request.Context(), userID, req.QuizID)
		if err != nil {
			httptransport.RespondDomainError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		httptransport.RespondSuccess(c, status, gs, "")
		return
	}

	recordings, err := s.recordings(req.Recordings)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	gs, err := s.sessions.Complete(c.Request.Context(), session.CompleteRequest{
		SessionID:      req.SessionID,
		UserID:         userID,
		QuizID:         req.QuizID,
		Recordings:     recordings,
		TotalQuestions: req.TotalQuestions,
	})
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	s.logger.InfoTag("HTTP", "session %s completed by %s", gs.ID, userID)
	httptransport.RespondSuccess(c, http.StatusOK, gs, "")
}

func (s *Service) handleGet(c *gin.Context) {
	gs, err := s.sessions.Get(c.Request.Context(), c.Param("id"), httptransport.UserID(c))
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gs, "")
}

func (s *Service) handleList(c *gin.Context) {
	list, err := s.sessions.History(c.Request.Context(), httptransport.UserID(c))
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	out := make([]session.GameSession, 0, len(list))
	for _, gs := range list {
		out = append(out, stripAudio(gs))
	}
	httptransport.RespondSuccess(c, http.StatusOK, out, "")
}

func (s *Service) recordings(in map[string]RecordingRequest) (map[int]session.RecordingPayload, error) {
	out := make(map[int]session.RecordingPayload, len(in))
	for key, rec := range in {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, &badIndexError{key: key}
		}
		payload := session.RecordingPayload{
			AudioBase64:     rec.Base64Audio,
			MimeType:        rec.MimeType,
			DurationSeconds: rec.Duration,
			Transcription:   rec.Transcription,
			RecordedAt:      s.now(),
		}
		if rec.RecordedAt != nil {
			payload.RecordedAt = *rec.RecordedAt
		}
		if rec.Evaluation != nil {
			ev := rec.Evaluation.result()
			payload.Evaluation = &ev
		}
		out[idx] = payload
	}
	return out, nil
}

type badIndexError struct{ key string }

func (e *badIndexError) Error() string {
	return "invalid question index " + strconv.Quote(e.key)
}
