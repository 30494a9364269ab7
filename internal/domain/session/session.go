// Package session tracks one learner's attempt at one quiz from start to
// completion. At most one attempt per (user, quiz) is in progress at a time.
package session

import (
	"errors"
	"time"

	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/summary"
)

type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

var (
	ErrNotFound         = errors.New("game session not found")
	ErrActiveExists     = errors.New("an in-progress session already exists for this user and quiz")
	ErrAlreadyCompleted = errors.New("game session already completed")
	ErrInvalidRequest   = errors.New("invalid session request")
	ErrForbidden        = errors.New("game session belongs to another user")
)

// RecordingPayload is the persisted form of one answered question.
type RecordingPayload struct {
	AudioBase64         string             `json:"audio_data,omitempty"`
	MimeType            string             `json:"mime_type,omitempty"`
	DurationSeconds     float64            `json:"duration"`
	FileSize            int                `json:"file_size"`
	RecordedAt          time.Time          `json:"recorded_at"`
	Transcription       string             `json:"transcription,omitempty"`
	TranscriptionStatus string             `json:"transcription_status"`
	Evaluation          *evaluation.Result `json:"evaluation,omitempty"`
	EvaluationStatus    string             `json:"evaluation_status,omitempty"`
}

type GameSession struct {
	ID          string                   `json:"id"`
	UserID      string                   `json:"user_id"`
	QuizID      string                   `json:"quiz_id"`
	State       State                    `json:"state"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Recordings  map[int]RecordingPayload `json:"recordings,omitempty"`
	Summary     *summary.Summary         `json:"evaluation_summary"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

func (s GameSession) pairKey() string {
	return pairKey(s.UserID, s.QuizID)
}

func pairKey(userID, quizID string) string {
	return userID + "|" + quizID
}
