package gamesessions

import (
	"math"
	"time"

	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/session"
)

// SessionRequest is the body of POST /game-sessions. Without IsCompleted it
// starts (or resumes) the attempt; with it the attempt is completed.
type SessionRequest struct {
	QuizID         string                      `json:"quizId"`
	SessionID      string                      `json:"sessionId,omitempty"`
	IsCompleted    bool                        `json:"isCompleted"`
	TotalQuestions int                         `json:"totalQuestions,omitempty"`
	Recordings     map[string]RecordingRequest `json:"recordings,omitempty"`
}

type RecordingRequest struct {
	Base64Audio   string        `json:"base64Audio"`
	MimeType      string        `json:"mimeType"`
	Duration      float64       `json:"duration"`
	Transcription string        `json:"transcription"`
	Evaluation    *GradeRequest `json:"evaluation,omitempty"`
	RecordedAt    *time.Time    `json:"recordedAt,omitempty"`
}

// GradeRequest accepts fractional scores; they are rounded and clamped
// before aggregation.
type GradeRequest struct {
	Score              float64 `json:"score"`
	Feedback           string  `json:"feedback"`
	UnderstandingLevel string  `json:"understanding_level"`
}

func (g GradeRequest) result() evaluation.Result {
	return evaluation.Result{
		Score:    roundScore(g.Score),
		Level:    evaluation.Level(g.UnderstandingLevel),
		Feedback: g.Feedback,
	}
}

// stripAudio drops clip bytes from history listings.
func stripAudio(gs session.GameSession) session.GameSession {
	if len(gs.Recordings) == 0 {
		return gs
	}
	recs := make(map[int]session.RecordingPayload, len(gs.Recordings))
	for idx, rec := range gs.Recordings {
		rec.AudioBase64 = ""
		recs[idx] = rec
	}
	gs.Recordings = recs
	return gs
}

func roundScore(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
