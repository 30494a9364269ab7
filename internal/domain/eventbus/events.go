package eventbus

import "time"

const (
	TopicPipelineState = "pipeline:state"
	TopicPipelineDone  = "pipeline:done"
	TopicSessionStart  = "session:started"
	TopicSessionDone   = "session:completed"
)

// PipelineStateEvent is published on every question pipeline transition.
type PipelineStateEvent struct {
	SessionID     string    `json:"session_id,omitempty"`
	QuizID        string    `json:"quiz_id,omitempty"`
	QuestionIndex int       `json:"question_index"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	At            time.Time `json:"at"`
}

// PipelineDoneEvent is published once when a question pipeline finishes.
type PipelineDoneEvent struct {
	SessionID           string `json:"session_id,omitempty"`
	QuizID              string `json:"quiz_id,omitempty"`
	QuestionIndex       int    `json:"question_index"`
	TranscriptionStatus string `json:"transcription_status"`
	EvaluationStatus    string `json:"evaluation_status"`
	Score               *int   `json:"score,omitempty"`
	TimedOut            bool   `json:"timed_out,omitempty"`
}

// SessionEvent is published when a game session starts or completes.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	QuizID    string    `json:"quiz_id"`
	State     string    `json:"state"`
	Category  string    `json:"category,omitempty"`
	Average   int       `json:"average_score,omitempty"`
	At        time.Time `json:"at"`
}
