package answers

import (
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/image"
)

// TranscribeData is the payload of a successful POST /transcribe.
type TranscribeData struct {
	Transcription string  `json:"transcription"`
	QuestionIndex int     `json:"questionIndex"`
	Duration      float64 `json:"duration,omitempty"`
	Language      string  `json:"language,omitempty"`
	NoSpeech      bool    `json:"noSpeech"`
	Reason        string  `json:"reason,omitempty"`
}

// EvaluateRequest is the JSON body of POST /evaluate. Image, when set,
// switches grading to the image context.
type EvaluateRequest struct {
	Transcription  string           `json:"transcription"`
	QuestionIndex  int              `json:"questionIndex"`
	QuestionText   string           `json:"questionText"`
	QuizTitle      string           `json:"quizTitle"`
	ExpectedAnswer string           `json:"expectedAnswer"`
	Image          *image.ImageData `json:"image,omitempty"`
	ImagePrompt    string           `json:"imagePrompt,omitempty"`
}

type EvaluateData struct {
	Evaluation    evaluation.Result `json:"evaluation"`
	QuestionIndex int               `json:"questionIndex"`
}
