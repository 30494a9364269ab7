// Package evaluation grades one transcript against its question context.
//
// Grading is advisory: a malformed or failed grader answer becomes the
// fixed FallbackResult. Only credential and quota failures propagate,
// because they mean no further question can be graded either.
package evaluation

import (
	"context"
	"errors"
	"time"

	"voice-quiz-server/internal/domain/transcription"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

var (
	ErrAuth           = errors.New("grading provider rejected credentials")
	ErrQuotaExceeded  = errors.New("grading provider quota exceeded")
	ErrMalformedGrade = errors.New("malformed grading response")
	ErrInvalidContext = errors.New("invalid evaluation context")
)

const (
	NotAttemptedFeedback = "No spoken answer was detected for this question. Try recording again and speak clearly into the microphone."
	FallbackScore        = 50
	FallbackFeedback     = "Thanks for your answer! We couldn't grade it in detail this time, but keep practicing and explaining your thinking out loud."
)

// Context is what a transcript is graded against: TextContext or ImageContext.
type Context interface {
	Kind() string
	validate() error
}

type TextContext struct {
	QuestionText   string `json:"question_text"`
	ExpectedAnswer string `json:"expected_answer"`
}

func (TextContext) Kind() string { return "text" }

func (c TextContext) validate() error {
	if c.QuestionText == "" && c.ExpectedAnswer == "" {
		return errors.Join(ErrInvalidContext, errors.New("question text or expected answer required"))
	}
	return nil
}

// ImageContext grades against an image. ImageReference is an http(s) URL or a
// data: URI.
type ImageContext struct {
	ImageReference string `json:"image_reference"`
	Prompt         string `json:"prompt,omitempty"`
}

func (ImageContext) Kind() string { return "image" }

func (c ImageContext) validate() error {
	if c.ImageReference == "" {
		return errors.Join(ErrInvalidContext, errors.New("image reference required"))
	}
	return nil
}

// Request is what a Grader receives.
type Request struct {
	Transcript string
	Context    Context
}

// Grader returns the raw grading text. Implementations classify credential
// and quota failures with ErrAuth and ErrQuotaExceeded.
type Grader interface {
	Grade(ctx context.Context, req Request) (string, error)
}

// Result is one graded answer. Score is always within [0,100].
type Result struct {
	Score    int    `json:"score"`
	Level    Level  `json:"understanding_level"`
	Feedback string `json:"feedback"`
	Fallback bool   `json:"fallback,omitempty"`
}

// NotAttemptedResult is returned for the no-speech sentinel.
func NotAttemptedResult() Result {
	return Result{Score: 0, Level: LevelNotAttempted, Feedback: NotAttemptedFeedback}
}

// FallbackResult replaces a grading answer that could not be used.
func FallbackResult() Result {
	return Result{Score: FallbackScore, Level: LevelFair, Feedback: FallbackFeedback, Fallback: true}
}

type Options struct {
	Logger  *logging.Logger
	Metrics *observability.Metrics
}

type Client struct {
	grader Grader
	opts   Options
}

func NewClient(grader Grader, opts Options) *Client {
	return &Client{grader: grader, opts: opts}
}

// Evaluate grades transcript. A no-speech transcript returns
// NotAttemptedResult without calling the grader.
func (c *Client) Evaluate(ctx context.Context, transcript transcription.Result, ec Context) (Result, error) {
	const op = "evaluation.Evaluate"

	if transcript.IsNoSpeech() || transcript.Text == "" {
		c.opts.Logger.DebugTag("Grader", "no speech, skipping grader")
		return NotAttemptedResult(), nil
	}
	if ec == nil {
		return Result{}, perrors.Wrap(perrors.KindEvaluation, op, "missing context", ErrInvalidContext)
	}
	if err := ec.validate(); err != nil {
		return Result{}, perrors.Wrap(perrors.KindEvaluation, op, ec.Kind()+" context", err)
	}

	started := time.Now()
	raw, err := c.grader.Grade(ctx, Request{Transcript: transcript.Text, Context: ec})
	if err != nil {
		if errors.Is(err, ErrAuth) || errors.Is(err, ErrQuotaExceeded) {
			c.opts.Metrics.ObserveStage("evaluate", "failed", time.Since(started))
			c.opts.Logger.ErrorTag("Grader", "grading unavailable: %v", err)
			return Result{}, perrors.Wrap(perrors.KindEvaluation, op, "grader unavailable", err)
		}
		c.opts.Metrics.ObserveStage("evaluate", "fallback", time.Since(started))
		c.opts.Metrics.Fallback("provider_error")
		c.opts.Logger.WarnTag("Grader", "grader call failed, using fallback: %v", err)
		return FallbackResult(), nil
	}

	result, err := ParseGrade(raw)
	if err != nil {
		c.opts.Metrics.ObserveStage("evaluate", "fallback", time.Since(started))
		c.opts.Metrics.Fallback("parse_error")
		c.opts.Logger.WarnTag("Grader", "unparseable grade %q: %v", raw, err)
		return FallbackResult(), nil
	}

	c.opts.Metrics.ObserveStage("evaluate", "completed", time.Since(started))
	c.opts.Logger.DebugTag("Grader", "graded %d (%s)", result.Score, result.Level)
	return result, nil
}
