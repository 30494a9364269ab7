package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"voice-quiz-server/internal/domain/capture"
	"voice-quiz-server/internal/domain/eventbus"
	"voice-quiz-server/internal/domain/pipeline"
	"voice-quiz-server/internal/domain/session"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

var (
	ErrQuestionPending = errors.New("a question is still being processed")
	ErrRunnerFinished  = errors.New("quiz attempt already finished")
)

// QuizServiceConfig holds the collaborators shared by every attempt.
type QuizServiceConfig struct {
	Transcriber       pipeline.Transcriber
	Evaluator         pipeline.Evaluator
	Sessions          *session.Service
	CaptureMax        time.Duration
	CaptureMaxBytes   int64
	CaptureMimeType   string
	EvaluatingTimeout time.Duration
	Bus               *eventbus.Bus
	Metrics           *observability.Metrics
	Logger            *logging.Logger
}

// QuizService builds QuizRunners.
type QuizService struct {
	cfg QuizServiceConfig
}

func NewQuizService(cfg QuizServiceConfig) *QuizService {
	return &QuizService{cfg: cfg}
}

// Sessions exposes the session state machine for handlers that only need it.
func (s *QuizService) Sessions() *session.Service {
	return s.cfg.Sessions
}

// NewPipeline builds a standalone single-question pipeline with its own
// recorder, for callers that do not track a whole attempt.
func (s *QuizService) NewPipeline() *pipeline.Pipeline {
	return s.pipeline(capture.NewRecorder(s.cfg.CaptureMax, s.cfg.CaptureMaxBytes, s.cfg.CaptureMimeType))
}

func (s *QuizService) pipeline(rec *capture.Recorder) *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Recorder:          rec,
		Transcriber:       s.cfg.Transcriber,
		Evaluator:         s.cfg.Evaluator,
		EvaluatingTimeout: s.cfg.EvaluatingTimeout,
		Bus:               s.cfg.Bus,
		Metrics:           s.cfg.Metrics,
		Logger:            s.cfg.Logger,
	})
}

// NewRunner prepares one attempt. Every runner owns its own recorder, so
// one learner's microphone never blocks another's.
func (s *QuizService) NewRunner(userID, quizID string, totalQuestions int) *QuizRunner {
	return &QuizRunner{
		svc:      s,
		cfg:      s.cfg,
		userID:   userID,
		quizID:   quizID,
		total:    totalQuestions,
		recorder: capture.NewRecorder(s.cfg.CaptureMax, s.cfg.CaptureMaxBytes, s.cfg.CaptureMimeType),
		results:  NewCollection(),
	}
}

// QuizRunner drives one learner through one quiz. It is the single writer
// of its Collection and is not safe for concurrent use.
type QuizRunner struct {
	svc       *QuizService
	cfg       QuizServiceConfig
	userID    string
	quizID    string
	sessionID string
	total     int
	recorder  *capture.Recorder
	results   *Collection
	running   bool
	finished  bool
}

// Start fetches or creates the in-progress session.
func (r *QuizRunner) Start(ctx context.Context) (session.GameSession, error) {
	gs, _, err := r.cfg.Sessions.GetOrCreate(ctx, r.userID, r.quizID)
	if err != nil {
		return session.GameSession{}, err
	}
	r.sessionID = gs.ID
	return gs, nil
}

func (r *QuizRunner) SessionID() string {
	return r.sessionID
}

func (r *QuizRunner) Results() *Collection {
	return r.results
}

// NewPipeline builds a fresh pipeline for one question. Callers that need
// to stop capture early keep the pipeline and pass it to RunQuestion.
func (r *QuizRunner) NewPipeline() *pipeline.Pipeline {
	return r.svc.pipeline(r.recorder)
}

// RunQuestion runs q to completion and records the result. A failed
// question is recorded as failed and does not stop the attempt. p may be
// nil.
func (r *QuizRunner) RunQuestion(ctx context.Context, p *pipeline.Pipeline, q pipeline.Question, source capture.Source) (pipeline.Outcome, error) {
	if r.finished {
		return pipeline.Outcome{}, ErrRunnerFinished
	}
	if r.running {
		return pipeline.Outcome{}, ErrQuestionPending
	}
	if p == nil {
		p = r.NewPipeline()
	}

	r.running = true
	defer func() { r.running = false }()

	out, err := p.Run(ctx, pipeline.Input{
		SessionID: r.sessionID,
		QuizID:    r.quizID,
		Question:  q,
		Source:    source,
	})
	if errors.Is(err, pipeline.ErrAlreadyRun) {
		return pipeline.Outcome{}, err
	}
	if err != nil {
		r.cfg.Logger.WarnTag("Runner", "quiz=%s q=%d capture failed: %v", r.quizID, q.Index, err)
		r.results.Fail(q.Index, err)
		return pipeline.Outcome{}, err
	}
	r.results.Put(out)
	return out, nil
}

// Finish completes the session with everything collected so far.
func (r *QuizRunner) Finish(ctx context.Context) (session.GameSession, error) {
	if r.finished {
		return session.GameSession{}, ErrRunnerFinished
	}
	if r.running {
		return session.GameSession{}, ErrQuestionPending
	}

	total := r.total
	if total <= 0 {
		total = r.results.Len()
	}
	gs, err := r.cfg.Sessions.Complete(ctx, session.CompleteRequest{
		SessionID:      r.sessionID,
		UserID:         r.userID,
		QuizID:         r.quizID,
		Recordings:     r.results.Payloads(),
		TotalQuestions: total,
	})
	if err != nil {
		return session.GameSession{}, fmt.Errorf("complete quiz %s: %w", r.quizID, err)
	}
	r.finished = true
	r.sessionID = gs.ID
	return gs, nil
}

// Collection holds the per-question results of one attempt, keyed by
// question index. A later result for the same index replaces the earlier
// one, which is how a re-recorded question is handled.
type Collection struct {
	outcomes map[int]pipeline.Outcome
	failures map[int]error
}

func NewCollection() *Collection {
	return &Collection{
		outcomes: make(map[int]pipeline.Outcome),
		failures: make(map[int]error),
	}
}

func (c *Collection) Put(out pipeline.Outcome) {
	delete(c.failures, out.QuestionIndex)
	c.outcomes[out.QuestionIndex] = out
}

func (c *Collection) Fail(index int, err error) {
	delete(c.outcomes, index)
	c.failures[index] = err
}

func (c *Collection) Outcome(index int) (pipeline.Outcome, bool) {
	out, ok := c.outcomes[index]
	return out, ok
}

func (c *Collection) Len() int {
	return len(c.outcomes) + len(c.failures)
}

// Payloads converts the collection into persisted recordings.
func (c *Collection) Payloads() map[int]session.RecordingPayload {
	out := make(map[int]session.RecordingPayload, c.Len())
	for idx, o := range c.outcomes {
		p := session.RecordingPayload{
			AudioBase64:         base64.StdEncoding.EncodeToString(o.Recording.Audio),
			MimeType:            o.Recording.MimeType,
			DurationSeconds:     o.Recording.DurationSeconds,
			FileSize:            len(o.Recording.Audio),
			RecordedAt:          o.Recording.CapturedAt,
			TranscriptionStatus: string(o.TranscriptionStatus),
			EvaluationStatus:    string(o.EvaluationStatus),
		}
		if o.Transcription != nil {
			p.Transcription = o.Transcription.Text
		}
		if o.Evaluation != nil {
			ev := *o.Evaluation
			p.Evaluation = &ev
		}
		out[idx] = p
	}
	for idx := range c.failures {
		out[idx] = session.RecordingPayload{
			TranscriptionStatus: string(pipeline.StatusFailed),
			EvaluationStatus:    string(pipeline.StatusSkipped),
		}
	}
	return out
}
