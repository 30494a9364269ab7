// Package pipeline runs one question through capture, transcription and
// evaluation. A Pipeline is single use: retrying a question means building
// a new one.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"voice-quiz-server/internal/domain/capture"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/eventbus"
	"voice-quiz-server/internal/domain/transcription"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateEvaluating   State = "evaluating"
	StateDone         State = "done"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

const DefaultEvaluatingTimeout = 30 * time.Second

var ErrAlreadyRun = errors.New("pipeline already run")

// Transcriber is the transcription stage.
type Transcriber interface {
	Transcribe(ctx context.Context, rec capture.Recording, questionText string) (transcription.Result, error)
}

// Evaluator is the grading stage.
type Evaluator interface {
	Evaluate(ctx context.Context, transcript transcription.Result, ec evaluation.Context) (evaluation.Result, error)
}

// Question is what the learner is answering.
type Question struct {
	Index   int
	Text    string
	Context evaluation.Context
}

type Input struct {
	SessionID string
	QuizID    string
	Question  Question
	Source    capture.Source
}

// Outcome is the Done tuple. Evaluation is nil only when transcription
// failed or the grader was unusable; Err then holds the stage error.
type Outcome struct {
	QuestionIndex       int                   `json:"question_index"`
	Recording           capture.Recording     `json:"-"`
	Transcription       *transcription.Result `json:"transcription,omitempty"`
	Evaluation          *evaluation.Result    `json:"evaluation,omitempty"`
	TranscriptionStatus Status                `json:"transcription_status"`
	EvaluationStatus    Status                `json:"evaluation_status"`
	TimedOut            bool                  `json:"timed_out,omitempty"`
	Err                 error                 `json:"-"`
}

type Deps struct {
	Recorder          *capture.Recorder
	Transcriber       Transcriber
	Evaluator         Evaluator
	EvaluatingTimeout time.Duration
	Bus               *eventbus.Bus
	Metrics           *observability.Metrics
	Logger            *logging.Logger
	// OnDone is called once with the outcome, before Run returns.
	OnDone func(Outcome)
}

type Pipeline struct {
	deps Deps

	mu      sync.Mutex
	state   State
	capture *capture.Capture
	in      Input

	done    chan Outcome
	emitted bool
}

func New(deps Deps) *Pipeline {
	if deps.EvaluatingTimeout <= 0 {
		deps.EvaluatingTimeout = DefaultEvaluatingTimeout
	}
	return &Pipeline{
		deps:  deps,
		state: StateIdle,
		done:  make(chan Outcome, 1),
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done delivers the outcome once the pipeline reaches StateDone. It never
// fires when capture failed.
func (p *Pipeline) Done() <-chan Outcome {
	return p.done
}

// StopCapture ends the capture early. It is a no-op outside StateCapturing.
func (p *Pipeline) StopCapture() {
	p.mu.Lock()
	c := p.capture
	p.mu.Unlock()
	if c != nil {
		go func() { _, _ = c.Stop() }()
	}
}

// Run drives the question to Done. The returned error is reserved for
// failures that produce no outcome: a second Run or a capture error.
// Transcription and grading failures are reported inside the Outcome.
func (p *Pipeline) Run(ctx context.Context, in Input) (Outcome, error) {
	const op = "pipeline.Run"

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return Outcome{}, ErrAlreadyRun
	}
	p.in = in
	p.state = StateCapturing
	p.mu.Unlock()
	p.publishTransition(in, StateIdle, StateCapturing)

	rec, err := p.capturing(ctx, in)
	if err != nil {
		p.transition(StateDone)
		return Outcome{}, perrors.Wrap(perrors.KindCapture, op, "capture failed", err)
	}

	out := Outcome{QuestionIndex: in.Question.Index, Recording: rec}

	// Provider calls outlive a cancelled caller; a half-sent clip cannot be graded.
	netCtx := context.WithoutCancel(ctx)

	tr, err := p.transcribing(netCtx, rec, in.Question)
	if err != nil {
		out.TranscriptionStatus = StatusFailed
		out.EvaluationStatus = StatusSkipped
		out.Err = err
		return p.finish(out), nil
	}
	out.Transcription = &tr
	out.TranscriptionStatus = StatusCompleted

	result, timedOut, err := p.evaluating(netCtx, tr, in.Question)
	if err != nil {
		out.EvaluationStatus = StatusFailed
		out.Err = err
		return p.finish(out), nil
	}
	out.Evaluation = &result
	out.EvaluationStatus = StatusCompleted
	out.TimedOut = timedOut
	return p.finish(out), nil
}

func (p *Pipeline) capturing(ctx context.Context, in Input) (capture.Recording, error) {
	started := time.Now()

	c, err := p.deps.Recorder.Start(ctx, in.Question.Index, in.Source)
	if err != nil {
		p.deps.Metrics.ObserveStage("capture", "failed", time.Since(started))
		p.deps.Logger.WarnTag("Capture", "question %d: %v", in.Question.Index, err)
		return capture.Recording{}, err
	}

	p.mu.Lock()
	p.capture = c
	p.mu.Unlock()

	rec, err := c.Wait(ctx)

	p.mu.Lock()
	p.capture = nil
	p.mu.Unlock()

	if err != nil {
		p.deps.Metrics.ObserveStage("capture", "failed", time.Since(started))
		p.deps.Logger.WarnTag("Capture", "question %d: %v", in.Question.Index, err)
		return capture.Recording{}, err
	}
	p.deps.Metrics.ObserveStage("capture", "completed", time.Since(started))
	p.deps.Logger.DebugTag("Capture", "question %d: %d bytes in %.1fs", in.Question.Index, len(rec.Audio), rec.DurationSeconds)
	return rec, nil
}

func (p *Pipeline) transcribing(ctx context.Context, rec capture.Recording, q Question) (transcription.Result, error) {
	p.transition(StateTranscribing)
	return p.deps.Transcriber.Transcribe(ctx, rec, q.Text)
}

type graded struct {
	result evaluation.Result
	err    error
}

// evaluating grades tr, capped by EvaluatingTimeout. On expiry the fallback
// result is used and the in-flight call is left to finish on its own.
func (p *Pipeline) evaluating(ctx context.Context, tr transcription.Result, q Question) (evaluation.Result, bool, error) {
	p.transition(StateEvaluating)

	ch := make(chan graded, 1)
	go func() {
		result, err := p.deps.Evaluator.Evaluate(ctx, tr, q.Context)
		ch <- graded{result: result, err: err}
	}()

	timer := time.NewTimer(p.deps.EvaluatingTimeout)
	defer timer.Stop()

	select {
	case g := <-ch:
		return g.result, false, g.err
	case <-timer.C:
		p.deps.Metrics.Fallback("timeout")
		p.deps.Logger.WarnTag("Pipeline", "question %d: grading exceeded %s, using fallback", q.Index, p.deps.EvaluatingTimeout)
		return evaluation.FallbackResult(), true, nil
	}
}

func (p *Pipeline) finish(out Outcome) Outcome {
	p.transition(StateDone)

	p.mu.Lock()
	if p.emitted {
		p.mu.Unlock()
		return out
	}
	p.emitted = true
	in := p.in
	p.mu.Unlock()

	p.done <- out
	close(p.done)

	event := eventbus.PipelineDoneEvent{
		SessionID:           in.SessionID,
		QuizID:              in.QuizID,
		QuestionIndex:       out.QuestionIndex,
		TranscriptionStatus: string(out.TranscriptionStatus),
		EvaluationStatus:    string(out.EvaluationStatus),
		TimedOut:            out.TimedOut,
	}
	if out.Evaluation != nil {
		score := out.Evaluation.Score
		event.Score = &score
	}
	p.deps.Bus.PublishAsync(eventbus.TopicPipelineDone, event)

	if p.deps.OnDone != nil {
		p.deps.OnDone(out)
	}
	return out
}

func (p *Pipeline) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	in := p.in
	p.mu.Unlock()
	p.publishTransition(in, from, to)
}

func (p *Pipeline) publishTransition(in Input, from, to State) {
	p.deps.Bus.Publish(eventbus.TopicPipelineState, eventbus.PipelineStateEvent{
		SessionID:     in.SessionID,
		QuizID:        in.QuizID,
		QuestionIndex: in.Question.Index,
		From:          string(from),
		To:            string(to),
		At:            time.Now(),
	})
}
