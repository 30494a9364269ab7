// Package transcription turns one captured clip into trusted text. Provider
// output passes a validity filter; anything that fails it becomes NoSpeech.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-quiz-server/internal/domain/capture"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

var (
	ErrEmptyClip       = errors.New("audio clip is empty")
	ErrPayloadTooLarge = errors.New("audio clip too large")
	ErrAuth            = errors.New("transcription provider rejected credentials")
	ErrQuotaExceeded   = errors.New("transcription provider quota exceeded")
	ErrUnknown         = errors.New("transcription failed")
)

// Request is what a Provider receives.
type Request struct {
	Audio       []byte
	MimeType    string
	FileName    string
	ContextHint string
}

// Response is the raw provider answer, before filtering.
type Response struct {
	Text            string
	Language        string
	DurationSeconds float64
}

// Provider is a speech-to-text capability. Implementations classify their
// failures with ErrAuth, ErrQuotaExceeded, ErrPayloadTooLarge or ErrUnknown.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (Response, error)
}

// Result is the filtered transcript. Text is never empty: a rejected
// transcript carries NoSpeech and the rejection reason.
type Result struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	NoSpeech        bool    `json:"no_speech"`
	Reason          string  `json:"reason,omitempty"`
}

// IsNoSpeech reports whether r stands for "nothing usable was said".
func (r Result) IsNoSpeech() bool {
	return r.NoSpeech || r.Text == NoSpeech
}

type Options struct {
	MaxBytes int64
	MinChars int
	Logger   *logging.Logger
	Metrics  *observability.Metrics
}

type Client struct {
	provider Provider
	opts     Options
}

func NewClient(provider Provider, opts Options) *Client {
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	return &Client{provider: provider, opts: opts}
}

// ContextHint embeds the question into the instruction sent with the clip.
func ContextHint(questionText string) string {
	return fmt.Sprintf("This is a voice recording answering a quiz question about: \"%s\". Please transcribe the user's spoken response accurately.", questionText)
}

// Transcribe sends rec to the provider with the question as a context hint
// and filters the answer. Provider failures are terminal for the question.
func (c *Client) Transcribe(ctx context.Context, rec capture.Recording, questionText string) (Result, error) {
	const op = "transcription.Transcribe"

	if len(rec.Audio) == 0 {
		return Result{}, perrors.Wrap(perrors.KindTranscription, op, "empty clip", ErrEmptyClip)
	}
	if c.opts.MaxBytes > 0 && int64(len(rec.Audio)) > c.opts.MaxBytes {
		return Result{}, perrors.Wrap(perrors.KindTranscription, op,
			fmt.Sprintf("clip is %d bytes, limit %d", len(rec.Audio), c.opts.MaxBytes), ErrPayloadTooLarge)
	}

	mimeType := DetectMimeType(rec.Audio, rec.MimeType)
	hint := ContextHint(questionText)
	started := time.Now()

	resp, err := c.provider.Transcribe(ctx, Request{
		Audio:       rec.Audio,
		MimeType:    mimeType,
		FileName:    FileName(rec.QuestionIndex, mimeType),
		ContextHint: hint,
	})
	if err != nil {
		c.opts.Metrics.ObserveStage("transcribe", "failed", time.Since(started))
		c.opts.Logger.WarnTag("ASR", "question %d: transcription failed: %v", rec.QuestionIndex, err)
		return Result{}, perrors.Wrap(perrors.KindTranscription, op, "provider error", classify(err))
	}
	c.opts.Metrics.ObserveStage("transcribe", "completed", time.Since(started))

	result := Result{
		Text:            resp.Text,
		Language:        resp.Language,
		DurationSeconds: resp.DurationSeconds,
	}
	if ok, reason := Validate(resp.Text, questionText, c.opts.MinChars); !ok {
		c.opts.Metrics.RejectTranscript(reason)
		c.opts.Logger.InfoTag("ASR", "question %d: transcript %q rejected (%s)", rec.QuestionIndex, resp.Text, reason)
		result.Text = NoSpeech
		result.NoSpeech = true
		result.Reason = reason
		return result, nil
	}
	c.opts.Logger.DebugTag("ASR", "question %d: transcript %q", rec.QuestionIndex, resp.Text)
	return result, nil
}

// classify makes sure every provider error carries one of the package kinds.
func classify(err error) error {
	for _, known := range []error{ErrAuth, ErrQuotaExceeded, ErrPayloadTooLarge, ErrUnknown} {
		if errors.Is(err, known) {
			return err
		}
	}
	return errors.Join(ErrUnknown, err)
}
