package evaluation

import (
	"context"
	"errors"
	"testing"

	"voice-quiz-server/internal/domain/transcription"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type countingGrader struct {
	raw   string
	err   error
	calls int
	last  Request
}

func (g *countingGrader) Grade(_ context.Context, req Request) (string, error) {
	g.calls++
	g.last = req
	return g.raw, g.err
}

var question = TextContext{QuestionText: "What colour is the cat?", ExpectedAnswer: "orange"}

func spoken(text string) transcription.Result {
	return transcription.Result{Text: text}
}

func TestEvaluate_NoSpeechSkipsGrader(t *testing.T) {
	grader := &countingGrader{raw: `{"score": 99, "feedback": "x", "understanding_level": "excellent"}`}
	client := NewClient(grader, Options{})

	for _, tr := range []transcription.Result{
		{Text: transcription.NoSpeech, NoSpeech: true},
		{Text: transcription.NoSpeech},
		{Text: "anything", NoSpeech: true},
	} {
		got, err := client.Evaluate(context.Background(), tr, question)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got.Score != 0 || got.Level != LevelNotAttempted || got.Feedback == "" {
			t.Fatalf("expected not attempted, got %+v", got)
		}
	}
	if grader.calls != 0 {
		t.Fatalf("grader called %d times for no-speech transcripts", grader.calls)
	}
}

func TestEvaluate_Graded(t *testing.T) {
	grader := &countingGrader{raw: `{"score": 85, "feedback": "Nice detail.", "understanding_level": "good"}`}
	client := NewClient(grader, Options{})

	got, err := client.Evaluate(context.Background(), spoken("the cat is orange and fluffy"), question)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Score != 85 || got.Level != LevelGood || got.Fallback {
		t.Fatalf("unexpected result %+v", got)
	}
	if grader.calls != 1 || grader.last.Transcript != "the cat is orange and fluffy" {
		t.Fatalf("grader not called as expected: %d %+v", grader.calls, grader.last)
	}
}

func TestEvaluate_MalformedFallsBack(t *testing.T) {
	metrics := observability.NewMetrics()
	for _, raw := range []string{"", "not json", `{"score": 80}`, `{"feedback": "x"}`} {
		client := NewClient(&countingGrader{raw: raw}, Options{Metrics: metrics})
		got, err := client.Evaluate(context.Background(), spoken("an answer"), question)
		if err != nil {
			t.Fatalf("%q: expected fallback, got error %v", raw, err)
		}
		if got != FallbackResult() {
			t.Fatalf("%q: expected fallback, got %+v", raw, got)
		}
	}
	if n := testutil.ToFloat64(metrics.EvaluationFallback.WithLabelValues("parse_error")); n != 4 {
		t.Fatalf("expected 4 parse fallbacks, got %v", n)
	}
}

func TestEvaluate_ProviderErrors(t *testing.T) {
	t.Run("transient error falls back", func(t *testing.T) {
		client := NewClient(&countingGrader{err: errors.New("timeout")}, Options{})
		got, err := client.Evaluate(context.Background(), spoken("an answer"), question)
		if err != nil || got != FallbackResult() {
			t.Fatalf("expected fallback, got %+v %v", got, err)
		}
	})

	for _, sentinel := range []error{ErrAuth, ErrQuotaExceeded} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			client := NewClient(&countingGrader{err: sentinel}, Options{})
			_, err := client.Evaluate(context.Background(), spoken("an answer"), question)
			if !errors.Is(err, sentinel) {
				t.Fatalf("expected %v, got %v", sentinel, err)
			}
			if !perrors.IsKind(err, perrors.KindEvaluation) {
				t.Fatalf("expected evaluation kind, got %v", err)
			}
		})
	}
}

func TestEvaluate_InvalidContext(t *testing.T) {
	grader := &countingGrader{}
	client := NewClient(grader, Options{})

	for _, ec := range []Context{nil, TextContext{}, ImageContext{}} {
		if _, err := client.Evaluate(context.Background(), spoken("answer"), ec); !errors.Is(err, ErrInvalidContext) {
			t.Fatalf("%T: expected ErrInvalidContext, got %v", ec, err)
		}
	}
	if grader.calls != 0 {
		t.Fatal("grader should not be called")
	}
}
