package transcription

import (
	"context"
	"errors"
	"testing"

	"voice-quiz-server/internal/domain/capture"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeProvider struct {
	resp  Response
	err   error
	calls int
	last  Request
}

func (f *fakeProvider) Transcribe(_ context.Context, req Request) (Response, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func clip(audio string) capture.Recording {
	return capture.Recording{QuestionIndex: 1, Audio: []byte(audio), MimeType: "audio/webm;codecs=opus"}
}

func TestClient_Transcribe(t *testing.T) {
	provider := &fakeProvider{resp: Response{Text: " The cat is orange ", Language: "english", DurationSeconds: 2.5}}
	client := NewClient(provider, Options{MaxBytes: 1024})

	got, err := client.Transcribe(context.Background(), clip("audio-bytes"), "What colour is the cat?")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.NoSpeech || got.Text != " The cat is orange " {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Language != "english" || got.DurationSeconds != 2.5 {
		t.Fatalf("metadata lost: %+v", got)
	}
	if provider.last.MimeType != "audio/webm" || provider.last.FileName != "question_1.webm" {
		t.Fatalf("unexpected request %+v", provider.last)
	}
	if provider.last.ContextHint != ContextHint("What colour is the cat?") {
		t.Fatalf("hint not forwarded: %q", provider.last.ContextHint)
	}
}

func TestClient_InvalidTranscriptBecomesSentinel(t *testing.T) {
	metrics := observability.NewMetrics()
	for _, text := range []string{"", "   ", "...", "Thanks for watching!", "you", "a"} {
		provider := &fakeProvider{resp: Response{Text: text}}
		client := NewClient(provider, Options{Metrics: metrics})

		got, err := client.Transcribe(context.Background(), clip("x"), "q")
		if err != nil {
			t.Fatalf("%q: unexpected error %v", text, err)
		}
		if got.Text != NoSpeech || !got.NoSpeech || !got.IsNoSpeech() {
			t.Fatalf("%q: expected sentinel, got %+v", text, got)
		}
		if got.Reason == "" {
			t.Fatalf("%q: missing reason", text)
		}
	}
	if n := testutil.ToFloat64(metrics.TranscriptRejected.WithLabelValues(ReasonEmpty)); n != 2 {
		t.Fatalf("expected 2 empty rejections, got %v", n)
	}
}

func TestClient_InputChecks(t *testing.T) {
	provider := &fakeProvider{resp: Response{Text: "hello there"}}
	client := NewClient(provider, Options{MaxBytes: 4})

	_, err := client.Transcribe(context.Background(), clip(""), "q")
	if !errors.Is(err, ErrEmptyClip) {
		t.Fatalf("expected ErrEmptyClip, got %v", err)
	}
	_, err = client.Transcribe(context.Background(), clip("too large"), "q")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if !perrors.IsKind(err, perrors.KindTranscription) {
		t.Fatalf("expected transcription kind, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider should not be called, got %d calls", provider.calls)
	}
}

func TestClient_ProviderErrorsStayDistinct(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"auth", ErrAuth, ErrAuth},
		{"quota", ErrQuotaExceeded, ErrQuotaExceeded},
		{"too large", ErrPayloadTooLarge, ErrPayloadTooLarge},
		{"other", errors.New("connection reset"), ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&fakeProvider{err: tt.err}, Options{})
			_, err := client.Transcribe(context.Background(), clip("x"), "q")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDetectMimeType(t *testing.T) {
	webm := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0xF7, 0x81, 0x01, 0x42, 0xF2, 0x81, 0x04, 0x42, 0xF3, 0x81, 0x08, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'}

	if got := DetectMimeType(nil, "audio/ogg; codecs=opus"); got != "audio/ogg" {
		t.Fatalf("declared audio type should win, got %q", got)
	}
	if got := DetectMimeType(webm, ""); got != "audio/webm" {
		t.Fatalf("expected sniffed webm, got %q", got)
	}
	if got := DetectMimeType([]byte("plain"), ""); got != "audio/webm" {
		t.Fatalf("expected default, got %q", got)
	}
	if got := FileName(3, "audio/mpeg"); got != "question_3.mp3" {
		t.Fatalf("unexpected file name %q", got)
	}
}
