package evaluation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const completion = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\": 77, \"feedback\": \"Solid.\", \"understanding_level\": \"good\"}"},"finish_reason":"stop"}]}`

func newTestGrader(t *testing.T, handler http.HandlerFunc) *OpenAIGrader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewOpenAIGrader(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Temperature: 0.3})
	if err != nil {
		t.Fatalf("NewOpenAIGrader: %v", err)
	}
	return g
}

func TestOpenAIGrader_TextContext(t *testing.T) {
	var body string
	g := newTestGrader(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion))
	})

	raw, err := g.Grade(context.Background(), Request{Transcript: "orange", Context: question})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	got, err := ParseGrade(raw)
	if err != nil || got.Score != 77 {
		t.Fatalf("unexpected grade %+v %v", got, err)
	}
	for _, want := range []string{`"json_object"`, `"gpt-4o-mini"`, `"max_tokens":200`, "Expected answer"} {
		if !strings.Contains(body, want) {
			t.Errorf("request missing %s: %s", want, body)
		}
	}
}

func TestOpenAIGrader_ImageContext(t *testing.T) {
	var body string
	g := newTestGrader(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion))
	})

	_, err := g.Grade(context.Background(), Request{
		Transcript: "fluffy, orange, sleepy",
		Context:    ImageContext{ImageReference: "https://example.com/cat.png"},
	})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !strings.Contains(body, `"image_url"`) || !strings.Contains(body, "https://example.com/cat.png") {
		t.Fatalf("image part missing: %s", body)
	}
}

func TestOpenAIGrader_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`, ErrAuth},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`, ErrQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGrader(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := g.Grade(context.Background(), Request{Transcript: "x", Context: question})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("server error is not classified", func(t *testing.T) {
		g := newTestGrader(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		})
		_, err := g.Grade(context.Background(), Request{Transcript: "x", Context: question})
		if err == nil || errors.Is(err, ErrAuth) || errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected an unclassified error, got %v", err)
		}
	})
}
