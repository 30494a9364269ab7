package gamesessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"voice-quiz-server/internal/domain/auth"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/session"
	"voice-quiz-server/internal/platform/logging"
	testhelpers "voice-quiz-server/internal/platform/testing"
	httptransport "voice-quiz-server/internal/transport/http"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    session.GameSession `json:"data"`
}

func newServer(t *testing.T, verifier *auth.Verifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testhelpers.SetupTestConfig(t)
	if verifier != nil {
		cfg.Server.Auth.Enabled = true
	}
	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logging.NewNop(), Verifier: verifier})
	testhelpers.AssertNoError(t, err)

	svc, err := NewService(logging.NewNop(), session.NewService(session.NewMemory(), session.Options{}))
	testhelpers.AssertNoError(t, err)
	testhelpers.AssertNoError(t, svc.Register(context.Background(), router.Secured))
	return router.Engine
}

func do(engine *gin.Engine, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(httptransport.DevUserHeader, user)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func parse(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return env
}

func TestStartIsIdempotent(t *testing.T) {
	engine := newServer(t, nil)

	first := do(engine, http.MethodPost, "/api/game-sessions", "u1", `{"quizId":"quiz-1"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := do(engine, http.MethodPost, "/api/game-sessions", "u1", `{"quizId":"quiz-1"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	if parse(t, first).Data.ID != parse(t, second).Data.ID {
		t.Fatal("start must return the existing in-progress session")
	}
}

const completeBody = `{
	"quizId": "quiz-1",
	"isCompleted": true,
	"recordings": {
		"0": {"base64Audio": "AAAA", "mimeType": "audio/webm", "duration": 3.5, "transcription": "answer one",
		      "evaluation": {"score": 85, "feedback": "Good.", "understanding_level": "good"}},
		"1": {"base64Audio": "BBBB", "mimeType": "audio/webm", "duration": 1.0, "transcription": "[no speech detected]",
		      "evaluation": {"score": 0, "feedback": "No response was detected.", "understanding_level": "not_attempted"}},
		"2": {"base64Audio": "CCCC", "mimeType": "audio/webm", "duration": 2.0, "transcription": "answer three",
		      "evaluation": {"score": 20, "feedback": "Weak.", "understanding_level": "needs_improvement"}}
	}
}`

func TestCompleteFlow(t *testing.T) {
	engine := newServer(t, nil)

	started := parse(t, do(engine, http.MethodPost, "/api/game-sessions", "u1", `{"quizId":"quiz-1"}`))

	rec := do(engine, http.MethodPost, "/api/game-sessions", "u1", completeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}
	done := parse(t, rec).Data
	if done.ID != started.Data.ID || done.State != session.StateCompleted {
		t.Fatalf("unexpected session %+v", done)
	}
	if done.Summary == nil || done.Summary.AverageScore != 35 ||
		done.Summary.PerformanceCategory != evaluation.CategoryNeedsImprovement {
		t.Fatalf("unexpected summary %+v", done.Summary)
	}

	got := do(engine, http.MethodGet, "/api/game-sessions/"+done.ID, "u1", "")
	if got.Code != http.StatusOK || parse(t, got).Data.Recordings[0].AudioBase64 != "AAAA" {
		t.Fatalf("get: %d %s", got.Code, got.Body.String())
	}

	if rec := do(engine, http.MethodGet, "/api/game-sessions/"+done.ID, "intruder", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	list := do(engine, http.MethodGet, "/api/game-sessions", "u1", "")
	var history struct {
		Data []session.GameSession `json:"data"`
	}
	testhelpers.AssertNoError(t, json.Unmarshal(list.Body.Bytes(), &history))
	if len(history.Data) != 1 || history.Data[0].Recordings[0].AudioBase64 != "" {
		t.Fatalf("history should list one session without audio: %+v", history.Data)
	}
}

func TestCompleteTwiceIsRejected(t *testing.T) {
	engine := newServer(t, nil)
	first := parse(t, do(engine, http.MethodPost, "/api/game-sessions", "u1", completeBody)).Data

	body := strings.Replace(completeBody, `"isCompleted": true,`, `"isCompleted": true, "sessionId": "`+first.ID+`",`, 1)
	rec := do(engine, http.MethodPost, "/api/game-sessions", "u1", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBadRequests(t *testing.T) {
	engine := newServer(t, nil)
	cases := map[string]string{
		"missing quiz": `{}`,
		"bad index":    `{"quizId":"q","isCompleted":true,"recordings":{"x":{}}}`,
		"not json":     `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := do(engine, http.MethodPost, "/api/game-sessions", "u1", body); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
	if rec := do(engine, http.MethodGet, "/api/game-sessions/missing", "u1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestIdentityRequired(t *testing.T) {
	engine := newServer(t, nil)
	if rec := do(engine, http.MethodPost, "/api/game-sessions", "", `{"quizId":"q"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	verifier, err := auth.NewVerifier("test-secret")
	testhelpers.AssertNoError(t, err)
	engine := newServer(t, verifier)

	if rec := do(engine, http.MethodPost, "/api/game-sessions", "u1", `{"quizId":"q"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("dev header must be ignored when auth is on, got %d", rec.Code)
	}

	token, err := verifier.Issue("learner-9")
	testhelpers.AssertNoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/game-sessions", strings.NewReader(`{"quizId":"q"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || parse(t, rec).Data.UserID != "learner-9" {
		t.Fatalf("expected session for learner-9, got %d %s", rec.Code, rec.Body.String())
	}
}
