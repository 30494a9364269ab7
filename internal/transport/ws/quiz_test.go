package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-quiz-server/internal/app/services"
	"voice-quiz-server/internal/domain/capture"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/session"
	"voice-quiz-server/internal/domain/transcription"
	"voice-quiz-server/internal/platform/logging"
)

// silenceTranscriber hears nothing in clips that say "silence".
type silenceTranscriber struct{}

func (silenceTranscriber) Transcribe(_ context.Context, rec capture.Recording, _ string) (transcription.Result, error) {
	if string(rec.Audio) == "silence" {
		return transcription.Result{Text: transcription.NoSpeech, NoSpeech: true}, nil
	}
	return transcription.Result{Text: "it is a mammal"}, nil
}

type gradingEvaluator struct{}

func (gradingEvaluator) Evaluate(_ context.Context, tr transcription.Result, _ evaluation.Context) (evaluation.Result, error) {
	if tr.IsNoSpeech() {
		return evaluation.NotAttemptedResult(), nil
	}
	return evaluation.Result{Score: 88, Level: evaluation.LevelExcellent, Feedback: "Spot on."}, nil
}

func startQuizServer(t *testing.T) (*httptest.Server, *services.QuizService) {
	t.Helper()
	svc := services.NewQuizService(services.QuizServiceConfig{
		Transcriber:     silenceTranscriber{},
		Evaluator:       gradingEvaluator{},
		Sessions:        session.NewService(session.NewMemory(), session.Options{}),
		CaptureMax:      5 * time.Second,
		CaptureMaxBytes: 1 << 20,
		CaptureMimeType: "audio/webm",
	})
	router := NewRouter(NewHub(logging.NewNop()), svc, logging.NewNop(), RouterOptions{Runners: svc})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/quiz", router.HandleQuiz)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

func dialQuiz(t *testing.T, srv *httptest.Server, query, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quiz?" + query
	header := http.Header{}
	if user != "" {
		header.Set(DevUserHeader, user)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func answer(t *testing.T, conn *websocket.Conn, question string, audio ...string) result {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(question)); err != nil {
		t.Fatal(err)
	}
	var status StatusMessage
	readJSON(t, conn, &status)
	if status.Type != "recording" {
		t.Fatalf("expected recording, got %+v", status)
	}
	for _, chunk := range audio {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatal(err)
	}
	readJSON(t, conn, &status)
	if status.Type != "processing" {
		t.Fatalf("expected processing, got %+v", status)
	}
	var res result
	readJSON(t, conn, &res)
	return res
}

func TestQuiz_CompletesAfterLastQuestion(t *testing.T) {
	srv, svc := startQuizServer(t)
	conn := dialQuiz(t, srv, "quiz_id=whales&total_questions=2", "learner")

	var hello SessionMessage
	readJSON(t, conn, &hello)
	if hello.Type != "session" || hello.SessionID == "" {
		t.Fatalf("unexpected greeting %+v", hello)
	}

	res := answer(t, conn, `{"type":"question","question_index":0,"question_text":"What is a whale?"}`, "ab", "cd")
	if res.Type != "result" || res.Outcome.Evaluation.Score != 88 {
		t.Fatalf("q0 = %+v", res)
	}

	// stray audio and a late stop between questions are ignored
	_ = conn.WriteMessage(websocket.BinaryMessage, []byte("zz"))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`))

	res = answer(t, conn, `{"type":"question","question_index":1,"question_text":"Do whales breathe air?"}`, "silence")
	if res.Type != "result" || res.Outcome.Evaluation.Level != evaluation.LevelNotAttempted || res.Outcome.Evaluation.Score != 0 {
		t.Fatalf("q1 = %+v", res)
	}

	var done CompletedMessage
	readJSON(t, conn, &done)
	if done.Type != "completed" || done.SessionID != hello.SessionID || done.Summary == nil {
		t.Fatalf("unexpected completion %+v", done)
	}
	if done.Summary.AverageScore != 44 || done.Summary.EvaluatedQuestions != 2 {
		t.Fatalf("summary = %+v", done.Summary)
	}

	gs, err := svc.Sessions().Get(context.Background(), hello.SessionID, "learner")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gs.State != session.StateCompleted || len(gs.Recordings) != 2 {
		t.Fatalf("stored session = %s with %d recordings", gs.State, len(gs.Recordings))
	}
	if gs.Recordings[0].AudioBase64 == "" {
		t.Fatal("server-side recording lost its audio")
	}
}

func TestQuiz_FinishEarly(t *testing.T) {
	srv, svc := startQuizServer(t)
	conn := dialQuiz(t, srv, "quiz_id=whales&total_questions=3", "learner")

	var hello SessionMessage
	readJSON(t, conn, &hello)
	answer(t, conn, `{"type":"question","question_index":0,"question_text":"What is a whale?"}`, "ab")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"finish"}`)); err != nil {
		t.Fatal(err)
	}
	var done CompletedMessage
	readJSON(t, conn, &done)
	if done.Type != "completed" || done.Summary.TotalQuestions != 3 || done.Summary.AverageScore != 88 {
		t.Fatalf("unexpected completion %+v", done)
	}

	history, err := svc.Sessions().History(context.Background(), "learner")
	if err != nil || len(history) != 1 || history[0].State != session.StateCompleted {
		t.Fatalf("history = %+v, %v", history, err)
	}
}

func TestQuiz_UnknownMessageKeepsSocketOpen(t *testing.T) {
	srv, _ := startQuizServer(t)
	conn := dialQuiz(t, srv, "quiz_id=whales", "learner")

	var hello SessionMessage
	readJSON(t, conn, &hello)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`))
	var res result
	readJSON(t, conn, &res)
	if res.Type != "error" || !strings.Contains(res.Error, "dance") {
		t.Fatalf("unexpected reply %+v", res)
	}

	res = answer(t, conn, `{"type":"question","question_index":0}`, "ab")
	if res.Type != "result" {
		t.Fatalf("socket should still answer questions, got %+v", res)
	}
}

func TestQuiz_RequiresIdentity(t *testing.T) {
	srv, _ := startQuizServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quiz?quiz_id=whales"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quiz?user_id=learner"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without quiz_id, got %v", err)
	}
}
