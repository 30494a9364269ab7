// Package ws streams a learner's microphone over a websocket into the
// question pipeline. Binary frames are audio chunks and a {"type":"stop"}
// text frame ends a recording. /ws/answer answers one question per
// connection; /ws/quiz keeps one attempt open across questions and
// completes the session server-side.
package ws

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice-quiz-server/internal/app/services"
	"voice-quiz-server/internal/domain/auth"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/pipeline"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

// PipelineFactory builds a fresh pipeline per connection.
type PipelineFactory interface {
	NewPipeline() *pipeline.Pipeline
}

// RunnerFactory starts one quiz attempt per quiz socket.
type RunnerFactory interface {
	NewRunner(userID, quizID string, totalQuestions int) *services.QuizRunner
}

// DevUserHeader identifies the learner when token checks are off.
const DevUserHeader = "X-User-Id"

// Router upgrades HTTP connections and runs one question per socket.
type Router struct {
	hub      *Hub
	logger   *logging.Logger
	factory  PipelineFactory
	runners  RunnerFactory
	verifier *auth.Verifier
	upgrader *websocket.Upgrader
}

// RouterOptions configures the websocket router. A nil Verifier disables
// token checks; a nil Runners disables the quiz socket.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	Verifier         *auth.Verifier
	Runners          RunnerFactory
}

func NewRouter(hub *Hub, factory PipelineFactory, logger *logging.Logger, opts RouterOptions) *Router {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	upgrader := &websocket.Upgrader{
		HandshakeTimeout: timeout,
		CheckOrigin:      opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &Router{
		hub:      hub,
		logger:   logger,
		factory:  factory,
		runners:  opts.Runners,
		verifier: opts.Verifier,
		upgrader: upgrader,
	}
}

// StatusMessage tells the client where the question is.
type StatusMessage struct {
	Type          string `json:"type"`
	QuestionIndex int    `json:"question_index"`
}

// ResultMessage carries the outcome, or the capture error when no outcome
// exists.
type ResultMessage struct {
	Type    string            `json:"type"`
	Outcome *pipeline.Outcome `json:"outcome,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type answerQuery struct {
	sessionID string
	quizID    string
	question  pipeline.Question
}

func parseQuery(req *http.Request) (answerQuery, error) {
	q := req.URL.Query()
	out := answerQuery{
		sessionID: q.Get("session_id"),
		quizID:    strings.TrimSpace(q.Get("quiz_id")),
	}
	if out.quizID == "" {
		return out, fmt.Errorf("quiz_id is required")
	}
	if raw := q.Get("question_index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 {
			return out, fmt.Errorf("invalid question_index %q", raw)
		}
		out.question.Index = idx
	}
	text := q.Get("question_text")
	out.question.Text = text
	out.question.Context = evaluation.TextContext{QuestionText: text, ExpectedAnswer: q.Get("expected_answer")}
	return out, nil
}

// identify returns the learner behind req. With token checks on the
// subject of the token is used; otherwise the dev header or user_id.
func (r *Router) identify(req *http.Request) (string, error) {
	if r.verifier == nil {
		if id := strings.TrimSpace(req.Header.Get(DevUserHeader)); id != "" {
			return id, nil
		}
		return strings.TrimSpace(req.URL.Query().Get("user_id")), nil
	}
	token := req.URL.Query().Get("token")
	if token == "" {
		var err error
		if token, err = auth.BearerToken(req.Header.Get("Authorization")); err != nil {
			return "", err
		}
	}
	return r.verifier.Verify(token)
}

// Handle upgrades the connection and answers one question on it.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	query, err := parseQuery(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := r.identify(req); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ctx, spanEnd := observability.StartSpan(req.Context(), "transport.websocket", "answer")
	var spanErr error
	defer func() { spanEnd(spanErr) }()

	socket, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		r.logger.ErrorTag("WebSocket", "handshake failed: %v", err)
		return
	}

	conn := NewConnection(uuid.NewString(), socket)
	r.hub.Register(conn)
	defer func() {
		r.hub.Unregister(conn.ID())
		_ = conn.Close()
	}()
	r.logger.InfoTag("WebSocket", "conn %s quiz=%s q=%d open", conn.ID(), query.quizID, query.question.Index)

	pump := newFramePump(conn)
	defer pump.Stop()

	source := newSocketSource(pump, func() {
		_ = conn.WriteJSON(StatusMessage{Type: "processing", QuestionIndex: query.question.Index})
	})
	if err := conn.WriteJSON(StatusMessage{Type: "recording", QuestionIndex: query.question.Index}); err != nil {
		spanErr = err
		return
	}

	out, err := r.factory.NewPipeline().Run(ctx, pipeline.Input{
		SessionID: query.sessionID,
		QuizID:    query.quizID,
		Question:  query.question,
		Source:    source,
	})
	source.waitEnded()
	if err != nil {
		spanErr = err
		r.logger.WarnTag("WebSocket", "conn %s capture failed: %v", conn.ID(), err)
		_ = conn.WriteJSON(ResultMessage{Type: "error", Error: err.Error()})
		_ = conn.CloseWith(websocket.CloseNormalClosure, "capture failed")
		return
	}

	msg := ResultMessage{Type: "result", Outcome: &out}
	if out.Err != nil {
		msg.Error = out.Err.Error()
	}
	if err := conn.WriteJSON(msg); err != nil {
		spanErr = err
		return
	}
	_ = conn.CloseWith(websocket.CloseNormalClosure, "done")
}
