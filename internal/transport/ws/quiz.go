package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice-quiz-server/internal/app/services"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/pipeline"
	"voice-quiz-server/internal/domain/summary"
	"voice-quiz-server/internal/platform/observability"
)

// SessionMessage announces the attempt a quiz socket is bound to.
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// CompletedMessage is the last frame of a quiz socket.
type CompletedMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Summary   *summary.Summary `json:"summary,omitempty"`
}

type quizQuery struct {
	userID string
	quizID string
	total  int
}

func parseQuizQuery(req *http.Request) (quizQuery, error) {
	q := req.URL.Query()
	out := quizQuery{quizID: strings.TrimSpace(q.Get("quiz_id"))}
	if out.quizID == "" {
		return out, fmt.Errorf("quiz_id is required")
	}
	if raw := q.Get("total_questions"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return out, fmt.Errorf("invalid total_questions %q", raw)
		}
		out.total = n
	}
	return out, nil
}

// HandleQuiz runs a whole attempt on one socket. The client sends a
// {"type":"question",...} frame, streams the clip and ends it with
// {"type":"stop"}; the server answers each question with a result frame.
// The session is completed from the server-held results after the last
// question, or earlier on {"type":"finish"}.
func (r *Router) HandleQuiz(w http.ResponseWriter, req *http.Request) {
	if r.runners == nil {
		http.Error(w, "quiz socket disabled", http.StatusServiceUnavailable)
		return
	}
	query, err := parseQuizQuery(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if query.userID, err = r.identify(req); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if query.userID == "" {
		http.Error(w, DevUserHeader+" header or user_id required", http.StatusUnauthorized)
		return
	}

	ctx, spanEnd := observability.StartSpan(req.Context(), "transport.websocket", "quiz")
	var spanErr error
	defer func() { spanEnd(spanErr) }()

	runner := r.runners.NewRunner(query.userID, query.quizID, query.total)
	if _, err := runner.Start(ctx); err != nil {
		spanErr = err
		r.logger.WarnTag("WebSocket", "quiz=%s user=%s start failed: %v", query.quizID, query.userID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

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
	pump := newFramePump(conn)
	defer pump.Stop()

	r.logger.InfoTag("WebSocket", "conn %s quiz=%s session=%s open", conn.ID(), query.quizID, runner.SessionID())
	if err := conn.WriteJSON(SessionMessage{Type: "session", SessionID: runner.SessionID()}); err != nil {
		spanErr = err
		return
	}

	qs := &quizSocket{router: r, conn: conn, pump: pump, runner: runner, total: query.total}
	spanErr = qs.serve(ctx)
}

type quizSocket struct {
	router *Router
	conn   *Connection
	pump   *framePump
	runner *services.QuizRunner
	total  int
}

func (q *quizSocket) serve(ctx context.Context) error {
	logger := q.router.logger
	for {
		var f frame
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok = <-q.pump.Frames():
		}
		if !ok {
			logger.InfoTag("WebSocket", "conn %s left before finishing session %s", q.conn.ID(), q.runner.SessionID())
			return ErrClientGone
		}
		if f.messageType != websocket.TextMessage {
			// audio outside a question
			continue
		}
		msg, ok := parseControl(f.payload)
		if !ok {
			_ = q.conn.WriteJSON(ResultMessage{Type: "error", Error: "invalid control frame"})
			continue
		}

		switch msg.Type {
		case controlQuestion:
			if err := q.question(ctx, msg); err != nil {
				return err
			}
			if q.total > 0 && q.runner.Results().Len() >= q.total {
				return q.finish(ctx)
			}
		case controlFinish:
			return q.finish(ctx)
		case controlStop:
			// late stop for a clip that already auto-stopped
		default:
			_ = q.conn.WriteJSON(ResultMessage{Type: "error", Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

// question records, transcribes and grades one answer. Capture failures
// are reported to the client and recorded; the socket stays open.
func (q *quizSocket) question(ctx context.Context, msg ControlMessage) error {
	if msg.QuestionIndex < 0 {
		return q.conn.WriteJSON(ResultMessage{Type: "error", Error: "invalid question_index"})
	}
	question := pipeline.Question{
		Index: msg.QuestionIndex,
		Text:  msg.QuestionText,
		Context: evaluation.TextContext{
			QuestionText:   msg.QuestionText,
			ExpectedAnswer: msg.ExpectedAnswer,
		},
	}

	source := newSocketSource(q.pump, func() {
		_ = q.conn.WriteJSON(StatusMessage{Type: "processing", QuestionIndex: question.Index})
	})
	if err := q.conn.WriteJSON(StatusMessage{Type: "recording", QuestionIndex: question.Index}); err != nil {
		return err
	}

	out, err := q.runner.RunQuestion(ctx, nil, question, source)
	source.waitEnded()
	if err != nil {
		q.router.logger.WarnTag("WebSocket", "conn %s q=%d failed: %v", q.conn.ID(), question.Index, err)
		if errors.Is(source.Err(), ErrClientGone) {
			return ErrClientGone
		}
		return q.conn.WriteJSON(ResultMessage{Type: "error", Error: err.Error()})
	}

	result := ResultMessage{Type: "result", Outcome: &out}
	if out.Err != nil {
		result.Error = out.Err.Error()
	}
	return q.conn.WriteJSON(result)
}

func (q *quizSocket) finish(ctx context.Context) error {
	gs, err := q.runner.Finish(ctx)
	if err != nil {
		q.router.logger.ErrorTag("WebSocket", "conn %s finish failed: %v", q.conn.ID(), err)
		_ = q.conn.WriteJSON(ResultMessage{Type: "error", Error: err.Error()})
		_ = q.conn.CloseWith(websocket.CloseInternalServerErr, "finish failed")
		return err
	}
	if err := q.conn.WriteJSON(CompletedMessage{Type: "completed", SessionID: gs.ID, Summary: gs.Summary}); err != nil {
		return err
	}
	_ = q.conn.CloseWith(websocket.CloseNormalClosure, "completed")
	return nil
}
