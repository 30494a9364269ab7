package ws

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voice-quiz-server/internal/domain/capture"
)

// ControlMessage is a text frame sent by the client. Only the quiz socket
// reads the question fields.
type ControlMessage struct {
	Type           string `json:"type"`
	QuestionIndex  int    `json:"question_index"`
	QuestionText   string `json:"question_text,omitempty"`
	ExpectedAnswer string `json:"expected_answer,omitempty"`
}

const (
	controlStop     = "stop"
	controlQuestion = "question"
	controlFinish   = "finish"
)

func parseControl(payload []byte) (ControlMessage, bool) {
	var msg ControlMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
		return ControlMessage{}, false
	}
	return msg, true
}

type frame struct {
	messageType int
	payload     []byte
}

// framePump is the only reader of a connection. Frames are handed to
// whoever currently consumes Frames(); the channel closes when the socket
// fails or closes.
type framePump struct {
	conn     *Connection
	frames   chan frame
	stop     chan struct{}
	stopOnce sync.Once
}

func newFramePump(conn *Connection) *framePump {
	p := &framePump{
		conn:   conn,
		frames: make(chan frame, 16),
		stop:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *framePump) run() {
	defer close(p.frames)
	for {
		messageType, payload, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case p.frames <- frame{messageType: messageType, payload: payload}:
		case <-p.stop:
			return
		}
	}
}

func (p *framePump) Frames() <-chan frame {
	return p.frames
}

// Stop releases the pump; a read already in flight returns once the
// connection is closed.
func (p *framePump) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// socketSource turns the binary frames of one clip into a capture stream.
// A {"type":"stop"} text frame ends the stream cleanly; a closed socket
// ends it with ErrClientGone.
type socketSource struct {
	frames <-chan frame
	opened atomic.Bool

	// onEnd runs once when the stream ends, whatever the reason.
	onEnd func()

	chunks  chan []byte
	ended   chan struct{}
	endOnce sync.Once

	mu  sync.Mutex
	err error
}

func newSocketSource(pump *framePump, onEnd func()) *socketSource {
	return &socketSource{
		frames: pump.Frames(),
		onEnd:  onEnd,
		chunks: make(chan []byte),
		ended:  make(chan struct{}),
	}
}

func (s *socketSource) Open(ctx context.Context) (capture.Stream, error) {
	if !s.opened.CompareAndSwap(false, true) {
		return nil, ErrSourceUsed
	}
	go s.read(ctx)
	return s, nil
}

func (s *socketSource) read(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// countdown expired or the capture was stopped
			s.end(nil)
			return
		case f, ok := <-s.frames:
			if !ok {
				s.end(ErrClientGone)
				return
			}
			switch f.messageType {
			case websocket.BinaryMessage:
				if len(f.payload) == 0 {
					continue
				}
				select {
				case s.chunks <- f.payload:
				case <-ctx.Done():
					s.end(nil)
					return
				}
			case websocket.TextMessage:
				if msg, ok := parseControl(f.payload); ok && msg.Type == controlStop {
					s.end(nil)
					return
				}
			}
		}
	}
}

func (s *socketSource) end(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.onEnd != nil {
			s.onEnd()
		}
		close(s.chunks)
		close(s.ended)
	})
}

// waitEnded blocks until the reader gave the frames back. It returns at
// once when the stream was never opened.
func (s *socketSource) waitEnded() {
	if !s.opened.Load() {
		return
	}
	<-s.ended
}

func (s *socketSource) Chunks() <-chan []byte {
	return s.chunks
}

func (s *socketSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close is called by the capture when it finishes. The socket stays open so
// the result can still be written.
func (s *socketSource) Close() error {
	return nil
}
