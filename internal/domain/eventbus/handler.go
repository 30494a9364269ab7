package eventbus

import (
	"voice-quiz-server/internal/platform/logging"
)

// SubscribeLogger logs every pipeline and session event.
func SubscribeLogger(b *Bus, logger *logging.Logger) error {
	if err := b.Subscribe(TopicPipelineState, func(e PipelineStateEvent) {
		logger.DebugTag("Pipeline", "quiz=%s q=%d %s -> %s", e.QuizID, e.QuestionIndex, e.From, e.To)
	}); err != nil {
		return err
	}
	if err := b.Subscribe(TopicPipelineDone, func(e PipelineDoneEvent) {
		logger.InfoTag("Pipeline", "quiz=%s q=%d done transcription=%s evaluation=%s timed_out=%v",
			e.QuizID, e.QuestionIndex, e.TranscriptionStatus, e.EvaluationStatus, e.TimedOut)
	}); err != nil {
		return err
	}
	if err := b.Subscribe(TopicSessionStart, func(e SessionEvent) {
		logger.InfoTag("Session", "session %s started user=%s quiz=%s", e.SessionID, e.UserID, e.QuizID)
	}); err != nil {
		return err
	}
	return b.Subscribe(TopicSessionDone, func(e SessionEvent) {
		logger.InfoTag("Session", "session %s completed average=%d category=%s", e.SessionID, e.Average, e.Category)
	})
}
