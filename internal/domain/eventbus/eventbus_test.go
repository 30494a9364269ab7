package eventbus

import (
	"sync"
	"testing"

	"voice-quiz-server/internal/platform/logging"
)

func TestBus_PublishSync(t *testing.T) {
	b := New(1, 4)
	defer b.Stop()

	var got []string
	if err := b.Subscribe(TopicPipelineState, func(e PipelineStateEvent) {
		got = append(got, e.To)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(TopicPipelineState, PipelineStateEvent{To: "capturing"})
	b.Publish(TopicPipelineState, PipelineStateEvent{To: "transcribing"})

	if len(got) != 2 || got[0] != "capturing" || got[1] != "transcribing" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestBus_PublishAsync(t *testing.T) {
	b := New(2, 16)

	var mu sync.Mutex
	count := 0
	if err := b.Subscribe(TopicSessionDone, func(e SessionEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 10; i++ {
		b.PublishAsync(TopicSessionDone, SessionEvent{SessionID: "s"})
	}
	b.Drain()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("expected 10 handled events, got %d", count)
	}

	b.Stop()
	b.PublishAsync(TopicSessionDone, SessionEvent{})
	if b.Dropped() != 1 {
		t.Fatalf("expected the post-stop event to be dropped, got %d", b.Dropped())
	}
}

func TestBus_NilSafe(t *testing.T) {
	var b *Bus
	b.Publish(TopicPipelineDone, PipelineDoneEvent{})
	b.PublishAsync(TopicPipelineDone, PipelineDoneEvent{})
	b.Drain()
	b.Stop()
}

func TestSubscribeLogger(t *testing.T) {
	b := New(1, 4)
	defer b.Stop()

	if err := SubscribeLogger(b, logging.NewNop()); err != nil {
		t.Fatalf("SubscribeLogger: %v", err)
	}
	for _, topic := range []string{TopicPipelineState, TopicPipelineDone, TopicSessionStart, TopicSessionDone} {
		if !b.HasCallback(topic) {
			t.Fatalf("no logger for %s", topic)
		}
	}
	b.Publish(TopicPipelineDone, PipelineDoneEvent{QuestionIndex: 1})
}
