// Package eventbus carries pipeline and session events between components
// in one process. Synchronous Publish runs handlers inline; PublishAsync
// hands the event to a fixed worker pool and drops it when the queue is full.
package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

type Bus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	dropped   atomic.Int64
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// New creates a bus and starts its workers.
func New(workerNum, queueSize int) *Bus {
	if workerNum <= 0 {
		workerNum = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	b := &Bus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
	}
	for i := 0; i < b.workerNum; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Stop drains queued events and stops the workers.
func (b *Bus) Stop() {
	if b == nil {
		return
	}
	b.stopOnce.Do(func() {
		b.pending.Wait()
		close(b.stopChan)
		b.wg.Wait()
	})
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopChan:
			return
		case event := <-b.workChan:
			func() {
				defer b.pending.Done()
				// a panicking subscriber must not take the worker down
				defer func() { _ = recover() }()
				b.bus.Publish(event.topic, event.args...)
			}()
		}
	}
}

// Publish runs every handler for topic before returning. Safe on a nil Bus.
func (b *Bus) Publish(topic string, args ...interface{}) {
	if b == nil {
		return
	}
	b.bus.Publish(topic, args...)
}

// PublishAsync queues the event. Safe on a nil Bus.
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	if b == nil {
		return
	}
	select {
	case <-b.stopChan:
		b.dropped.Add(1)
		return
	default:
	}

	b.pending.Add(1)
	select {
	case b.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		b.pending.Done()
		b.dropped.Add(1)
	}
}

func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, handler interface{}) error {
	return b.bus.Unsubscribe(topic, handler)
}

func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Drain blocks until every queued event has been handled.
func (b *Bus) Drain() {
	if b == nil {
		return
	}
	b.pending.Wait()
}

// Dropped reports how many async events were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
