package capture

import (
	"context"
	"sync"
)

// StaticSource replays a fixed set of chunks. It backs uploaded clips and
// tests. OpenErr and StreamErr simulate device failures.
type StaticSource struct {
	Chunks    [][]byte
	OpenErr   error
	StreamErr error
	// Hold keeps the stream open after the last chunk until closed.
	Hold bool

	mu     sync.Mutex
	opened int
	closed int
}

func (s *StaticSource) Open(ctx context.Context) (Stream, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()

	st := &staticStream{
		ch:     make(chan []byte),
		closed: make(chan struct{}),
		source: s,
	}
	go st.feed(ctx, s.Chunks, s.Hold, s.StreamErr)
	return st, nil
}

// Counts reports how many streams were opened and closed.
func (s *StaticSource) Counts() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

type staticStream struct {
	ch        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	source    *StaticSource

	mu  sync.Mutex
	err error
}

func (st *staticStream) feed(ctx context.Context, chunks [][]byte, hold bool, streamErr error) {
	defer close(st.ch)
	for _, chunk := range chunks {
		select {
		case st.ch <- chunk:
		case <-st.closed:
			return
		case <-ctx.Done():
			return
		}
	}
	if streamErr != nil {
		st.mu.Lock()
		st.err = streamErr
		st.mu.Unlock()
		return
	}
	if hold {
		select {
		case <-st.closed:
		case <-ctx.Done():
		}
	}
}

func (st *staticStream) Chunks() <-chan []byte { return st.ch }

func (st *staticStream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

func (st *staticStream) Close() error {
	st.closeOnce.Do(func() {
		close(st.closed)
		st.source.mu.Lock()
		st.source.closed++
		st.source.mu.Unlock()
	})
	return nil
}
