// Package capture turns a live microphone stream into one bounded audio clip.
package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrDeviceUnavailable means no input device could be opened.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrPermissionDenied means the learner refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceDisconnected means the stream failed mid-capture.
	ErrDeviceDisconnected = errors.New("audio input device disconnected")
	// ErrNoAudio means capture stopped without a single byte of audio.
	ErrNoAudio = errors.New("no audio captured")
	// ErrClipTooLarge means the stream exceeded the recorder byte limit.
	ErrClipTooLarge = errors.New("audio clip exceeds maximum size")
	// ErrCaptureActive means the recorder already owns the device.
	ErrCaptureActive = errors.New("a capture is already active")
)

// Stream is an open input device delivering audio chunks. Chunks is closed
// when the device stops producing data; Err then reports why.
type Stream interface {
	Chunks() <-chan []byte
	Err() error
	Close() error
}

// Source acquires an input device.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Recording is one finalised clip. DurationSeconds is wall-clock capture time.
type Recording struct {
	QuestionIndex   int
	Audio           []byte
	MimeType        string
	DurationSeconds float64
	CapturedAt      time.Time
}

// Recorder bounds a capture by MaxDuration and MaxBytes. A Recorder owns the
// device exclusively: only one Capture may be active at a time.
type Recorder struct {
	MaxDuration time.Duration
	MaxBytes    int64
	MimeType    string

	mu     sync.Mutex
	active bool
}

// NewRecorder builds a recorder with the given countdown.
func NewRecorder(maxDuration time.Duration, maxBytes int64, mimeType string) *Recorder {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	return &Recorder{MaxDuration: maxDuration, MaxBytes: maxBytes, MimeType: mimeType}
}

// Capture is an in-flight recording.
type Capture struct {
	recorder      *Recorder
	questionIndex int
	stream        Stream
	started       time.Time
	cancel        context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	buf    bytes.Buffer
	err    error
	result Recording
	ended  time.Time
}

// Start opens the source and begins accumulating audio. The capture stops
// itself when the countdown reaches zero, the stream ends or ctx is done.
func (r *Recorder) Start(ctx context.Context, questionIndex int, source Source) (*Capture, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrCaptureActive
	}
	r.active = true
	r.mu.Unlock()

	captureCtx, cancel := context.WithCancel(ctx)
	stream, err := source.Open(captureCtx)
	if err != nil {
		cancel()
		r.release()
		return nil, classifyOpenError(err)
	}

	c := &Capture{
		recorder:      r,
		questionIndex: questionIndex,
		stream:        stream,
		started:       time.Now(),
		cancel:        cancel,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	go c.run(captureCtx)
	return c, nil
}

func (r *Recorder) release() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

func (c *Capture) run(ctx context.Context) {
	defer close(c.done)
	defer c.recorder.release()
	defer c.cancel()
	defer func() {
		_ = c.stream.Close()
	}()

	var timeout <-chan time.Time
	if c.recorder.MaxDuration > 0 {
		timer := time.NewTimer(c.recorder.MaxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	chunks := c.stream.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := c.stream.Err(); err != nil {
					c.err = classifyStreamError(err)
				}
				c.finish()
				return
			}
			if c.recorder.MaxBytes > 0 && int64(c.buf.Len()+len(chunk)) > c.recorder.MaxBytes {
				c.err = ErrClipTooLarge
				c.finish()
				return
			}
			c.buf.Write(chunk)
		case <-timeout:
			c.finish()
			return
		case <-c.stopCh:
			c.finish()
			return
		case <-ctx.Done():
			c.err = ctx.Err()
			c.finish()
			return
		}
	}
}

func (c *Capture) finish() {
	c.ended = time.Now()
	if c.err != nil {
		return
	}
	if c.buf.Len() == 0 {
		c.err = ErrNoAudio
		return
	}
	audio := make([]byte, c.buf.Len())
	copy(audio, c.buf.Bytes())
	c.result = Recording{
		QuestionIndex:   c.questionIndex,
		Audio:           audio,
		MimeType:        c.recorder.MimeType,
		DurationSeconds: c.ended.Sub(c.started).Seconds(),
		CapturedAt:      c.ended,
	}
}

// Done is closed once the capture has ended for any reason.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Stop ends the capture early and returns the finalised clip. Calling Stop
// after the countdown fired returns the same result.
func (c *Capture) Stop() (Recording, error) {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
	return c.result, c.err
}

// Wait blocks until the capture ends on its own (countdown or stream end) or
// ctx is done, in which case the capture is stopped.
func (c *Capture) Wait(ctx context.Context) (Recording, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return c.Stop()
}

// Elapsed reports wall-clock time since the capture started.
func (c *Capture) Elapsed() time.Duration {
	select {
	case <-c.done:
		return c.ended.Sub(c.started)
	default:
		return time.Since(c.started)
	}
}

// Remaining reports the countdown left.
func (c *Capture) Remaining() time.Duration {
	if c.recorder.MaxDuration <= 0 {
		return 0
	}
	left := c.recorder.MaxDuration - c.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceUnavailable):
		return err
	default:
		return errors.Join(ErrDeviceUnavailable, err)
	}
}

func classifyStreamError(err error) error {
	if errors.Is(err, ErrDeviceDisconnected) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	return errors.Join(ErrDeviceDisconnected, err)
}
