package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecorder_StopReturnsClip(t *testing.T) {
	src := &StaticSource{Chunks: [][]byte{[]byte("abc"), []byte("def")}, Hold: true}
	rec := NewRecorder(5*time.Second, 0, "audio/webm")

	c, err := rec.Start(context.Background(), 2, src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// wait until both chunks have been consumed
	time.Sleep(20 * time.Millisecond)

	got, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(got.Audio) != "abcdef" {
		t.Fatalf("unexpected audio %q", got.Audio)
	}
	if got.QuestionIndex != 2 || got.MimeType != "audio/webm" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if opened, closed := src.Counts(); opened != 1 || closed != 1 {
		t.Fatalf("device not released: opened=%d closed=%d", opened, closed)
	}
}

func TestRecorder_CountdownAutoStops(t *testing.T) {
	src := &StaticSource{Chunks: [][]byte{[]byte("x")}, Hold: true}
	rec := NewRecorder(30*time.Millisecond, 0, "")

	c, err := rec.Start(context.Background(), 0, src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop the capture")
	}

	got, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop after countdown: %v", err)
	}
	if got.DurationSeconds < 0.03 {
		t.Fatalf("duration should cover the countdown, got %v", got.DurationSeconds)
	}
	if c.Remaining() != 0 {
		t.Fatalf("expected no time remaining")
	}
}

func TestRecorder_EmptyBufferIsError(t *testing.T) {
	src := &StaticSource{}
	rec := NewRecorder(time.Second, 0, "")

	c, err := rec.Start(context.Background(), 0, src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec2, err := c.Wait(context.Background())
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if len(rec2.Audio) != 0 {
		t.Fatal("no clip should be produced")
	}
}

func TestRecorder_ErrorsAreDistinguishable(t *testing.T) {
	tests := []struct {
		name string
		src  *StaticSource
		want error
	}{
		{"permission denied", &StaticSource{OpenErr: ErrPermissionDenied}, ErrPermissionDenied},
		{"no device", &StaticSource{OpenErr: errors.New("enumerate failed")}, ErrDeviceUnavailable},
		{"disconnected", &StaticSource{Chunks: [][]byte{[]byte("a")}, StreamErr: errors.New("unplugged")}, ErrDeviceDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecorder(time.Second, 0, "")
			c, err := rec.Start(context.Background(), 0, tt.src)
			if err == nil {
				_, err = c.Wait(context.Background())
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			// the device is free again after any failure
			if _, err := rec.Start(context.Background(), 1, &StaticSource{Chunks: [][]byte{[]byte("ok")}}); err != nil {
				t.Fatalf("recorder not released: %v", err)
			}
		})
	}
}

func TestRecorder_ExclusiveDevice(t *testing.T) {
	rec := NewRecorder(time.Second, 0, "")
	c, err := rec.Start(context.Background(), 0, &StaticSource{Chunks: [][]byte{[]byte("a")}, Hold: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := rec.Start(context.Background(), 1, &StaticSource{}); !errors.Is(err, ErrCaptureActive) {
		t.Fatalf("expected ErrCaptureActive, got %v", err)
	}
	_, _ = c.Stop()
}

func TestRecorder_MaxBytes(t *testing.T) {
	rec := NewRecorder(time.Second, 4, "")
	c, err := rec.Start(context.Background(), 0, &StaticSource{Chunks: [][]byte{[]byte("abc"), []byte("def")}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Wait(context.Background()); !errors.Is(err, ErrClipTooLarge) {
		t.Fatalf("expected ErrClipTooLarge, got %v", err)
	}
}
