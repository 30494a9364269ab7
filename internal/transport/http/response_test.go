package httptransport

import (
	"errors"
	"net/http"
	"testing"

	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/session"
	"voice-quiz-server/internal/domain/transcription"
	perrors "voice-quiz-server/internal/platform/errors"
)

func TestStatusFor(t *testing.T) {
	wrapped := func(err error) error {
		return perrors.Wrap(perrors.KindTranscription, "op", "msg", err)
	}
	cases := []struct {
		err  error
		want int
	}{
		{wrapped(transcription.ErrAuth), http.StatusUnauthorized},
		{wrapped(transcription.ErrQuotaExceeded), http.StatusTooManyRequests},
		{wrapped(transcription.ErrPayloadTooLarge), http.StatusRequestEntityTooLarge},
		{evaluation.ErrInvalidContext, http.StatusBadRequest},
		{evaluation.ErrQuotaExceeded, http.StatusTooManyRequests},
		{session.ErrAlreadyCompleted, http.StatusConflict},
		{session.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
