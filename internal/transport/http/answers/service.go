// Package answers serves the per-question endpoints: transcription of an
// uploaded clip and grading of a transcript.
package answers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voice-quiz-server/internal/domain/capture"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/image"
	"voice-quiz-server/internal/domain/pipeline"
	"voice-quiz-server/internal/domain/transcription"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/logging"
	httptransport "voice-quiz-server/internal/transport/http"
)

// DefaultMaxAudioBytes matches the provider's 25 MiB upload limit.
const DefaultMaxAudioBytes = 25 << 20

type Service struct {
	logger        *logging.Logger
	transcriber   pipeline.Transcriber
	evaluator     pipeline.Evaluator
	images        *image.Pipeline
	maxAudioBytes int64
}

func NewService(
	logger *logging.Logger,
	transcriber pipeline.Transcriber,
	evaluator pipeline.Evaluator,
	images *image.Pipeline,
	maxAudioBytes int64,
) (*Service, error) {
	if transcriber == nil {
		return nil, perrors.New(perrors.KindConfig, "answers.new", "transcriber is required")
	}
	if evaluator == nil {
		return nil, perrors.New(perrors.KindConfig, "answers.new", "evaluator is required")
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = DefaultMaxAudioBytes
	}
	return &Service{
		logger:        logger,
		transcriber:   transcriber,
		evaluator:     evaluator,
		images:        images,
		maxAudioBytes: maxAudioBytes,
	}, nil
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/transcribe", s.handleTranscribe)
	router.POST("/evaluate", s.handleEvaluate)
	s.logger.InfoTag("HTTP", "answer routes registered")
	return nil
}

// handleTranscribe accepts multipart fields audio, questionText and
// questionIndex.
func (s *Service) handleTranscribe(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxAudioBytes+1<<20)

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httptransport.RespondDomainError(c, transcription.ErrPayloadTooLarge)
			return
		}
		httptransport.RespondError(c, http.StatusBadRequest, "No audio file provided", nil)
		return
	}
	defer file.Close()

	index, err := formIndex(c.PostForm("questionIndex"))
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	audio, err := io.ReadAll(io.LimitReader(file, s.maxAudioBytes+1))
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "could not read audio file", nil)
		return
	}
	if int64(len(audio)) > s.maxAudioBytes {
		httptransport.RespondDomainError(c, transcription.ErrPayloadTooLarge)
		return
	}

	s.logger.InfoTag("HTTP", "transcribing question %d (%d bytes)", index, len(audio))
	result, err := s.transcriber.Transcribe(c.Request.Context(), capture.Recording{
		QuestionIndex: index,
		Audio:         audio,
		MimeType:      header.Header.Get("Content-Type"),
		CapturedAt:    time.Now(),
	}, c.PostForm("questionText"))
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, TranscribeData{
		Transcription: result.Text,
		QuestionIndex: index,
		Duration:      result.DurationSeconds,
		Language:      result.Language,
		NoSpeech:      result.NoSpeech,
		Reason:        result.Reason,
	}, "")
}

// handleEvaluate grades a transcript. JSON bodies carry a text context or
// an image reference; multipart bodies may upload the image directly.
func (s *Service) handleEvaluate(c *gin.Context) {
	var (
		req EvaluateRequest
		ec  evaluation.Context
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, ec, err = s.bindMultipart(c)
	} else {
		req, ec, err = s.bindJSON(c)
	}
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}

	text := strings.TrimSpace(req.Transcription)
	if text == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "No transcription provided", nil)
		return
	}
	transcript := transcription.Result{Text: text}
	if text == transcription.NoSpeech {
		transcript.NoSpeech = true
	}

	result, err := s.evaluator.Evaluate(c.Request.Context(), transcript, ec)
	if err != nil {
		httptransport.RespondDomainError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, EvaluateData{
		Evaluation:    result,
		QuestionIndex: req.QuestionIndex,
	}, "")
}

func (s *Service) bindJSON(c *gin.Context) (EvaluateRequest, evaluation.Context, error) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, nil, fmt.Errorf("%w: %v", evaluation.ErrInvalidContext, err)
	}
	if req.Image == nil {
		return req, textContext(req), nil
	}
	if s.images == nil {
		return req, nil, fmt.Errorf("%w: image grading is disabled", evaluation.ErrInvalidContext)
	}
	ref, _, err := s.images.Reference(*req.Image)
	if err != nil {
		return req, nil, err
	}
	return req, evaluation.ImageContext{ImageReference: ref, Prompt: req.ImagePrompt}, nil
}

func (s *Service) bindMultipart(c *gin.Context) (EvaluateRequest, evaluation.Context, error) {
	req := EvaluateRequest{
		Transcription:  c.PostForm("transcription"),
		QuestionText:   c.PostForm("questionText"),
		QuizTitle:      c.PostForm("quizTitle"),
		ExpectedAnswer: c.PostForm("expectedAnswer"),
		ImagePrompt:    c.PostForm("imagePrompt"),
	}
	index, err := formIndex(c.PostForm("questionIndex"))
	if err != nil {
		return req, nil, fmt.Errorf("%w: %v", evaluation.ErrInvalidContext, err)
	}
	req.QuestionIndex = index

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		return req, textContext(req), nil
	}
	defer file.Close()
	if s.images == nil {
		return req, nil, fmt.Errorf("%w: image grading is disabled", evaluation.ErrInvalidContext)
	}

	declared := strings.TrimPrefix(path.Ext(header.Filename), ".")
	ref, result, err := s.images.Process(c.Request.Context(), file, declared)
	if err != nil {
		return req, nil, err
	}
	s.logger.DebugTag("HTTP", "image upload accepted: %s %dx%d", result.Format, result.Width, result.Height)
	return req, evaluation.ImageContext{ImageReference: ref, Prompt: req.ImagePrompt}, nil
}

func textContext(req EvaluateRequest) evaluation.TextContext {
	question := req.QuestionText
	if question == "" {
		question = req.QuizTitle
	}
	return evaluation.TextContext{QuestionText: question, ExpectedAnswer: req.ExpectedAnswer}
}

func formIndex(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid questionIndex %q", raw)
	}
	return index, nil
}
