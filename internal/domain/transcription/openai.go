package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures the whisper provider.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Language      string
	Temperature   float32
	RatePerMinute int
}

// OpenAIProvider transcribes through the OpenAI audio API.
type OpenAIProvider struct {
	client  *openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrAuth)
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
	if cfg.RatePerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return p, nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Response{}, errors.Join(ErrUnknown, err)
		}
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       p.cfg.Model,
		FilePath:    req.FileName,
		Reader:      bytes.NewReader(req.Audio),
		Prompt:      req.ContextHint,
		Temperature: p.cfg.Temperature,
		Language:    p.cfg.Language,
		Format:      openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Response{}, classifyOpenAI(err)
	}
	return Response{
		Text:            resp.Text,
		Language:        resp.Language,
		DurationSeconds: resp.Duration,
	}, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		switch {
		case code == "invalid_api_key" || apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		case code == "insufficient_quota" || apiErr.Type == "insufficient_quota" || apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusRequestEntityTooLarge:
			return fmt.Errorf("%w: %s", ErrPayloadTooLarge, apiErr.Message)
		}
		return fmt.Errorf("%w: %s", ErrUnknown, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return errors.Join(ErrAuth, err)
		case http.StatusTooManyRequests:
			return errors.Join(ErrQuotaExceeded, err)
		case http.StatusRequestEntityTooLarge:
			return errors.Join(ErrPayloadTooLarge, err)
		}
	}
	return errors.Join(ErrUnknown, err)
}
