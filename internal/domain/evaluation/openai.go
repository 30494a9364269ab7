package evaluation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	VisionModel   string
	Temperature   float32
	MaxTokens     int
	RatePerMinute int
}

// OpenAIGrader grades with a JSON-mode chat completion. Image contexts are
// sent as an image_url content part.
type OpenAIGrader struct {
	client  *openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
}

func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrAuth)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	g := &OpenAIGrader{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
	if cfg.RatePerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return g, nil
}

func (g *OpenAIGrader) Grade(ctx context.Context, req Request) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	switch c := req.Context.(type) {
	case TextContext:
		chatReq.Messages = []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: textPrompt(req.Transcript, c)},
		}
	case ImageContext:
		chatReq.Model = g.cfg.VisionModel
		chatReq.Messages = []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: imagePrompt(req.Transcript, c)},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    c.ImageReference,
						Detail: openai.ImageURLDetailLow,
					}},
				},
			},
		}
	default:
		return "", fmt.Errorf("%w: unsupported context %T", ErrInvalidContext, req.Context)
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedGrade)
	}
	return resp.Choices[0].Message.Content, nil
}

const systemPrompt = `You are an expert educational evaluator grading a student's spoken quiz answer.
Reply with a single JSON object and nothing else:
{"score": <integer 0-100, 100 = excellent understanding>,
 "understanding_level": "excellent" | "good" | "fair" | "needs_improvement",
 "feedback": "<brief constructive feedback, 1-2 sentences>"}`

func textPrompt(transcript string, c TextContext) string {
	var b strings.Builder
	if c.QuestionText != "" {
		fmt.Fprintf(&b, "Question: %q\n", c.QuestionText)
	}
	if c.ExpectedAnswer != "" {
		fmt.Fprintf(&b, "Expected answer: %q\n", c.ExpectedAnswer)
	}
	fmt.Fprintf(&b, "Student's transcribed answer: %q\n\n", transcript)
	b.WriteString("Judge relevance and accuracy against the expected answer. Focus on whether the student demonstrates understanding of the topic and gives a clear, relevant response.")
	return b.String()
}

func imagePrompt(transcript string, c ImageContext) string {
	var b strings.Builder
	b.WriteString("The student was shown the attached image and answered out loud.\n")
	if c.Prompt != "" {
		fmt.Fprintf(&b, "Task: %q\n", c.Prompt)
	}
	fmt.Fprintf(&b, "Student's transcribed answer: %q\n\n", transcript)
	b.WriteString("Judge how relevant and accurate the answer is to what the image shows.")
	return b.String()
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		switch {
		case code == "invalid_api_key" || apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		case code == "insufficient_quota" || apiErr.Type == "insufficient_quota":
			return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized {
		return errors.Join(ErrAuth, err)
	}
	return err
}
