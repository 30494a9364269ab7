package image

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Pipeline turns client image input into a reference for the grader. URLs
// pass through; uploaded bytes and base64 payloads are validated and
// re-encoded as data: URIs.
type Pipeline struct {
	validator *Validator
	maxSize   int64
}

func NewPipeline(validator *Validator) *Pipeline {
	return &Pipeline{validator: validator, maxSize: validator.cfg.MaxFileSize}
}

// Reference resolves an ImageData into a grader reference.
func (p *Pipeline) Reference(data ImageData) (string, ValidationResult, error) {
	if data.URL != "" {
		u, err := url.Parse(data.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", ValidationResult{}, fmt.Errorf("%w: image url must be absolute http(s)", ErrInvalidImage)
		}
		return data.URL, ValidationResult{IsValid: true, Format: data.Format}, nil
	}
	if strings.HasPrefix(strings.TrimSpace(data.Data), "http") {
		return p.Reference(ImageData{URL: strings.TrimSpace(data.Data), Format: data.Format})
	}

	raw, result := p.validator.ValidateBase64(data)
	if !result.IsValid {
		return "", result, result.Error
	}
	return DataURI(raw, result.Format), result, nil
}

// Process reads an uploaded image from r, bounded by the configured size.
func (p *Pipeline) Process(ctx context.Context, r io.Reader, declaredFormat string) (string, ValidationResult, error) {
	if r == nil {
		return "", ValidationResult{}, fmt.Errorf("%w: image reader is required", ErrInvalidImage)
	}
	if err := ctx.Err(); err != nil {
		return "", ValidationResult{}, err
	}

	limited := &io.LimitedReader{R: r, N: p.maxSize + 1}
	raw, err := io.ReadAll(limited)
	if err != nil {
		return "", ValidationResult{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(raw)) > p.maxSize {
		return "", ValidationResult{}, fmt.Errorf("%w: image exceeds maximum size of %d bytes", ErrInvalidImage, p.maxSize)
	}

	result := p.validator.ValidateBytes(raw, declaredFormat)
	if !result.IsValid {
		return "", result, result.Error
	}
	return DataURI(raw, result.Format), result, nil
}
