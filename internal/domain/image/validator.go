// Package image validates the images learners answer questions about and
// turns them into references the grader can fetch.
package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"voice-quiz-server/internal/platform/config"
	"voice-quiz-server/internal/platform/logging"
)

// Validator performs layered checks against image payloads: size, format,
// magic number, decodability, dimensions and embedded content.
type Validator struct {
	cfg    config.ImageConfig
	logger *logging.Logger
}

func NewValidator(cfg config.ImageConfig, logger *logging.Logger) *Validator {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 4096
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = 4096
	}
	return &Validator{cfg: cfg, logger: logger}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// ValidateBase64 validates a base64 payload, with or without a data: prefix.
func (v *Validator) ValidateBase64(data ImageData) ([]byte, ValidationResult) {
	payload, declared := splitDataURI(data.Data)
	if declared == "" {
		declared = data.Format
	}
	if payload == "" {
		return nil, invalid(fmt.Errorf("missing image payload"), "")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, invalid(fmt.Errorf("decode base64: %w", err), "invalid base64 encoding")
	}
	return raw, v.ValidateBytes(raw, declared)
}

// ValidateBytes validates raw bytes. declaredFormat may be empty.
func (v *Validator) ValidateBytes(raw []byte, declaredFormat string) ValidationResult {
	declaredFormat = normalizeFormat(declaredFormat)

	if len(raw) == 0 {
		return invalid(fmt.Errorf("empty image payload"), "")
	}
	if int64(len(raw)) > v.cfg.MaxFileSize {
		v.logger.WarnTag("Grader", "oversized image: size=%d max_size=%d", len(raw), v.cfg.MaxFileSize)
		return invalid(fmt.Errorf("file size exceeds limit: %d bytes (max %d bytes)", len(raw), v.cfg.MaxFileSize), "file too large")
	}
	if declaredFormat != "" && !v.isFormatAllowed(declaredFormat) {
		return invalid(fmt.Errorf("unsupported format: %s", declaredFormat), "unapproved format")
	}
	if v.scanForMaliciousContent(raw) {
		return invalid(fmt.Errorf("potential malicious content detected"), "suspicious content")
	}

	result := v.validateDecoding(raw)
	if !result.IsValid {
		return result
	}
	if !v.isFormatAllowed(result.Format) {
		return invalid(fmt.Errorf("unsupported format: %s", result.Format), "unapproved format")
	}
	if !validateFileSignature(raw, result.Format) {
		v.logger.WarnTag("Grader", "file signature mismatch: format=%s header=%x", result.Format, raw[:min(len(raw), 16)])
		return invalid(fmt.Errorf("file signature does not match %s", result.Format), "signature mismatch")
	}
	if declaredFormat != "" && !sameFormat(declaredFormat, result.Format) {
		v.logger.WarnTag("Grader", "declared format %s but decoded %s", declaredFormat, result.Format)
	}
	return result
}

// DataURI renders validated bytes for the grader.
func DataURI(raw []byte, format string) string {
	return fmt.Sprintf("data:image/%s;base64,%s", normalizeFormat(format), base64.StdEncoding.EncodeToString(raw))
}

func (v *Validator) isFormatAllowed(format string) bool {
	if len(v.cfg.AllowedFormats) == 0 || format == "" {
		return true
	}
	for _, allowed := range v.cfg.AllowedFormats {
		if sameFormat(allowed, format) {
			return true
		}
	}
	return false
}

func validateFileSignature(raw []byte, format string) bool {
	signature, ok := imageSignatures[normalizeFormat(format)]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, signature)
}

func (v *Validator) scanForMaliciousContent(raw []byte) bool {
	suspicious := [][]byte{
		{0x4D, 0x5A},             // PE executable
		{0x25, 0x50, 0x44, 0x46}, // PDF
		{0x50, 0x4B, 0x03, 0x04}, // zip
		{0x1F, 0x8B, 0x08},       // gzip
	}
	for _, signature := range suspicious {
		if bytes.HasPrefix(raw, signature) {
			v.logger.WarnTag("Grader", "rejected payload with signature %x", signature)
			return true
		}
	}

	head := strings.ToLower(string(raw[:min(len(raw), 1024)]))
	if strings.Contains(head, "<svg") || strings.Contains(head, "<script") {
		v.logger.WarnTag("Grader", "rejected markup disguised as an image")
		return true
	}
	return false
}

func (v *Validator) validateDecoding(raw []byte) ValidationResult {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return invalid(fmt.Errorf("decode image config: %w", err), "corrupted image data")
	}
	if cfg.Width > v.cfg.MaxWidth || cfg.Height > v.cfg.MaxHeight {
		return invalid(fmt.Errorf("dimensions exceed limit: %dx%d (max %dx%d)",
			cfg.Width, cfg.Height, v.cfg.MaxWidth, v.cfg.MaxHeight), "dimensions too large")
	}

	v.logger.DebugTag("Grader", "image ok: format=%s %dx%d size=%d", format, cfg.Width, cfg.Height, len(raw))
	return ValidationResult{
		IsValid:  true,
		Format:   normalizeFormat(format),
		Width:    cfg.Width,
		Height:   cfg.Height,
		FileSize: int64(len(raw)),
	}
}

func invalid(err error, risk string) ValidationResult {
	return ValidationResult{Error: fmt.Errorf("%w: %w", ErrInvalidImage, err), SecurityRisk: risk}
}

// splitDataURI strips a "data:image/<fmt>;base64," prefix and returns the
// payload plus the declared format.
func splitDataURI(s string) (payload, format string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return "", ""
	}
	mediaType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	return payload, strings.TrimPrefix(mediaType, "image/")
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	format = strings.TrimPrefix(format, "image/")
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

func sameFormat(a, b string) bool {
	return normalizeFormat(a) == normalizeFormat(b)
}
