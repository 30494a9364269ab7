package image

import "errors"

// ErrInvalidImage marks every validation failure.
var ErrInvalidImage = errors.New("invalid image")

// ImageData is an image reference as clients send it: a URL or a base64
// payload (bare or as a data: URI).
type ImageData struct {
	URL    string `json:"url,omitempty"`
	Data   string `json:"data,omitempty"`
	Format string `json:"format,omitempty"`
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}
