package transcription

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMimeType trusts the declared type when it names an audio container,
// otherwise sniffs the payload. Browsers record webm, which sniffs as
// video/webm; whisper treats both the same.
func DetectMimeType(audio []byte, declared string) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if base, _, _ := strings.Cut(declared, ";"); strings.HasPrefix(base, "audio/") {
		return base
	}
	detected := mimetype.Detect(audio)
	if detected.Is("video/webm") {
		return "audio/webm"
	}
	if strings.HasPrefix(detected.String(), "audio/") {
		base, _, _ := strings.Cut(detected.String(), ";")
		return base
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return "audio/webm"
}

var extensions = map[string]string{
	"audio/webm":   ".webm",
	"audio/ogg":    ".ogg",
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
}

// FileName builds the upload name. The provider infers the container from
// the extension.
func FileName(questionIndex int, mimeType string) string {
	ext, ok := extensions[mimeType]
	if !ok {
		ext = ".webm"
	}
	return fmt.Sprintf("question_%d%s", questionIndex, ext)
}
