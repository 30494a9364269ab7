package transcription

import (
	"strings"
	"unicode"
)

// NoSpeech replaces any transcript that fails Validate.
const NoSpeech = "[no speech detected]"

const DefaultMinChars = 3

// Rejection reasons reported by Validate.
const (
	ReasonEmpty       = "empty"
	ReasonPunctuation = "punctuation_only"
	ReasonBoilerplate = "boilerplate"
	ReasonPromptEcho  = "prompt_echo"
	ReasonFiller      = "filler"
	ReasonTooShort    = "too_short"
)

// Phrases whisper tends to produce for silence or room noise.
var boilerplate = []string{
	"thank you for watching",
	"thanks for watching",
	"please subscribe",
	"like and subscribe",
	"subtitles by",
	"amara.org",
	"transcribe the user's spoken response",
	"voice recording answering a quiz question",
}

// Utterances that are a complete transcript on their own only when nobody
// actually answered.
var fillers = map[string]struct{}{
	"you": {}, "thank you": {}, "thanks": {}, "okay": {}, "ok": {},
	"um": {}, "uh": {}, "hmm": {}, "mm": {}, "ah": {}, "oh": {},
	"bye": {}, "yeah": {}, "so": {}, "hello": {}, "hi": {},
}

// Validate reports whether text is usable as an answer. A transcript that
// only reads the whole question back is rejected; part of it (a choice) is not.
func Validate(text, questionText string, minChars int) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == NoSpeech {
		return false, ReasonEmpty
	}

	letters := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters++
		}
	}
	if letters == 0 {
		return false, ReasonPunctuation
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range boilerplate {
		if strings.Contains(lower, phrase) {
			return false, ReasonBoilerplate
		}
	}

	words := normalize(lower)
	if question := normalize(strings.ToLower(questionText)); question != "" && words == question {
		return false, ReasonPromptEcho
	}
	if _, ok := fillers[words]; ok {
		return false, ReasonFiller
	}

	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	if letters < minChars {
		return false, ReasonTooShort
	}
	return true, ""
}

// normalize lowercases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
