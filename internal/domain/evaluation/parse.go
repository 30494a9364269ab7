package evaluation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ParseGrade decodes a grader answer. It tolerates code fences and
// commentary around the JSON object but requires a score and feedback.
// Scores are clamped to [0,100]. A grader may not claim not_attempted.
func ParseGrade(raw string) (Result, error) {
	body, err := extractObject(raw)
	if err != nil {
		return Result{}, err
	}

	var fields map[string]any
	if err := sonic.UnmarshalString(body, &fields); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedGrade, err)
	}

	score, err := scoreField(fields["score"])
	if err != nil {
		return Result{}, err
	}

	feedback, _ := fields["feedback"].(string)
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return Result{}, fmt.Errorf("%w: missing feedback", ErrMalformedGrade)
	}

	level := LevelForScore(score)
	if rawLevel, ok := levelField(fields); ok {
		parsed, known := ParseLevel(rawLevel)
		if !known {
			return Result{}, fmt.Errorf("%w: unknown understanding level %q", ErrMalformedGrade, rawLevel)
		}
		if parsed == LevelNotAttempted {
			return Result{}, fmt.Errorf("%w: grader returned not_attempted for an answer", ErrMalformedGrade)
		}
		level = parsed
	}

	return Result{Score: score, Level: level, Feedback: feedback}, nil
}

// extractObject returns the outermost {...} span of raw.
func extractObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedGrade)
	}
	return raw[start : end+1], nil
}

func scoreField(v any) (int, error) {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case int64:
		f = float64(s)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: score %q is not a number", ErrMalformedGrade, s)
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("%w: missing score", ErrMalformedGrade)
	default:
		return 0, fmt.Errorf("%w: score has type %T", ErrMalformedGrade, v)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("%w: score is NaN", ErrMalformedGrade)
	}
	f = math.Max(0, math.Min(100, f))
	return int(math.Round(f)), nil
}

func levelField(fields map[string]any) (string, bool) {
	for _, key := range []string{"understanding_level", "understandingLevel", "level"} {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// ClampScore forces score into [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
