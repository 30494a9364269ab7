// Package summary folds per-question grades into one session summary. It is
// pure: no I/O, no clock, no randomness.
package summary

import (
	"fmt"
	"strings"

	"voice-quiz-server/internal/domain/evaluation"
)

// Labeled ties a grade to the question it answers.
type Labeled struct {
	QuestionIndex int               `json:"question_index"`
	Result        evaluation.Result `json:"result"`
}

type Summary struct {
	AverageScore        int                      `json:"average_score"`
	TotalQuestions      int                      `json:"total_questions"`
	EvaluatedQuestions  int                      `json:"evaluated_questions"`
	LevelCounts         map[evaluation.Level]int `json:"understanding_levels"`
	PerformanceCategory evaluation.Category      `json:"performance_category"`
	OverallFeedback     string                   `json:"overall_feedback"`
	KeyInsights         []string                 `json:"key_insights"`
}

// Aggregate summarises results. Every entry counts as evaluated, including
// not_attempted grades with score 0. Feedback lines keep the slice order.
func Aggregate(results []Labeled, totalQuestions int) Summary {
	if totalQuestions < len(results) {
		totalQuestions = len(results)
	}

	if len(results) == 0 {
		return Summary{
			TotalQuestions:      totalQuestions,
			LevelCounts:         map[evaluation.Level]int{},
			PerformanceCategory: evaluation.CategoryNoEvaluation,
			KeyInsights: []string{
				"No evaluations completed",
				evaluation.CategoryNoEvaluation.Message(),
			},
		}
	}

	sum := 0
	counts := make(map[evaluation.Level]int)
	lines := make([]string, 0, len(results))
	for _, r := range results {
		sum += r.Result.Score
		counts[r.Result.Level]++
		lines = append(lines, fmt.Sprintf("Q%d: %s", r.QuestionIndex+1, r.Result.Feedback))
	}

	average := roundHalfUp(sum, len(results))
	category := evaluation.CategoryFor(average, len(results))

	return Summary{
		AverageScore:        average,
		TotalQuestions:      totalQuestions,
		EvaluatedQuestions:  len(results),
		LevelCounts:         counts,
		PerformanceCategory: category,
		OverallFeedback:     strings.Join(lines, "\n"),
		KeyInsights:         insights(len(results), totalQuestions, average, category, counts),
	}
}

// roundHalfUp divides sum by n rounding .5 away from zero. Scores are never
// negative so this is round-half-up.
func roundHalfUp(sum, n int) int {
	return (2*sum + n) / (2 * n)
}

func insights(evaluated, total, average int, category evaluation.Category, counts map[evaluation.Level]int) []string {
	out := []string{
		fmt.Sprintf("Completed %d out of %d questions", evaluated, total),
		fmt.Sprintf("Average score: %d%%", average),
		category.Message(),
	}
	if n := counts[evaluation.LevelExcellent]; n > 0 {
		out = append(out, fmt.Sprintf("%d %s showed excellent understanding", n, plural(n, "question")))
	}
	if n := counts[evaluation.LevelNeedsImprovement]; n > 0 {
		verb := "need"
		if n == 1 {
			verb = "needs"
		}
		out = append(out, fmt.Sprintf("%d %s %s more practice", n, plural(n, "question"), verb))
	}
	if n := counts[evaluation.LevelNotAttempted]; n > 0 {
		out = append(out, fmt.Sprintf("%d %s had no spoken answer", n, plural(n, "question")))
	}
	return out
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
