package evaluation

import "strings"

// Level is the understanding level attached to one graded answer.
type Level string

const (
	LevelExcellent        Level = "excellent"
	LevelGood             Level = "good"
	LevelFair             Level = "fair"
	LevelNeedsImprovement Level = "needs_improvement"
	LevelNotAttempted     Level = "not_attempted"
)

// Levels lists every level from best to worst.
var Levels = []Level{LevelExcellent, LevelGood, LevelFair, LevelNeedsImprovement, LevelNotAttempted}

// ParseLevel accepts any casing and "_", "-" or space separators, so
// "Needs Improvement", "needs-improvement" and "NEEDS_IMPROVEMENT" all match.
func ParseLevel(s string) (Level, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "excellent":
		return LevelExcellent, true
	case "good":
		return LevelGood, true
	case "fair":
		return LevelFair, true
	case "needsimprovement", "poor":
		return LevelNeedsImprovement, true
	case "notattempted":
		return LevelNotAttempted, true
	}
	return "", false
}

// LevelForScore derives a level when the grader omitted one.
func LevelForScore(score int) Level {
	switch {
	case score >= 85:
		return LevelExcellent
	case score >= 70:
		return LevelGood
	case score >= 50:
		return LevelFair
	default:
		return LevelNeedsImprovement
	}
}

// Category is the performance label for a whole session.
type Category string

const (
	CategoryOutstanding      Category = "outstanding"
	CategoryExcellent        Category = "excellent"
	CategoryGood             Category = "good"
	CategoryFair             Category = "fair"
	CategoryNeedsImprovement Category = "needs_improvement"
	CategoryNoEvaluation     Category = "no_evaluation"
)

// CategoryFor maps an average score to a category. evaluated is the number of
// results that went into the average; zero yields CategoryNoEvaluation.
func CategoryFor(averageScore, evaluated int) Category {
	switch {
	case evaluated == 0:
		return CategoryNoEvaluation
	case averageScore >= 90:
		return CategoryOutstanding
	case averageScore >= 80:
		return CategoryExcellent
	case averageScore >= 70:
		return CategoryGood
	case averageScore >= 60:
		return CategoryFair
	default:
		return CategoryNeedsImprovement
	}
}

// Message is the learner-facing sentence for a category.
func (c Category) Message() string {
	switch c {
	case CategoryOutstanding:
		return "Outstanding performance! You demonstrate exceptional understanding!"
	case CategoryExcellent:
		return "Excellent understanding demonstrated!"
	case CategoryGood:
		return "Good grasp of the concepts!"
	case CategoryFair:
		return "Fair understanding shown. Keep practicing!"
	case CategoryNoEvaluation:
		return "Please try recording your responses for better feedback"
	default:
		return "Consider reviewing the material for better understanding"
	}
}
