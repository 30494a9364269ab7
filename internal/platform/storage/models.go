package storage

import (
	"time"

	"gorm.io/datatypes"
)

// GameSessionRecord is the persisted form of one learner's attempt at a quiz.
// ActiveKey holds "user|quiz" while the session is in progress and NULL
// afterwards; its unique index keeps at most one in-progress row per pair.
type GameSessionRecord struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID      string         `gorm:"index;not null"              json:"user_id"`
	QuizID      string         `gorm:"index;not null"              json:"quiz_id"`
	State       string         `gorm:"not null"                    json:"state"`
	ActiveKey   *string        `gorm:"uniqueIndex"                 json:"-"`
	StartedAt   time.Time      `gorm:"not null"                    json:"started_at"`
	CompletedAt *time.Time     `                                   json:"completed_at,omitempty"`
	Recordings  datatypes.JSON `                                   json:"recordings,omitempty"`
	Summary     datatypes.JSON `                                   json:"summary,omitempty"`
	UpdatedAt   time.Time      `                                   json:"updated_at"`
}

func (GameSessionRecord) TableName() string {
	return "game_sessions"
}
