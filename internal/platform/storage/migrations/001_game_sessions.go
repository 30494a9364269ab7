package migrations

import (
	"gorm.io/gorm"
)

// Migration001GameSessions creates the game_sessions table.
type Migration001GameSessions struct{}

func (m *Migration001GameSessions) Version() string {
	return "001_game_sessions"
}

func (m *Migration001GameSessions) Description() string {
	return "Create game_sessions table with single in-progress session per user and quiz"
}

func (m *Migration001GameSessions) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS game_sessions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			quiz_id VARCHAR(255) NOT NULL,
			state VARCHAR(32) NOT NULL,
			active_key VARCHAR(512),
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			recordings JSON,
			summary JSON,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_game_sessions_active_key ON game_sessions(active_key)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_user_id ON game_sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_quiz_id ON game_sessions(quiz_id)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001GameSessions) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS game_sessions`).Error
}
