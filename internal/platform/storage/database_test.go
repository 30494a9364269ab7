package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_RunsMigrationsOnce(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "quiz.db")

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !db.Migrator().HasTable(&GameSessionRecord{}) {
		t.Fatal("expected game_sessions table")
	}

	// second run must be a no-op
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}

	history, err := NewMigrationManager(db).GetMigrationHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one applied migration, got %d", len(history))
	}
}

func TestGameSessionRecord_ActiveKeyUnique(t *testing.T) {
	db, err := Open(fmt.Sprintf("file:storage-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key := "u1|q1"
	first := GameSessionRecord{ID: "a", UserID: "u1", QuizID: "q1", State: "in_progress", ActiveKey: &key, StartedAt: time.Now()}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := GameSessionRecord{ID: "b", UserID: "u1", QuizID: "q1", State: "in_progress", ActiveKey: &key, StartedAt: time.Now()}
	if err := db.Create(&second).Error; err == nil {
		t.Fatal("expected unique violation for a second in-progress session")
	}

	// completed rows carry a NULL key and never collide
	done1 := GameSessionRecord{ID: "c", UserID: "u1", QuizID: "q1", State: "completed", StartedAt: time.Now()}
	done2 := GameSessionRecord{ID: "d", UserID: "u1", QuizID: "q1", State: "completed", StartedAt: time.Now()}
	if err := db.Create(&done1).Error; err != nil {
		t.Fatalf("create done1: %v", err)
	}
	if err := db.Create(&done2).Error; err != nil {
		t.Fatalf("create done2: %v", err)
	}
}
