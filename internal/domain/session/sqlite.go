package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"voice-quiz-server/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a store on the game_sessions table. The table's unique
// active_key index enforces the single in-progress session per pair.
func NewSQLite(db *gorm.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Create(ctx context.Context, gs GameSession) error {
	record, err := toRecord(gs)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrActiveExists
		}
		return err
	}
	return nil
}

func (s *sqliteStore) GetActive(ctx context.Context, userID, quizID string) (GameSession, error) {
	var record storage.GameSessionRecord
	err := s.db.WithContext(ctx).
		Where("active_key = ?", pairKey(userID, quizID)).
		First(&record).Error
	if err != nil {
		return GameSession{}, notFound(err)
	}
	return fromRecord(record)
}

func (s *sqliteStore) Get(ctx context.Context, id string) (GameSession, error) {
	var record storage.GameSessionRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return GameSession{}, notFound(err)
	}
	return fromRecord(record)
}

func (s *sqliteStore) Update(ctx context.Context, id string, fn func(*GameSession) error) (GameSession, error) {
	var updated GameSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record storage.GameSessionRecord
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			return notFound(err)
		}
		current, err := fromRecord(record)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		current.UpdatedAt = time.Now()
		next, err := toRecord(current)
		if err != nil {
			return err
		}
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return GameSession{}, err
	}
	return updated, nil
}

func (s *sqliteStore) ListByUser(ctx context.Context, userID string) ([]GameSession, error) {
	var records []storage.GameSessionRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]GameSession, 0, len(records))
	for _, r := range records {
		gs, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	return out, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func toRecord(gs GameSession) (storage.GameSessionRecord, error) {
	recs, err := encodeRecordings(gs.Recordings)
	if err != nil {
		return storage.GameSessionRecord{}, fmt.Errorf("encode recordings: %w", err)
	}
	sum, err := encodeSummary(gs.Summary)
	if err != nil {
		return storage.GameSessionRecord{}, fmt.Errorf("encode summary: %w", err)
	}

	var active *string
	if gs.State == StateInProgress {
		key := gs.pairKey()
		active = &key
	}
	updatedAt := gs.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return storage.GameSessionRecord{
		ID:          gs.ID,
		UserID:      gs.UserID,
		QuizID:      gs.QuizID,
		State:       string(gs.State),
		ActiveKey:   active,
		StartedAt:   gs.StartedAt,
		CompletedAt: gs.CompletedAt,
		Recordings:  recs,
		Summary:     sum,
		UpdatedAt:   updatedAt,
	}, nil
}

func fromRecord(r storage.GameSessionRecord) (GameSession, error) {
	recs, err := decodeRecordings(r.Recordings)
	if err != nil {
		return GameSession{}, fmt.Errorf("decode recordings: %w", err)
	}
	sum, err := decodeSummary(r.Summary)
	if err != nil {
		return GameSession{}, fmt.Errorf("decode summary: %w", err)
	}
	return GameSession{
		ID:          r.ID,
		UserID:      r.UserID,
		QuizID:      r.QuizID,
		State:       State(r.State),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Recordings:  recs,
		Summary:     sum,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: unique")
}
