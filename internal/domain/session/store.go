package session

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store persists game sessions. Create fails with ErrActiveExists when the
// pair already has an in-progress session. Update applies fn atomically:
// either every field fn touched is written or none is.
type Store interface {
	Create(ctx context.Context, s GameSession) error
	GetActive(ctx context.Context, userID, quizID string) (GameSession, error)
	Get(ctx context.Context, id string) (GameSession, error)
	Update(ctx context.Context, id string, fn func(*GameSession) error) (GameSession, error)
	ListByUser(ctx context.Context, userID string) ([]GameSession, error)
	Close(ctx context.Context) error
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Driver string
	Redis  *RedisConfig
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// NewStore creates a session store for cfg.Driver.
func NewStore(cfg Config, deps Dependencies) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported session store driver: %s", driver)
	}
}
