// Package postgres stores draft snapshots and series history in Postgres via gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/store"
)

// SessionRecord is the latest persisted snapshot of one draft session.
type SessionRecord struct {
	SessionID  string    `gorm:"primaryKey;size:64"`
	Phase      string    `gorm:"size:16;not null"`
	TurnNumber int       `gorm:"not null;default:0"`
	SeriesID   string    `gorm:"size:64;index"`
	State      []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (SessionRecord) TableName() string { return "draft_sessions" }

// SeriesPick is one champion picked in one game of a series.
type SeriesPick struct {
	ID         uint      `gorm:"primaryKey"`
	SeriesID   string    `gorm:"size:64;not null;uniqueIndex:idx_series_game_champion"`
	GameNumber int       `gorm:"not null;uniqueIndex:idx_series_game_champion"`
	ChampionID int       `gorm:"not null;uniqueIndex:idx_series_game_champion"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (SeriesPick) TableName() string { return "draft_series_picks" }

type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&SessionRecord{}, &SeriesPick{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, st engine.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	rec := SessionRecord{
		SessionID:  st.SessionID,
		Phase:      string(st.Phase),
		TurnNumber: st.TurnNumber,
		SeriesID:   st.Config.SeriesID,
		State:      data,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phase", "turn_number", "series_id", "state", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", st.SessionID, err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (engine.State, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, store.ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	var st engine.State
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return engine.State{}, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return st, nil
}

func (s *Store) RecordSeriesGame(ctx context.Context, seriesID string, gameNumber int, picks []int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("series_id = ? AND game_number = ?", seriesID, gameNumber).Delete(&SeriesPick{}).Error; err != nil {
			return fmt.Errorf("clear series game: %w", err)
		}
		ids := store.MergeIDs(picks)
		if len(ids) == 0 {
			return nil
		}
		rows := make([]SeriesPick, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, SeriesPick{SeriesID: seriesID, GameNumber: gameNumber, ChampionID: id})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert series picks: %w", err)
		}
		return nil
	})
}

func (s *Store) UsedChampions(ctx context.Context, seriesID string) ([]int, error) {
	var ids []int
	err := s.db.WithContext(ctx).Model(&SeriesPick{}).
		Where("series_id = ?", seriesID).
		Distinct().
		Order("champion_id").
		Pluck("champion_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("used champions %s: %w", seriesID, err)
	}
	return store.MergeIDs(ids), nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
