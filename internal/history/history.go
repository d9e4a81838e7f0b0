/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history records every track that started playing.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/fairplay/internal/events"
	"github.com/friendsincode/fairplay/internal/track"
)

// Play is one history row. ID is the queue entry ID.
type Play struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Path       string     `gorm:"index" json:"path"`
	Title      string     `json:"title"`
	Artist     string     `gorm:"index" json:"artist"`
	Album      string     `json:"album"`
	DurationMs int64      `json:"duration_ms"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// TableName keeps the table name stable.
func (Play) TableName() string { return "play_history" }

// DefaultLimit and MaxLimit bound Recent.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Store persists plays in sqlite.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to the sqlite database at dsn and migrates the schema.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; one connection also keeps
	// ":memory:" databases from splitting across connections.
	sqlDB.SetMaxOpenConns(1)

	return New(db, log)
}

// New wraps an open database.
func New(db *gorm.DB, log zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Play{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, logger: log.With().Str("component", "history").Logger()}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Start records that entry id began playing at.
func (s *Store) Start(ctx context.Context, id string, md *track.Metadata, at time.Time) error {
	if md == nil {
		return errors.New("history: nil metadata")
	}
	play := Play{
		ID:         id,
		Path:       md.Path,
		Title:      md.Name,
		Artist:     md.Artist,
		Album:      md.Album,
		DurationMs: md.Duration.Milliseconds(),
		StartedAt:  at.UTC(),
	}
	return s.db.WithContext(ctx).Create(&play).Error
}

// Finish stamps the end time of entry id. Unknown IDs are ignored.
func (s *Store) Finish(ctx context.Context, id string, at time.Time) error {
	ended := at.UTC()
	return s.db.WithContext(ctx).
		Model(&Play{}).
		Where("id = ? AND ended_at IS NULL", id).
		Update("ended_at", &ended).Error
}

// Recent lists plays newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Play, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var plays []Play
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&plays).Error
	return plays, err
}

// Run records plays from bus events until ctx is done.
func (s *Store) Run(ctx context.Context, bus *events.Bus) error {
	started := bus.Subscribe(events.EventNewTrackPlaying)
	finished := bus.Subscribe(events.EventTrackFinished)
	defer bus.Unsubscribe(events.EventNewTrackPlaying, started)
	defer bus.Unsubscribe(events.EventTrackFinished, finished)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p, ok := <-started:
			if !ok {
				return nil
			}
			md, _ := p["metadata"].(*track.Metadata)
			id, _ := p["id"].(string)
			if md == nil || id == "" {
				continue
			}
			if err := s.Start(ctx, id, md, time.Now()); err != nil {
				s.logger.Warn().Err(err).Str("path", md.Path).Msg("record play failed")
			}

		case p, ok := <-finished:
			if !ok {
				return nil
			}
			if id, _ := p["id"].(string); id != "" {
				if err := s.Finish(ctx, id, time.Now()); err != nil {
					s.logger.Warn().Err(err).Str("id", id).Msg("record finish failed")
				}
			}
		}
	}
}
