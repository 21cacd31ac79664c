package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"henry/internal/models"
)

var ErrNoSnapshot = errors.New("no cart snapshot for session")

// Store persists session activity and cart snapshots.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// TouchSession records activity for sessionID, reviving it if it had expired.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	rec := models.SessionRecord{SessionID: sessionID, LastSeenAt: at}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{"last_seen_at": at, "expired": false}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}

// SaveSnapshot stores the cart carried by event. Redelivered events are ignored.
func (s *Store) SaveSnapshot(ctx context.Context, event models.CartEvent) error {
	items := event.Items
	if items == nil {
		items = []models.CartItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode snapshot items: %w", err)
	}

	snap := models.CartSnapshot{
		EventID:   event.ID,
		SessionID: event.SessionID,
		Kind:      string(event.Kind),
		Items:     datatypes.JSON(raw),
		Count:     event.Count,
		TakenAt:   event.At,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", event.ID, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot of sessionID or ErrNoSnapshot.
func (s *Store) LatestSnapshot(ctx context.Context, sessionID string) (*models.CartSnapshot, error) {
	var snap models.CartSnapshot
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("taken_at desc").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", sessionID, err)
	}
	return &snap, nil
}

// ExpireSessions marks sessions idle since before as expired and returns how many changed.
func (s *Store) ExpireSessions(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("last_seen_at < ? AND expired = ?", before, false).
		Update("expired", true)
	if res.Error != nil {
		return 0, fmt.Errorf("expire sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
