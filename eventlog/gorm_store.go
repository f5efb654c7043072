package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// entryRecord is the gorm row backing one log entry. Seq is a database
// autoincrement used only to preserve append order on read; the external
// id stays the uuid.
type entryRecord struct {
	Seq            uint64    `gorm:"primaryKey;autoIncrement"`
	EntryID        string    `gorm:"size:36;uniqueIndex"`
	ConversationID string    `gorm:"size:64;index"`
	StepIndex      int       `gorm:""`
	Kind           string    `gorm:"size:32"`
	AgentID        string    `gorm:"size:64"`
	Payload        string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:""`
}

func (entryRecord) TableName() string { return "workflow_log_entries" }

// GormStore persists log entries through gorm. Concurrent appends from
// different conversations are safe; appends within one conversation are
// already serialized by the owning executor.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and returns a store over db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate event log schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Append implements Store.
func (s *GormStore) Append(ctx context.Context, entry *Entry) (string, error) {
	if entry == nil || entry.ConversationID == "" {
		return "", ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	rec := entryRecord{
		EntryID:        entry.ID,
		ConversationID: entry.ConversationID,
		StepIndex:      entry.StepIndex,
		Kind:           string(entry.Kind),
		AgentID:        entry.AgentID,
		Payload:        entry.Payload,
		CreatedAt:      entry.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("append log entry: %w", err)
	}
	return entry.ID, nil
}

// ListForConversation implements Store, oldest first.
func (s *GormStore) ListForConversation(ctx context.Context, conversationID string) ([]*Entry, error) {
	var records []entryRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}

	out := make([]*Entry, len(records))
	for i, rec := range records {
		out[i] = &Entry{
			ID:             rec.EntryID,
			ConversationID: rec.ConversationID,
			StepIndex:      rec.StepIndex,
			Kind:           Kind(rec.Kind),
			AgentID:        rec.AgentID,
			Payload:        rec.Payload,
			CreatedAt:      rec.CreatedAt,
		}
	}
	return out, nil
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, entryID string) error {
	result := s.db.WithContext(ctx).Where("entry_id = ?", entryID).Delete(&entryRecord{})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete log entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
