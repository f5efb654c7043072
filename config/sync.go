package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flowline-ai/flowline/workflow"
)

// defaultScope is the row every conversation without an override falls
// back to.
const defaultScope = "default"

type strategyRecord struct {
	Scope     string `gorm:"primaryKey;size:128"`
	Payload   string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (strategyRecord) TableName() string { return "strategy_configs" }

// SyncStore persists routing strategies in SQLite and serves them as the
// workflow engine's ConfigSource. The YAML strategy is synced in at
// startup; per-conversation overrides can be written at runtime and only
// affect workflows created afterwards.
type SyncStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSyncStore migrates the strategy table.
func NewSyncStore(db *gorm.DB, logger *zap.Logger) (*SyncStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&strategyRecord{}); err != nil {
		return nil, fmt.Errorf("strategy config migration failed: %w", err)
	}
	return &SyncStore{
		db:     db,
		logger: logger.With(zap.String("component", "strategy_store")),
	}, nil
}

// Sync upserts the YAML-declared strategy as the default scope.
func (s *SyncStore) Sync(ctx context.Context, wcfg WorkflowConfig) error {
	if err := s.put(ctx, defaultScope, wcfg.StrategyConfig()); err != nil {
		return err
	}
	s.logger.Info("default strategy synced", zap.String("strategy", wcfg.Strategy))
	return nil
}

// SetOverride stores a per-conversation strategy override.
func (s *SyncStore) SetOverride(ctx context.Context, conversationID string, cfg workflow.StrategyConfig) error {
	if conversationID == "" || conversationID == defaultScope {
		return fmt.Errorf("invalid override scope %q", conversationID)
	}
	return s.put(ctx, conversationID, cfg)
}

// DeleteOverride removes a conversation's override; the default scope
// applies again for later workflows.
func (s *SyncStore) DeleteOverride(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).
		Where("scope = ?", conversationID).
		Delete(&strategyRecord{}).Error
}

// StrategyFor implements workflow.ConfigSource: conversation override
// first, default scope otherwise.
func (s *SyncStore) StrategyFor(ctx context.Context, conversationID string) (workflow.StrategyConfig, error) {
	if cfg, err := s.get(ctx, conversationID); err == nil {
		return cfg, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.StrategyConfig{}, err
	}
	return s.get(ctx, defaultScope)
}

func (s *SyncStore) put(ctx context.Context, scope string, cfg workflow.StrategyConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("strategy config marshal failed: %w", err)
	}
	record := strategyRecord{Scope: scope, Payload: string(payload), UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&record).Error
}

func (s *SyncStore) get(ctx context.Context, scope string) (workflow.StrategyConfig, error) {
	var record strategyRecord
	if err := s.db.WithContext(ctx).First(&record, "scope = ?", scope).Error; err != nil {
		return workflow.StrategyConfig{}, err
	}
	var cfg workflow.StrategyConfig
	if err := json.Unmarshal([]byte(record.Payload), &cfg); err != nil {
		return workflow.StrategyConfig{}, fmt.Errorf("strategy config unmarshal failed: %w", err)
	}
	return cfg, nil
}
