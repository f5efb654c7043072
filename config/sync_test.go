package config

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flowline-ai/flowline/workflow"
)

func newSyncStore(t *testing.T) *SyncStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store, err := NewSyncStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestSyncStore_DefaultScope(t *testing.T) {
	store := newSyncStore(t)
	ctx := context.Background()

	wcfg := WorkflowConfig{
		Strategy:   "orchestrator",
		AgentOrder: []string{"planner", "coder"},
		MaxSteps:   8,
	}
	require.NoError(t, store.Sync(ctx, wcfg))

	got, err := store.StrategyFor(ctx, "any-conversation")
	require.NoError(t, err)
	assert.Equal(t, workflow.KindOrchestrator, got.Kind)
	assert.Equal(t, []string{"planner", "coder"}, got.AgentOrder)
	assert.Equal(t, 8, got.MaxSteps)
}

func TestSyncStore_OverrideWinsForItsConversation(t *testing.T) {
	store := newSyncStore(t)
	ctx := context.Background()

	require.NoError(t, store.Sync(ctx, WorkflowConfig{Strategy: "fewshot", DefaultAgent: "coder"}))

	override := workflow.StrategyConfig{Kind: workflow.KindOrchestrator, AgentOrder: []string{"reviewer"}}
	require.NoError(t, store.SetOverride(ctx, "conv-7", override))

	got, err := store.StrategyFor(ctx, "conv-7")
	require.NoError(t, err)
	assert.Equal(t, workflow.KindOrchestrator, got.Kind)

	other, err := store.StrategyFor(ctx, "conv-8")
	require.NoError(t, err)
	assert.Equal(t, workflow.KindFewShot, other.Kind)

	require.NoError(t, store.DeleteOverride(ctx, "conv-7"))
	back, err := store.StrategyFor(ctx, "conv-7")
	require.NoError(t, err)
	assert.Equal(t, workflow.KindFewShot, back.Kind)
}

func TestSyncStore_RejectsReservedScope(t *testing.T) {
	store := newSyncStore(t)
	err := store.SetOverride(context.Background(), "default", workflow.StrategyConfig{})
	assert.Error(t, err)
}

func TestSyncStore_SyncIsUpsert(t *testing.T) {
	store := newSyncStore(t)
	ctx := context.Background()

	require.NoError(t, store.Sync(ctx, WorkflowConfig{Strategy: "fewshot", MaxSteps: 4}))
	require.NoError(t, store.Sync(ctx, WorkflowConfig{Strategy: "fewshot", MaxSteps: 9}))

	got, err := store.StrategyFor(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.MaxSteps)
}

func TestSyncStore_NoDefaultConfigured(t *testing.T) {
	store := newSyncStore(t)
	_, err := store.StrategyFor(context.Background(), "conv-1")
	assert.Error(t, err)
}
