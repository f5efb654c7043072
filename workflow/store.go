package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flowline-ai/flowline/approval"
)

// ErrRunNotFound is returned when no workflow run exists for a
// conversation.
var ErrRunNotFound = errors.New("workflow run not found")

// StateStore persists workflow, step, and tool run records. The event log
// is a derived projection; these records are the execution source of
// truth, which is why a failed workflow stays queryable after the fact.
type StateStore interface {
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	SaveStep(ctx context.Context, runID string, step *Step) error
	SaveToolRun(ctx context.Context, run *approval.ToolRun) error
	LoadWorkflow(ctx context.Context, conversationID string) (*Workflow, error)
}

// NopStore discards all writes. Used when durable workflow state is not
// configured.
type NopStore struct{}

func (NopStore) SaveWorkflow(context.Context, *Workflow) error          { return nil }
func (NopStore) SaveStep(context.Context, string, *Step) error          { return nil }
func (NopStore) SaveToolRun(context.Context, *approval.ToolRun) error   { return nil }
func (NopStore) LoadWorkflow(context.Context, string) (*Workflow, error) {
	return nil, ErrRunNotFound
}

type workflowRecord struct {
	RunID          string `gorm:"primaryKey;size:36"`
	ConversationID string `gorm:"size:64;index"`
	Strategy       string `gorm:"size:16"`
	AgentOrder     string `gorm:"type:text"`
	StepIndex      int
	Phase          string `gorm:"size:16"`
	Status         string `gorm:"size:32"`
	FailureReason  string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (workflowRecord) TableName() string { return "workflow_runs" }

type stepRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"size:36;index:idx_run_step,unique"`
	StepIndex   int    `gorm:"index:idx_run_step,unique"`
	AgentID     string `gorm:"size:64"`
	InputDigest string `gorm:"size:64"`
	Output      string `gorm:"type:text"`
	ToolCall    string `gorm:"type:text"`
	Outcome     string `gorm:"size:16"`
	Timestamp   time.Time
}

func (stepRecord) TableName() string { return "workflow_steps" }

type toolRunRecord struct {
	ToolRunID      string `gorm:"primaryKey;size:36"`
	ConversationID string `gorm:"size:64;index"`
	StepIndex      int
	ToolName       string `gorm:"size:128"`
	Arguments      string `gorm:"type:text"`
	State          string `gorm:"size:16"`
	ResolvedBy     string `gorm:"size:128"`
	Reason         string `gorm:"type:text"`
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

func (toolRunRecord) TableName() string { return "tool_runs" }

// GormStateStore persists workflow state through gorm.
type GormStateStore struct {
	db *gorm.DB
}

// NewGormStateStore migrates the schema and returns a store over db.
func NewGormStateStore(db *gorm.DB) (*GormStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&workflowRecord{}, &stepRecord{}, &toolRunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate workflow schema: %w", err)
	}
	return &GormStateStore{db: db}, nil
}

// SaveWorkflow upserts the run header.
func (s *GormStateStore) SaveWorkflow(ctx context.Context, wf *Workflow) error {
	order, err := json.Marshal(wf.AgentOrder)
	if err != nil {
		return fmt.Errorf("marshal agent order: %w", err)
	}
	rec := workflowRecord{
		RunID:          wf.RunID,
		ConversationID: wf.ConversationID,
		Strategy:       string(wf.Strategy),
		AgentOrder:     string(order),
		StepIndex:      wf.StepIndex,
		Phase:          string(wf.Phase),
		Status:         string(wf.Status),
		FailureReason:  wf.FailureReason,
		CreatedAt:      wf.CreatedAt,
		UpdatedAt:      time.Now(),
	}
	err = s.db.WithContext(ctx).Save(&rec).Error
	if err != nil {
		return fmt.Errorf("save workflow run: %w", err)
	}
	return nil
}

// SaveStep inserts one immutable step record. Saving the same index again
// updates in place, which only happens when the final step's outcome is
// rewritten to final.
func (s *GormStateStore) SaveStep(ctx context.Context, runID string, step *Step) error {
	toolCall := ""
	if step.ToolCall != nil {
		data, err := json.Marshal(step.ToolCall)
		if err != nil {
			return fmt.Errorf("marshal tool call: %w", err)
		}
		toolCall = string(data)
	}
	rec := stepRecord{
		RunID:       runID,
		StepIndex:   step.Index,
		AgentID:     step.AgentID,
		InputDigest: step.InputDigest,
		Output:      step.Output,
		ToolCall:    toolCall,
		Outcome:     string(step.Outcome),
		Timestamp:   step.Timestamp,
	}

	var existing stepRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND step_index = ?", runID, step.Index).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.db.WithContext(ctx).Create(&rec).Error
	case err == nil:
		rec.ID = existing.ID
		err = s.db.WithContext(ctx).Save(&rec).Error
	}
	if err != nil {
		return fmt.Errorf("save workflow step: %w", err)
	}
	return nil
}

// SaveToolRun upserts the tool run snapshot.
func (s *GormStateStore) SaveToolRun(ctx context.Context, run *approval.ToolRun) error {
	rec := toolRunRecord{
		ToolRunID:      run.ID,
		ConversationID: run.ConversationID,
		StepIndex:      run.StepIndex,
		ToolName:       run.ToolName,
		Arguments:      string(run.Arguments),
		State:          string(run.State),
		ResolvedBy:     run.ResolvedBy,
		Reason:         run.Reason,
		CreatedAt:      run.CreatedAt,
		ResolvedAt:     run.ResolvedAt,
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save tool run: %w", err)
	}
	return nil
}

// LoadWorkflow returns the most recent run for a conversation with its
// steps, newest run wins.
func (s *GormStateStore) LoadWorkflow(ctx context.Context, conversationID string) (*Workflow, error) {
	var rec workflowRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow run: %w", err)
	}

	var order []string
	if rec.AgentOrder != "" {
		if err := json.Unmarshal([]byte(rec.AgentOrder), &order); err != nil {
			return nil, fmt.Errorf("unmarshal agent order: %w", err)
		}
	}

	wf := &Workflow{
		RunID:          rec.RunID,
		ConversationID: rec.ConversationID,
		Strategy:       StrategyKind(rec.Strategy),
		AgentOrder:     order,
		StepIndex:      rec.StepIndex,
		Phase:          Phase(rec.Phase),
		Status:         Status(rec.Status),
		FailureReason:  rec.FailureReason,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}

	var steps []stepRecord
	err = s.db.WithContext(ctx).
		Where("run_id = ?", rec.RunID).
		Order("step_index ASC").
		Find(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}
	for _, sr := range steps {
		step := &Step{
			Index:       sr.StepIndex,
			AgentID:     sr.AgentID,
			InputDigest: sr.InputDigest,
			Output:      sr.Output,
			Outcome:     StepOutcome(sr.Outcome),
			Timestamp:   sr.Timestamp,
		}
		if sr.ToolCall != "" {
			if err := json.Unmarshal([]byte(sr.ToolCall), &step.ToolCall); err != nil {
				return nil, fmt.Errorf("unmarshal tool call: %w", err)
			}
		}
		wf.Steps = append(wf.Steps, step)
	}
	return wf, nil
}
