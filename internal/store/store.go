// Package store persists workflows and execution runs with gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"webflowwizard/engine/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

// AppendWorkflow stores a new workflow.
func (s *Store) AppendWorkflow(ctx context.Context, wf *models.Workflow) error {
	rec, err := models.NewWorkflowRecord(wf)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create workflow %s: %w", wf.ID, err)
	}
	wf.Version = rec.Version
	wf.Created, wf.Modified = rec.CreatedAt, rec.UpdatedAt
	return nil
}

// ListWorkflows returns workflows newest first. A limit of zero means all.
func (s *Store) ListWorkflows(ctx context.Context, offset, limit int) ([]*models.Workflow, int64, error) {
	var total int64
	query := s.db.WithContext(ctx).Model(&models.WorkflowRecord{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.WorkflowRecord
	query = query.Order("created_at DESC, id DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*models.Workflow, 0, len(records))
	for i := range records {
		wf, err := records[i].ToWorkflow()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, wf)
	}
	return out, total, nil
}

// ScheduledWorkflows returns every workflow with a cron expression.
func (s *Store) ScheduledWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	var records []models.WorkflowRecord
	err := s.db.WithContext(ctx).
		Where("cron_expression != '' AND cron_expression IS NOT NULL").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Workflow, 0, len(records))
	for i := range records {
		wf, err := records[i].ToWorkflow()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (s *Store) FindWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var rec models.WorkflowRecord
	if err := s.db.WithContext(ctx).Where("workflow_id = ?", id).First(&rec).Error; err != nil {
		return nil, notFound(err, "workflow", id)
	}
	return rec.ToWorkflow()
}

// ReplaceWorkflow overwrites the stored workflow with the same id.
func (s *Store) ReplaceWorkflow(ctx context.Context, wf *models.Workflow) error {
	var rec models.WorkflowRecord
	if err := s.db.WithContext(ctx).Where("workflow_id = ?", wf.ID).First(&rec).Error; err != nil {
		return notFound(err, "workflow", wf.ID)
	}
	next, err := models.NewWorkflowRecord(wf)
	if err != nil {
		return err
	}
	next.BaseModel = rec.BaseModel
	if err := s.db.WithContext(ctx).Save(next).Error; err != nil {
		return fmt.Errorf("update workflow %s: %w", wf.ID, err)
	}
	wf.Version = next.Version
	wf.Created, wf.Modified = next.CreatedAt, next.UpdatedAt
	return nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("workflow_id = ?", id).Delete(&models.WorkflowRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run *models.ExecutionRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *Store) UpdateRun(ctx context.Context, run *models.ExecutionRun) error {
	return s.db.WithContext(ctx).Save(run).Error
}

func (s *Store) FindRun(ctx context.Context, runID string) (*models.ExecutionRun, error) {
	var run models.ExecutionRun
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, notFound(err, "run", runID)
	}
	return &run, nil
}

// RunsWithStatus returns runs in any of the given statuses.
func (s *Store) RunsWithStatus(ctx context.Context, statuses ...string) ([]models.ExecutionRun, error) {
	var runs []models.ExecutionRun
	err := s.db.WithContext(ctx).Where("status IN ?", statuses).Find(&runs).Error
	return runs, err
}
