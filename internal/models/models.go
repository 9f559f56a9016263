package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// WorkflowSchemaVersion is written into every workflow envelope.
const WorkflowSchemaVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported workflow schema version")

type BaseModel struct {
	ID        uint           `json:"-" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// ExecutionResult is produced once per executed step and never edited afterwards.
type ExecutionResult struct {
	StepID    string `json:"stepId"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Attempts  int    `json:"attempts,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// Workflow is the portable form of a recording.
type Workflow struct {
	Version        int       `json:"version"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Tags           []string  `json:"tags"`
	Steps          []Step    `json:"steps"`
	CronExpression string    `json:"cron_expression,omitempty"`
	Created        time.Time `json:"created"`
	Modified       time.Time `json:"modified"`
}

// DecodeWorkflow reads a workflow envelope. Envelopes without a version predate
// versioning and are read as version 1.
func DecodeWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if wf.Version == 0 {
		wf.Version = WorkflowSchemaVersion
	}
	if wf.Version > WorkflowSchemaVersion {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedVersion, wf.Version, WorkflowSchemaVersion)
	}
	return &wf, nil
}

func EncodeWorkflow(wf *Workflow) ([]byte, error) {
	out := *wf
	out.Version = WorkflowSchemaVersion
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Steps == nil {
		out.Steps = []Step{}
	}
	return json.MarshalIndent(&out, "", "  ")
}

// WorkflowRecord is the persisted row behind a Workflow.
type WorkflowRecord struct {
	BaseModel
	WorkflowID     string `json:"id" gorm:"uniqueIndex;size:64;not null"`
	Version        int    `json:"version" gorm:"default:1"`
	Name           string `json:"name" gorm:"size:200;not null"`
	Description    string `json:"description" gorm:"size:1000"`
	Tags           string `json:"tags" gorm:"size:500"`   // comma separated
	Steps          string `json:"steps" gorm:"type:text"` // JSON format Step array
	CronExpression string `json:"cron_expression" gorm:"size:100"`
}

func (WorkflowRecord) TableName() string {
	return "workflows"
}

func (r *WorkflowRecord) GetSteps() ([]Step, error) {
	var steps []Step
	if r.Steps == "" {
		return steps, nil
	}
	err := json.Unmarshal([]byte(r.Steps), &steps)
	return steps, err
}

// ToWorkflow converts the row into its portable form.
func (r *WorkflowRecord) ToWorkflow() (*Workflow, error) {
	steps, err := r.GetSteps()
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", r.WorkflowID, err)
	}
	version := r.Version
	if version == 0 {
		version = WorkflowSchemaVersion
	}
	return &Workflow{
		Version:        version,
		ID:             r.WorkflowID,
		Name:           r.Name,
		Description:    r.Description,
		Tags:           splitTags(r.Tags),
		Steps:          steps,
		CronExpression: r.CronExpression,
		Created:        r.CreatedAt,
		Modified:       r.UpdatedAt,
	}, nil
}

// NewWorkflowRecord builds a row from a workflow. Timestamps are left to gorm.
func NewWorkflowRecord(wf *Workflow) (*WorkflowRecord, error) {
	steps := wf.Steps
	if steps == nil {
		steps = []Step{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}
	return &WorkflowRecord{
		WorkflowID:     wf.ID,
		Version:        WorkflowSchemaVersion,
		Name:           wf.Name,
		Description:    wf.Description,
		Tags:           strings.Join(wf.Tags, ","),
		Steps:          string(data),
		CronExpression: wf.CronExpression,
	}, nil
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Run statuses.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)

// ExecutionRun records one replay of a workflow.
type ExecutionRun struct {
	BaseModel
	RunID        string     `json:"run_id" gorm:"uniqueIndex;size:64;not null"`
	WorkflowID   string     `json:"workflow_id" gorm:"index;size:64"`
	Trigger      string     `json:"trigger" gorm:"size:20"` // manual, schedule
	Status       string     `json:"status" gorm:"size:20"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Duration     int        `json:"duration"` // in milliseconds
	TotalSteps   int        `json:"total_steps"`
	PassedSteps  int        `json:"passed_steps"`
	FailedSteps  int        `json:"failed_steps"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	Results      string     `json:"results" gorm:"type:text"` // JSON format ExecutionResult array
}

func (ExecutionRun) TableName() string {
	return "execution_runs"
}

func (r *ExecutionRun) GetResults() ([]ExecutionResult, error) {
	var results []ExecutionResult
	if r.Results == "" {
		return results, nil
	}
	err := json.Unmarshal([]byte(r.Results), &results)
	return results, err
}

// SetResults stores the results and refreshes the pass/fail counters.
func (r *ExecutionRun) SetResults(results []ExecutionResult) error {
	if results == nil {
		results = []ExecutionResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	r.Results = string(data)
	r.PassedSteps, r.FailedSteps = 0, 0
	for _, res := range results {
		if res.Success {
			r.PassedSteps++
		} else {
			r.FailedSteps++
		}
	}
	return nil
}
