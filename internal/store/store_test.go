package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/pkg/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "wf " + id,
		Tags: []string{"smoke"},
		Steps: []models.Step{
			models.NewStep("s1", models.NavigationConfig{URL: "https://example.com"}, 1),
			models.NewStep("s2", models.ClickConfig{Selector: "#go"}, 2),
		},
	}
}

func TestWorkflowCRUD(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	wf := testWorkflow("a")
	if err := s.AppendWorkflow(ctx, wf); err != nil {
		t.Fatalf("AppendWorkflow: %v", err)
	}
	if wf.Created.IsZero() || wf.Version != models.WorkflowSchemaVersion {
		t.Fatalf("append did not fill metadata: %+v", wf)
	}
	if err := s.AppendWorkflow(ctx, testWorkflow("a")); err == nil {
		t.Fatal("duplicate workflow id accepted")
	}

	got, err := s.FindWorkflow(ctx, "a")
	if err != nil {
		t.Fatalf("FindWorkflow: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("steps = %+v", got.Steps)
	}
	if c, ok := got.Steps[1].Config.(models.ClickConfig); !ok || c.Selector != "#go" {
		t.Fatalf("steps = %+v", got.Steps)
	}

	got.Name = "renamed"
	got.CronExpression = "0 0 * * * *"
	if err := s.ReplaceWorkflow(ctx, got); err != nil {
		t.Fatalf("ReplaceWorkflow: %v", err)
	}
	again, _ := s.FindWorkflow(ctx, "a")
	if again.Name != "renamed" || !again.Created.Equal(wf.Created) {
		t.Fatalf("replaced workflow = %+v", again)
	}

	scheduled, err := s.ScheduledWorkflows(ctx)
	if err != nil || len(scheduled) != 1 {
		t.Fatalf("ScheduledWorkflows = %d, %v", len(scheduled), err)
	}

	if err := s.DeleteWorkflow(ctx, "a"); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	if _, err := s.FindWorkflow(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Find after delete = %v", err)
	}
	if err := s.DeleteWorkflow(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
	if err := s.ReplaceWorkflow(ctx, testWorkflow("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replace missing = %v", err)
	}
	if err := s.AppendWorkflow(ctx, testWorkflow("a")); err != nil {
		t.Fatalf("re-append after delete: %v", err)
	}
}

func TestListWorkflowsPaginates(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AppendWorkflow(ctx, testWorkflow(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	page, total, err := s.ListWorkflows(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("total %d, page %d", total, len(page))
	}
	all, _, _ := s.ListWorkflows(ctx, 0, 0)
	if len(all) != 3 {
		t.Fatalf("unbounded list = %d", len(all))
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run := &models.ExecutionRun{RunID: "r1", WorkflowID: "a", Status: models.RunStatusRunning, StartTime: time.Now()}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.Status = models.RunStatusCompleted
	run.SetResults([]models.ExecutionResult{{StepID: "s1", Success: true}})
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.FindRun(ctx, "r1")
	if err != nil {
		t.Fatalf("FindRun: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.PassedSteps != 1 {
		t.Fatalf("run = %+v", got)
	}
	if _, err := s.FindRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindRun missing = %v", err)
	}

	s.CreateRun(ctx, &models.ExecutionRun{RunID: "r2", Status: models.RunStatusRunning, StartTime: time.Now()})
	running, err := s.RunsWithStatus(ctx, models.RunStatusRunning, models.RunStatusPending)
	if err != nil || len(running) != 1 || running[0].RunID != "r2" {
		t.Fatalf("RunsWithStatus = %+v, %v", running, err)
	}
}
