package database

import (
	"testing"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/config"
	"webflowwizard/engine/internal/models"
)

func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = ":memory:"
	cfg.Server.Mode = "release"

	db, err := Open(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	for _, table := range []interface{}{&models.WorkflowRecord{}, &models.ExecutionRun{}} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table for %T not migrated", table)
		}
	}
}
