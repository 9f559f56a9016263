package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Executor.Timeout != 30*time.Second || cfg.Executor.RetryCount != 3 {
		t.Fatalf("executor defaults = %+v", cfg.Executor)
	}
	if cfg.Recorder.DebounceWindow != 500*time.Millisecond {
		t.Fatalf("debounce = %v", cfg.Recorder.DebounceWindow)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("Addr = %s", cfg.Addr())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("EXECUTOR_TIMEOUT", "2s")
	t.Setenv("EXECUTOR_STEP_DELAY", "250")
	t.Setenv("EXECUTOR_CONTINUE_ON_ERROR", "true")
	t.Setenv("RECORDER_VOLATILE_CLASSES", "^tw-, ^ng- ,")
	t.Setenv("CHROME_BACKEND", "rod")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GetDSN() != ":memory:" {
		t.Fatalf("DSN = %s", cfg.GetDSN())
	}
	if cfg.Executor.Timeout != 2*time.Second || cfg.Executor.DelayBetweenSteps != 250*time.Millisecond {
		t.Fatalf("durations = %v, %v", cfg.Executor.Timeout, cfg.Executor.DelayBetweenSteps)
	}
	if !cfg.Executor.ContinueOnError {
		t.Fatal("continue on error not read")
	}
	if want := []string{"^tw-", "^ng-"}; !reflect.DeepEqual(cfg.Recorder.VolatileClasses, want) {
		t.Fatalf("volatile classes = %q", cfg.Recorder.VolatileClasses)
	}
	if cfg.Chrome.Backend != "rod" {
		t.Fatalf("backend = %s", cfg.Chrome.Backend)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	cfg := &Config{Database: DatabaseConfig{
		Driver: "mysql", Username: "u", Password: "p", Host: "db", Port: "3306", Database: "webflow", Charset: "utf8mb4",
	}}
	want := "u:p@tcp(db:3306)/webflow?charset=utf8mb4&parseTime=True&loc=Local"
	if got := cfg.GetDSN(); got != want {
		t.Fatalf("DSN = %s", got)
	}
}
