package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"webflowwizard/engine/internal/api/handlers"
	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/recorder"
	"webflowwizard/engine/internal/services"
	"webflowwizard/engine/internal/store"
	"webflowwizard/engine/internal/target/htmlpage"
	"webflowwizard/engine/pkg/auth"
	"webflowwizard/engine/pkg/database"
)

const loginURL = "https://shop.test/login"

var site = htmlpage.MapLoader{
	loginURL: `<html><body><form action="/home">
		<input id="email" name="email"><button id="go">Sign in</button>
	</form></body></html>`,
	"https://shop.test/home": `<html><body><h1 id="welcome">Hi</h1></body></html>`,
}

type idleSession struct {
	*htmlpage.Page
	events chan recorder.RawEvent
	once   sync.Once
}

func (s *idleSession) TargetID() string                 { return "tab-1" }
func (s *idleSession) Events() <-chan recorder.RawEvent { return s.events }

func (s *idleSession) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router    *gin.Engine
	hub       *notify.Hub
	scheduler *services.Scheduler
	token     string
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zap.NewNop()
	hub := notify.NewHub(log)
	rec := recorder.NewManager(func(ctx context.Context, u string) (recorder.Session, error) {
		page, err := htmlpage.Open(ctx, site, u)
		if err != nil {
			return nil, err
		}
		return &idleSession{Page: page, events: make(chan recorder.RawEvent)}, nil
	}, recorder.Options{DebounceWindow: 10 * time.Millisecond}, hub, log)
	runs := executor.NewManager(func(ctx context.Context) (executor.Target, func(), error) {
		page, err := htmlpage.Open(ctx, site, loginURL)
		return page, func() {}, err
	}, 2, log)

	opts := executor.Options{Timeout: 200 * time.Millisecond, RetryCount: 1, PollInterval: 5 * time.Millisecond}
	ctrl := services.NewController(rec, runs, store.New(db), hub, opts, log)
	scheduler := services.NewScheduler(ctrl, log)

	hash, err := bcrypt.GenerateFromPassword([]byte("k3y"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	j := auth.NewJWT("test-secret", 60, string(hash))
	token, err := j.GenerateToken("tests")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	t.Cleanup(func() {
		ctrl.Shutdown()
		sqlDB.Close()
	})
	h := handlers.New(ctrl, scheduler, hub, j, log)
	return &testServer{router: SetupRoutes(h, j, log), hub: hub, scheduler: scheduler, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	token := s.token
	s.token = ""

	if env := s.do(t, http.MethodGet, "/api/v1/health", nil); env.Code != 200 {
		t.Fatalf("health = %+v", env)
	}
	if env := s.do(t, http.MethodGet, "/api/v1/workflows", nil); env.Code != 401 {
		t.Fatalf("unauthenticated list = %+v", env)
	}
	if env := s.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"client": "ci", "api_key": "nope"}); env.Code != 401 {
		t.Fatalf("bad key = %+v", env)
	}

	env := s.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"client": "ci", "api_key": "k3y"})
	var issued struct {
		Token string `json:"token"`
	}
	decode(t, env, &issued)
	if env.Code != 200 || issued.Token == "" {
		t.Fatalf("token exchange = %+v", env)
	}

	s.token = issued.Token
	if env := s.do(t, http.MethodGet, "/api/v1/workflows", nil); env.Code != 200 {
		t.Fatalf("list with exchanged token = %+v", env)
	}
	s.token = token + "x"
	if env := s.do(t, http.MethodGet, "/api/v1/workflows", nil); env.Code != 401 {
		t.Fatalf("tampered token = %+v", env)
	}
}

const loginWorkflow = `{
	"version": 1,
	"id": "login",
	"name": "login",
	"tags": ["smoke"],
	"steps": [
		{"id": "s1", "type": "navigation", "config": {"url": "https://shop.test/login"}, "timestamp": 1},
		{"id": "s2", "type": "input", "config": {"selector": "#email", "value": "me@shop.test"}, "timestamp": 2}
	]
}`

func TestWorkflowLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if env := s.do(t, http.MethodPost, "/api/v1/workflows", loginWorkflow); env.Code != 200 {
		t.Fatalf("create = %+v", env)
	}
	if env := s.do(t, http.MethodPost, "/api/v1/workflows", loginWorkflow); env.Code != 500 {
		t.Fatalf("duplicate create = %+v", env)
	}

	env := s.do(t, http.MethodGet, "/api/v1/workflows?page=1&page_size=5", nil)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, env, &page)
	if page.Total != 1 {
		t.Fatalf("list = %s", env.Data)
	}

	scheduled := strings.Replace(loginWorkflow, `"tags"`, `"cron_expression": "0 0 3 * * *", "tags"`, 1)
	if env := s.do(t, http.MethodPut, "/api/v1/workflows/login", scheduled); env.Code != 200 {
		t.Fatalf("update = %+v", env)
	}
	if !s.scheduler.Scheduled("login") {
		t.Fatal("update did not schedule the workflow")
	}

	env = s.do(t, http.MethodPost, "/api/v1/workflows/login/execute", nil)
	var started struct {
		RunID string `json:"run_id"`
	}
	decode(t, env, &started)
	if env.Code != 200 || started.RunID == "" {
		t.Fatalf("execute = %+v", env)
	}

	var run struct {
		Status      string `json:"status"`
		Trigger     string `json:"trigger"`
		PassedSteps int    `json:"passed_steps"`
		Results     []struct {
			StepID  string `json:"stepId"`
			Success bool   `json:"success"`
		} `json:"results"`
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		env = s.do(t, http.MethodGet, "/api/v1/executions/"+started.RunID, nil)
		decode(t, env, &run)
		if run.Status == "completed" || run.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never finished: %s", env.Data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if run.Status != "completed" || run.PassedSteps != 2 || len(run.Results) != 2 || run.Trigger != services.TriggerManual {
		t.Fatalf("run = %s", env.Data)
	}

	var status struct {
		Status string `json:"status"`
	}
	for {
		decode(t, s.do(t, http.MethodGet, "/api/v1/executions/status?run_id="+started.RunID, nil), &status)
		if status.Status == executor.StatusIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run still %s", status.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if env := s.do(t, http.MethodPost, "/api/v1/executions/"+started.RunID+"/stop", nil); env.Code != 404 {
		t.Fatalf("stop finished run = %+v", env)
	}
	if env := s.do(t, http.MethodDelete, "/api/v1/workflows/login", nil); env.Code != 200 {
		t.Fatalf("delete = %+v", env)
	}
	if s.scheduler.Scheduled("login") {
		t.Fatal("delete left the schedule behind")
	}
	if env := s.do(t, http.MethodGet, "/api/v1/workflows/login", nil); env.Code != 404 {
		t.Fatalf("get deleted = %+v", env)
	}
}

func TestCreateWorkflowRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	cases := map[string]string{
		"malformed":      `{"steps": [`,
		"missing name":   `{"id": "a", "steps": []}`,
		"bad step":       `{"name": "a", "steps": [{"id": "s1", "type": "click", "config": {}}]}`,
		"future version": `{"version": 9, "name": "a", "steps": []}`,
		"bad cron":       `{"name": "a", "cron_expression": "0 3 * * *", "steps": []}`,
	}
	for name, body := range cases {
		if env := s.do(t, http.MethodPost, "/api/v1/workflows", body); env.Code != 400 {
			t.Errorf("%s: code %d (%s)", name, env.Code, env.Message)
		}
	}
}

func TestRecordingEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if env := s.do(t, http.MethodPost, "/api/v1/recording/start", map[string]string{"target_url": "shop.test"}); env.Code != 400 {
		t.Fatalf("relative url = %+v", env)
	}

	env := s.do(t, http.MethodPost, "/api/v1/recording/start", map[string]string{"target_url": loginURL})
	var started struct {
		SessionID string `json:"session_id"`
	}
	decode(t, env, &started)
	if env.Code != 200 || started.SessionID == "" {
		t.Fatalf("start = %+v", env)
	}

	env = s.do(t, http.MethodGet, "/api/v1/recording/status?session_id="+started.SessionID, nil)
	var status struct {
		IsRecording bool              `json:"is_recording"`
		Steps       []json.RawMessage `json:"steps"`
	}
	decode(t, env, &status)
	if !status.IsRecording || status.Steps == nil {
		t.Fatalf("status = %s", env.Data)
	}

	save := map[string]interface{}{"session_id": started.SessionID, "name": "empty"}
	if env := s.do(t, http.MethodPost, "/api/v1/recording/save", save); env.Code != 409 {
		t.Fatalf("save while recording = %+v", env)
	}
	if env := s.do(t, http.MethodPost, "/api/v1/recording/stop", map[string]string{"session_id": started.SessionID}); env.Code != 200 {
		t.Fatalf("stop = %+v", env)
	}
	if env := s.do(t, http.MethodPost, "/api/v1/recording/save", save); env.Code != 200 {
		t.Fatalf("save = %+v", env)
	}
	if env := s.do(t, http.MethodGet, "/api/v1/recording/status?session_id="+started.SessionID, nil); env.Code != 404 {
		t.Fatalf("status after save = %+v", env)
	}
	if env := s.do(t, http.MethodGet, "/api/v1/recording/status", nil); env.Code != 400 {
		t.Fatalf("status without id = %+v", env)
	}
}

func TestExecutionStream(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/executions?run_id=r1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Subscribers("r1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.hub.Notify(notify.Event{Type: notify.ExecutionProgress, RunID: "other"})
	s.hub.Notify(notify.Event{Type: notify.ExecutionComplete, RunID: "r1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got notify.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != notify.ExecutionComplete || got.RunID != "r1" {
		t.Fatalf("event = %+v", got)
	}
}
