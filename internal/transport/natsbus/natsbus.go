// Package natsbus exposes the controller over NATS request/reply and publishes
// notifications on per-type subjects.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/services"
)

const (
	SubjectRecordingStart = "webflow.recording.start"
	SubjectRecordingStop  = "webflow.recording.stop"
	SubjectExecutionStart = "webflow.execution.start"
	SubjectExecutionStop  = "webflow.execution.stop"
	SubjectExecStatus     = "webflow.execution.status"

	// EventPrefix is followed by the notification type.
	EventPrefix = "webflow.events."

	queueGroup     = "webflow-engine"
	requestTimeout = 30 * time.Second
)

// Reply is the body of every response.
type Reply struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type recordingRequest struct {
	TargetURL string `json:"target_url"`
	SessionID string `json:"session_id"`
}

type executionRequest struct {
	WorkflowID      string          `json:"workflow_id"`
	Workflow        json.RawMessage `json:"workflow"`
	RunID           string          `json:"run_id"`
	ContinueOnError *bool           `json:"continue_on_error"`
}

// Connect dials the NATS server at url with reconnect handling.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	logger = logger.Named("nats")
	nc, err := nats.Connect(
		url,
		nats.Name("webflow-engine"),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("connection closed")
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

type Bus struct {
	nc     *nats.Conn
	ctrl   *services.Controller
	subs   []*nats.Subscription
	logger *zap.Logger
}

func NewBus(nc *nats.Conn, ctrl *services.Controller, logger *zap.Logger) *Bus {
	return &Bus{nc: nc, ctrl: ctrl, logger: logger.Named("natsbus")}
}

// Start subscribes to the request subjects. Several engines may share the
// subjects through a queue group.
func (b *Bus) Start() error {
	for _, subject := range []string{
		SubjectRecordingStart,
		SubjectRecordingStop,
		SubjectExecutionStart,
		SubjectExecutionStop,
		SubjectExecStatus,
	} {
		sub, err := b.nc.QueueSubscribe(subject, queueGroup, b.handle)
		if err != nil {
			b.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		b.subs = append(b.subs, sub)
	}
	b.logger.Info("listening for requests", zap.Int("subjects", len(b.subs)))
	return nil
}

func (b *Bus) Close() {
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	b.subs = nil
}

func (b *Bus) handle(msg *nats.Msg) {
	if msg.Reply == "" {
		b.logger.Warn("request without reply subject", zap.String("subject", msg.Subject))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	reply := b.dispatch(ctx, msg.Subject, msg.Data)
	data, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error("failed to encode reply", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("failed to send reply", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (b *Bus) dispatch(ctx context.Context, subject string, data []byte) Reply {
	switch subject {
	case SubjectRecordingStart, SubjectRecordingStop:
		var req recordingRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return failure(fmt.Errorf("failed to parse request: %w", err))
		}
		if subject == SubjectRecordingStart {
			sessionID, err := b.ctrl.StartRecording(ctx, req.TargetURL)
			if err != nil {
				return failure(err)
			}
			return Reply{Success: true, Data: map[string]string{"session_id": sessionID}}
		}
		steps, err := b.ctrl.StopRecording(ctx, req.SessionID)
		if err != nil {
			return failure(err)
		}
		if steps == nil {
			steps = []models.Step{}
		}
		return Reply{Success: true, Data: map[string]interface{}{"session_id": req.SessionID, "steps": steps}}

	case SubjectExecutionStart:
		var req executionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return failure(fmt.Errorf("failed to parse request: %w", err))
		}
		runID, err := b.execute(ctx, req)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: true, Data: map[string]string{"run_id": runID}}

	case SubjectExecutionStop, SubjectExecStatus:
		var req executionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return failure(fmt.Errorf("failed to parse request: %w", err))
		}
		if req.RunID == "" {
			return failure(errors.New("run_id is required"))
		}
		if subject == SubjectExecStatus {
			return Reply{Success: true, Data: b.ctrl.ExecutionStatus(req.RunID)}
		}
		if err := b.ctrl.StopExecution(req.RunID); err != nil {
			return failure(err)
		}
		return Reply{Success: true}
	}
	return failure(fmt.Errorf("unknown subject %s", subject))
}

// execute replays either a stored workflow or one carried inline.
func (b *Bus) execute(ctx context.Context, req executionRequest) (string, error) {
	exec := services.ExecuteRequest{ContinueOnError: req.ContinueOnError}
	if len(req.Workflow) > 0 {
		wf, err := models.DecodeWorkflow(req.Workflow)
		if err != nil {
			return "", err
		}
		return b.ctrl.ExecuteWorkflow(ctx, wf, exec)
	}
	if req.WorkflowID == "" {
		return "", errors.New("workflow_id or workflow is required")
	}
	return b.ctrl.ExecuteStored(ctx, req.WorkflowID, exec)
}

func failure(err error) Reply {
	return Reply{Success: false, Error: err.Error()}
}
