package natsbus

import (
	"encoding/json"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/notify"
)

// publisher is the part of *nats.Conn the notifier needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards notifications to EventPrefix + event type.
type Publisher struct {
	conn   publisher
	logger *zap.Logger
}

func NewPublisher(conn publisher, logger *zap.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger.Named("nats_publisher")}
}

func (p *Publisher) Notify(e notify.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	if err := p.conn.Publish(EventPrefix+string(e.Type), data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
