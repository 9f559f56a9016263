package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	subscriberSize = 64
)

// Hub forwards events to websocket connections subscribed to the event topic.
// Slow subscribers lose events instead of stalling the sender.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *zap.Logger
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger.Named("hub"),
	}
}

func (h *Hub) Notify(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[e.Topic()] {
		select {
		case s.send <- e:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", e.Topic()), zap.String("type", string(e.Type)))
		}
	}
}

// Serve attaches conn to topic and blocks until the client goes away.
func (h *Hub) Serve(topic string, conn *websocket.Conn) {
	s := &subscriber{conn: conn, send: make(chan Event, subscriberSize)}
	h.add(topic, s)
	defer h.remove(topic, s)

	done := make(chan struct{})
	go h.writeLoop(s, done)
	defer close(done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("topic", topic), zap.Error(err))
			}
			return
		}
	}
}

// Subscribers reports how many connections listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) writeLoop(s *subscriber, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(e); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) add(topic string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][s] = struct{}{}
}

func (h *Hub) remove(topic string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[topic], s)
	if len(h.subs[topic]) == 0 {
		delete(h.subs, topic)
	}
}
