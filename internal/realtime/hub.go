package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signstream/streamer/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// outboxSize bounds events waiting for the publish goroutine. Overflow is dropped.
	outboxSize = 256
)

// CommandHandler applies a command sent by a UI client. The session id is uuid.Nil
// when the client watches every session.
type CommandHandler func(sessionID uuid.UUID, command string, data json.RawMessage) error

// Hub fans session events out to connected UI clients. Clients either watch one
// session or all of them (uuid.Nil). With Redis configured every event goes through
// the shared channel so each instance broadcasts it exactly once.
type Hub struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	logger    *zap.Logger
	redis     RedisPublisher
	redisSub  RedisSubscriber
	subCancel func()
	onCommand CommandHandler
	origins   func(origin string) bool

	outbox   chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	pumpDone chan struct{}
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSessionEvent(payload []byte) error
}

// RedisSubscriber subscribes to the session event channel and invokes handler for each event.
type RedisSubscriber interface {
	SubscribeSessionEvents(handler func(payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis arguments may be nil.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
		outbox:   make(chan []byte, outboxSize),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go h.publishPump()
	return h
}

// Close stops the publish goroutine and the Redis subscription. Queued events are flushed first.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
		<-h.pumpDone
		h.mu.Lock()
		if h.subCancel != nil {
			h.subCancel()
			h.subCancel = nil
		}
		h.mu.Unlock()
	})
}

// SetCommandHandler sets the callback for commands sent by clients.
func (h *Hub) SetCommandHandler(fn CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommand = fn
}

// SetOriginPolicy restricts which browser origins may open a socket. Without one every origin is accepted.
func (h *Hub) SetOriginPolicy(allows func(origin string) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.origins = allows
}

func (h *Hub) allowsOrigin(origin string) bool {
	h.mu.RLock()
	fn := h.origins
	h.mu.RUnlock()
	return fn == nil || fn(origin)
}

// Register adds a client. Starts the Redis subscription if it is not running yet,
// so a failed attempt is retried by the next client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.subCancel == nil && h.redisSub != nil {
		cancel, err := h.redisSub.SubscribeSessionEvents(h.broadcastRaw)
		if err != nil {
			h.logger.Warn("redis subscribe failed, serving local events only", zap.Error(err))
		} else {
			h.subCancel = cancel
		}
	}
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("ui client connected", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	if len(h.clients) == 0 && h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	h.mu.Unlock()
	h.logger.Debug("ui client disconnected", zap.String("client_id", c.ID))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishSessionEvent queues an event for delivery and returns at once. It runs on the
// session goroutine, so Redis round trips happen on the hub's publish goroutine.
func (h *Hub) PublishSessionEvent(ev models.SessionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("marshal session event", zap.Error(err))
		return
	}
	select {
	case <-h.stop:
		return
	default:
	}
	select {
	case h.outbox <- data:
	default:
		h.logger.Warn("session event dropped, outbox full",
			zap.String("type", ev.Type), zap.String("session_id", ev.SessionID.String()))
	}
}

func (h *Hub) publishPump() {
	defer close(h.pumpDone)
	for {
		select {
		case data := <-h.outbox:
			h.deliver(data)
		case <-h.stop:
			for {
				select {
				case data := <-h.outbox:
					h.deliver(data)
				default:
					return
				}
			}
		}
	}
}

// deliver publishes to Redis when available. Local clients are served directly
// unless this instance's subscription will echo the event back.
func (h *Hub) deliver(data []byte) {
	published := false
	if h.redis != nil {
		if err := h.redis.PublishSessionEvent(data); err != nil {
			h.logger.Debug("redis publish failed, broadcasting locally", zap.Error(err))
		} else {
			published = true
		}
	}
	h.mu.RLock()
	subscribed := h.subCancel != nil
	h.mu.RUnlock()
	if published && subscribed {
		return
	}
	h.broadcastRaw(data)
}

// broadcastRaw sends an encoded event to every local client watching its session.
func (h *Hub) broadcastRaw(data []byte) {
	var head struct {
		Type      string    `json:"type"`
		SessionID uuid.UUID `json:"session_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return
	}
	msg := WSMessage{Event: head.Type, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.SessionID != uuid.Nil && c.SessionID != head.SessionID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// sendTo queues a message for one client.
func (h *Hub) sendTo(c *Client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func (h *Hub) command(c *Client, command string, data json.RawMessage) error {
	h.mu.RLock()
	fn := h.onCommand
	h.mu.RUnlock()
	if fn == nil {
		return errNoCommands
	}
	return fn(c.SessionID, command, data)
}
