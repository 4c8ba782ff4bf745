package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userChannelPrefix = "events:user:"

func userChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

// Connection represents one websocket client
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans events out to websocket clients, bridged across API instances via
// Redis pub/sub. Redis channel subscriptions are reference-counted per user:
// the first local connection for a user subscribes the channel, the last one
// leaving unsubscribes it, so the core's change notifications are consumed
// exactly once per instance however many screens are open.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]map[*Connection]bool
	subRefs     map[uuid.UUID]int

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates the event hub. redisClient may be nil, in which case events
// are delivered to local connections only.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		subRefs:     make(map[uuid.UUID]int),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisClient != nil {
		// Subscribe with no channels; user channels are added on demand.
		h.pubsub = redisClient.Subscribe(ctx)
	}

	return h
}

// Run starts the hub loop (call in a goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.addConnection(conn)

		case conn := <-h.unregister:
			h.removeConnection(conn)
		}
	}
}

// Stop shuts the hub down and closes all client connections
func (h *Hub) Stop() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.connections {
		for conn := range conns {
			close(conn.Send)
		}
	}
	h.connections = make(map[uuid.UUID]map[*Connection]bool)
	h.subRefs = make(map[uuid.UUID]int)
}

// Register attaches a websocket connection to the hub
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister detaches a websocket connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

func (h *Hub) addConnection(conn *Connection) {
	h.mu.Lock()
	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]bool)
	}
	h.connections[conn.UserID][conn] = true
	h.subRefs[conn.UserID]++
	first := h.subRefs[conn.UserID] == 1
	h.mu.Unlock()

	if first && h.pubsub != nil {
		if err := h.pubsub.Subscribe(h.ctx, userChannel(conn.UserID)); err != nil {
			log.Error().Err(err).Str("user_id", conn.UserID.String()).Msg("Failed to subscribe user channel")
		}
	}
	log.Debug().Str("user_id", conn.UserID.String()).Msg("Event stream connected")
}

func (h *Hub) removeConnection(conn *Connection) {
	h.mu.Lock()
	conns, ok := h.connections[conn.UserID]
	if !ok || !conns[conn] {
		h.mu.Unlock()
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.connections, conn.UserID)
	}
	h.subRefs[conn.UserID]--
	last := h.subRefs[conn.UserID] == 0
	if last {
		delete(h.subRefs, conn.UserID)
	}
	h.mu.Unlock()

	close(conn.Send)

	if last && h.pubsub != nil {
		if err := h.pubsub.Unsubscribe(context.Background(), userChannel(conn.UserID)); err != nil {
			log.Error().Err(err).Str("user_id", conn.UserID.String()).Msg("Failed to unsubscribe user channel")
		}
	}
	log.Debug().Str("user_id", conn.UserID.String()).Msg("Event stream disconnected")
}

// Publish sends an event to every open connection for the user, on every
// instance. Best effort: a full client buffer drops the event rather than
// blocking a money operation.
func (h *Hub) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	if h.redis != nil {
		if err := h.redis.Publish(ctx, userChannel(e.UserID), payload).Err(); err != nil {
			log.Error().Err(err).Str("user_id", e.UserID.String()).Msg("Failed to publish event, delivering locally")
			h.deliverLocal(e.UserID, payload)
		}
		return
	}

	h.deliverLocal(e.UserID, payload)
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, err := uuid.Parse(msg.Channel[len(userChannelPrefix):])
			if err != nil {
				continue
			}
			h.deliverLocal(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) deliverLocal(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[userID] {
		select {
		case conn.Send <- payload:
		default:
			log.Warn().Str("user_id", userID.String()).Msg("Event dropped, client buffer full")
		}
	}
}
