// Package stream fans application-state events out to websocket clients,
// keyed by topic. With redis configured every instance publishes to and
// receives from a shared pattern subscription, so a client connected to any
// instance sees every event for its topic.
package stream

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"backend-territory/internal/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "stream:"

// Event is the JSON frame written to websocket clients.
type Event struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	At    int64  `json:"at"`
}

type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     *slog.Logger
	now     func() time.Time
	done    chan struct{}
}

type Client struct {
	Topic string
	Send  chan []byte
}

func UserTopic(userID string) string       { return "user:" + userID }
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// NewHub starts the redis pattern subscription when redisClient is non-nil.
// If the subscription cannot be confirmed the hub delivers locally only.
func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		log:     logger.L(),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Warn("stream redis subscribe failed, delivering locally", "error", err)
		_ = pubsub.Close()
		h.redis = nil
		close(h.done)
		return h
	}
	h.pubsub = pubsub
	go h.forward()
	return h
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

// Unregister removes client and closes its Send channel. Deliveries hold the
// read lock, so a close can never race a send.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Publish sends an event to every client of topic on every instance.
func (h *Hub) Publish(ctx context.Context, topic, eventType string, data any) error {
	payload, err := json.Marshal(Event{Topic: topic, Type: eventType, Data: data, At: h.now().UnixMilli()})
	if err != nil {
		return err
	}
	h.Broadcast(ctx, topic, payload)
	return nil
}

// NotifyUser publishes to the user's topic and logs failures.
func (h *Hub) NotifyUser(ctx context.Context, userID, eventType string, data any) {
	if err := h.Publish(ctx, UserTopic(userID), eventType, data); err != nil {
		h.log.Warn("notify user failed", "user_id", userID, "type", eventType, "error", err)
	}
}

// Broadcast routes a raw payload through redis when subscribed, otherwise
// straight to local clients. A redis publish failure falls back to local
// delivery.
func (h *Hub) Broadcast(ctx context.Context, topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(ctx, channelPrefix+topic, payload).Err()
		if err == nil {
			return
		}
		h.log.Warn("redis publish failed", "topic", topic, "error", err)
	}
	h.deliver(topic, payload)
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
			h.log.Debug("stream client lagging, dropped event", "topic", topic)
		}
	}
}

func (h *Hub) forward() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		topic, ok := strings.CutPrefix(msg.Channel, channelPrefix)
		if !ok || topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

// Close stops the redis subscription and waits for the forwarder to exit.
func (h *Hub) Close() error {
	var err error
	if h.pubsub != nil {
		err = h.pubsub.Close()
	}
	<-h.done
	return err
}

func (h *Hub) clientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
