package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/digest/pipeline"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "digest_progress"

// ProgressMessage is what connected clients receive as a run advances.
type ProgressMessage struct {
	Type      string             `json:"type"`
	RunId     uuid.UUID          `json:"run_id"`
	Stage     string             `json:"stage,omitempty"`
	State     string             `json:"state,omitempty"`
	ElapsedMs int64              `json:"elapsed_ms,omitempty"`
	Kind      string             `json:"kind,omitempty"`
	Error     string             `json:"error,omitempty"`
	Stats     *pipeline.RunStats `json:"stats,omitempty"`
}

const (
	MessageStageStarted  = "stage_started"
	MessageStageFinished = "stage_finished"
	MessageRunFinished   = "run_finished"
)

type clusterEnvelope struct {
	Origin       string          `json:"origin"`
	TargetUserID string          `json:"target_user_id"`
	Message      json.RawMessage `json:"message"`
}

// Hub fans run progress out to every connection a user has open. With a
// redis client it also relays to other instances.
type Hub struct {
	// Registered clients map: UserID -> List of Clients (multi-device)
	clients map[uuid.UUID][]*Client
	mu      sync.RWMutex

	rdb      *redis.Client
	instance string

	logger logger.ILogger
}

var _ pipeline.Observer = (*Hub)(nil)

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:  make(map[uuid.UUID][]*Client),
		rdb:      rdb,
		instance: uuid.NewString(),
		logger:   log,
	}
}

// Run relays messages published by other instances until ctx is done.
// Without redis it only waits.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}

	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env clusterEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn("HUB", "Malformed cluster message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if env.Origin == h.instance {
				continue
			}
			uid, err := uuid.Parse(env.TargetUserID)
			if err != nil {
				continue
			}
			h.deliver(uid, env.Message)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.UserID] = append(h.clients[c.UserID], c)
	h.mu.Unlock()
	h.logger.Info("HUB", "Client registered", map[string]interface{}{"user_id": c.UserID.String()})
}

// remove is idempotent; the Send channel is closed exactly once.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[c.UserID]
	for i, existing := range clients {
		if existing == c {
			h.clients[c.UserID] = append(clients[:i], clients[i+1:]...)
			close(c.Send)
			break
		}
	}
	if len(h.clients[c.UserID]) == 0 {
		delete(h.clients, c.UserID)
	}
}

// Connected reports how many connections userID has on this instance.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Send delivers msg to userID's local connections and, with redis, to the
// other instances. It never blocks on a slow client.
func (h *Hub) Send(userID uuid.UUID, msg ProgressMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.deliver(userID, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterEnvelope{
			Origin:       h.instance,
			TargetUserID: userID.String(),
			Message:      data,
		})
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.rdb.Publish(ctx, clusterChannel, payload).Err(); err != nil {
				h.logger.Warn("HUB", "Failed to relay progress", map[string]interface{}{"error": err.Error()})
			}
		}()
	}
}

func (h *Hub) deliver(userID uuid.UUID, data []byte) {
	var stale []*Client

	h.mu.RLock()
	for _, client := range h.clients[userID] {
		select {
		case client.Send <- data:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		h.logger.Warn("HUB", "Client Send buffer full, dropping connection", map[string]interface{}{"user_id": userID.String()})
		h.remove(client)
	}
}

func (h *Hub) StageStarted(run *pipeline.Run, stage pipeline.State) {
	h.Send(run.UserId, ProgressMessage{
		Type:  MessageStageStarted,
		RunId: run.Id,
		Stage: string(stage),
	})
}

func (h *Hub) StageFinished(run *pipeline.Run, stage pipeline.State, elapsed time.Duration, err error) {
	msg := ProgressMessage{
		Type:      MessageStageFinished,
		RunId:     run.Id,
		Stage:     string(stage),
		ElapsedMs: elapsed.Milliseconds(),
	}
	if err != nil {
		msg.Kind = string(apperr.KindOf(err))
	}
	h.Send(run.UserId, msg)
}

func (h *Hub) RunFinished(run *pipeline.Run, result *pipeline.Result, err error) {
	msg := ProgressMessage{
		Type:      MessageRunFinished,
		RunId:     run.Id,
		State:     string(run.State),
		ElapsedMs: time.Since(run.StartedAt).Milliseconds(),
	}
	if result != nil {
		stats := result.Stats
		msg.Stats = &stats
	}
	if err != nil {
		msg.Kind = string(apperr.KindOf(err))
		if msg.Kind != string(apperr.KindInternal) {
			msg.Error = err.Error()
		}
	}
	h.Send(run.UserId, msg)
}
