package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/digest/pipeline"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, userID uuid.UUID, buffer int) *Client {
	c := &Client{Hub: h, UserID: userID, Send: make(chan []byte, buffer)}
	h.add(c)
	return c
}

func readMessage(t *testing.T, c *Client) ProgressMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg ProgressMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatal("no message queued")
		return ProgressMessage{}
	}
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	h := NewHub(nil, logger.NewNopLogger())
	alice, bob := uuid.New(), uuid.New()

	phone := newTestClient(h, alice, 4)
	laptop := newTestClient(h, alice, 4)
	other := newTestClient(h, bob, 4)
	assert.Equal(t, 2, h.Connected(alice))

	runId := uuid.New()
	h.Send(alice, ProgressMessage{Type: MessageStageStarted, RunId: runId, Stage: "extracting"})

	for _, c := range []*Client{phone, laptop} {
		msg := readMessage(t, c)
		assert.Equal(t, runId, msg.RunId)
		assert.Equal(t, "extracting", msg.Stage)
	}
	assert.Len(t, other.Send, 0)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h := NewHub(nil, logger.NewNopLogger())
	userID := uuid.New()
	slow := newTestClient(h, userID, 1)

	h.Send(userID, ProgressMessage{Type: MessageStageStarted})
	h.Send(userID, ProgressMessage{Type: MessageStageFinished})

	assert.Equal(t, 0, h.Connected(userID))

	// buffered message survives, then the channel reports closed
	_, ok := <-slow.Send
	assert.True(t, ok)
	_, ok = <-slow.Send
	assert.False(t, ok)

	// removing twice is harmless
	h.remove(slow)
}

func TestHub_Observer(t *testing.T) {
	h := NewHub(nil, logger.NewNopLogger())
	run := &pipeline.Run{Id: uuid.New(), UserId: uuid.New(), State: pipeline.StateFailed, StartedAt: time.Now()}
	c := newTestClient(h, run.UserId, 8)

	h.StageStarted(run, pipeline.StateDeduplicating)
	h.StageFinished(run, pipeline.StateDeduplicating, 1500*time.Millisecond, apperr.Embedding("embed", nil))
	h.RunFinished(run, nil, errors.New("connection refused to 10.0.0.3"))

	started := readMessage(t, c)
	assert.Equal(t, MessageStageStarted, started.Type)
	assert.Equal(t, "deduplicating", started.Stage)

	finished := readMessage(t, c)
	assert.Equal(t, MessageStageFinished, finished.Type)
	assert.Equal(t, int64(1500), finished.ElapsedMs)
	assert.Equal(t, string(apperr.KindEmbedding), finished.Kind)

	done := readMessage(t, c)
	assert.Equal(t, MessageRunFinished, done.Type)
	assert.Equal(t, "failed", done.State)
	assert.Equal(t, string(apperr.KindInternal), done.Kind)
	assert.Empty(t, done.Error)
	assert.Nil(t, done.Stats)
}

func TestHub_RunFinishedCarriesStats(t *testing.T) {
	h := NewHub(nil, logger.NewNopLogger())
	run := &pipeline.Run{Id: uuid.New(), UserId: uuid.New(), State: pipeline.StateDone, StartedAt: time.Now()}
	c := newTestClient(h, run.UserId, 1)

	h.RunFinished(run, &pipeline.Result{Stats: pipeline.RunStats{New: 3, Known: 1}}, nil)

	msg := readMessage(t, c)
	require.NotNil(t, msg.Stats)
	assert.Equal(t, 3, msg.Stats.New)
	assert.Equal(t, 1, msg.Stats.Known)
	assert.Equal(t, "done", msg.State)
}

func waitMessage(t *testing.T, c *Client) ProgressMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg ProgressMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message relayed")
		return ProgressMessage{}
	}
}

func TestHub_RelaysAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewHub(newClient(), logger.NewNopLogger())
	b := NewHub(newClient(), logger.NewNopLogger())
	go a.Run(ctx)
	go b.Run(ctx)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(clusterChannel)[clusterChannel] == 2
	}, 2*time.Second, 5*time.Millisecond)

	userID := uuid.New()
	onA := newTestClient(a, userID, 8)
	onB := newTestClient(b, userID, 8)
	bystander := newTestClient(b, uuid.New(), 8)

	// garbage on the channel is skipped without stopping the relay
	require.NoError(t, newClient().Publish(ctx, clusterChannel, "not json").Err())

	runId := uuid.New()
	a.Send(userID, ProgressMessage{Type: MessageStageStarted, RunId: runId, Stage: "committing"})

	relayed := waitMessage(t, onB)
	assert.Equal(t, runId, relayed.RunId)
	assert.Equal(t, "committing", relayed.Stage)

	local := readMessage(t, onA)
	assert.Equal(t, runId, local.RunId)
	assert.Never(t, func() bool { return len(onA.Send) > 0 }, 100*time.Millisecond, 5*time.Millisecond,
		"origin instance must not redeliver its own message")
	assert.Len(t, bystander.Send, 0)
}
