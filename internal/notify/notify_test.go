package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/notify"
)

func TestRedisNotifier_PublishesOnChannel(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := rdb.Subscribe(ctx, notify.TypeCardMoved, notify.TypeDispatchFailed)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := notify.NewRedisNotifier(rdb, "", logger.NewNop())
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ev := kanban.PipelineEvent{ID: "ev1", CardID: "card1", UserID: "u1", From: kanban.StatusApplied, To: kanban.StatusInterviewing, At: at, Actor: "u1"}
	require.NoError(t, n.Emit(ctx, notify.FromEvent(ev)))

	failed := notify.FromEvent(ev)
	failed.Type, failed.Attempts, failed.Error = notify.TypeDispatchFailed, 5, "timeout"
	require.NoError(t, n.Emit(ctx, failed))

	ch := sub.Channel()
	for _, want := range []struct {
		channel string
		typ     string
	}{{notify.TypeCardMoved, notify.TypeCardMoved}, {notify.TypeDispatchFailed, notify.TypeDispatchFailed}} {
		select {
		case msg := <-ch:
			assert.Equal(t, want.channel, msg.Channel)
			var got notify.Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, want.typ, got.Type)
			assert.Equal(t, "card1", got.CardID)
			assert.Equal(t, kanban.StatusInterviewing, got.To)
		case <-time.After(2 * time.Second):
			t.Fatalf("no message on %s", want.channel)
		}
	}
}

func TestRedisNotifier_ErrorWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	n := notify.NewRedisNotifier(rdb, "custom", logger.NewNop())
	assert.Error(t, n.Emit(context.Background(), notify.Notification{Type: notify.TypeCardMoved}))
}
