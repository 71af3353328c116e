// Package notify delivers notification events to the rest of the platform
// over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
)

// Notification types. Each is published on the channel of the same name.
const (
	TypeCardMoved      = "EVENT_CARD_MOVED"
	TypeDispatchFailed = "DISPATCH_FAILED"
)

// Notification is the JSON payload published for subscribers such as the
// gateway's SSE stream.
type Notification struct {
	Type       string        `json:"type"`
	EventID    string        `json:"eventId"`
	CardID     string        `json:"applicationId"`
	CampaignID string        `json:"campaignId"`
	UserID     string        `json:"userId"`
	From       kanban.Status `json:"from,omitempty"`
	To         kanban.Status `json:"to"`
	Actor      string        `json:"actor"`
	At         time.Time     `json:"at"`
	Attempts   int           `json:"attempts,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// FromEvent builds a card-moved notification.
func FromEvent(ev kanban.PipelineEvent) Notification {
	return Notification{
		Type:       TypeCardMoved,
		EventID:    ev.ID,
		CardID:     ev.CardID,
		CampaignID: ev.CampaignID,
		UserID:     ev.UserID,
		From:       ev.From,
		To:         ev.To,
		Actor:      ev.Actor,
		At:         ev.At,
	}
}

// RedisNotifier publishes notifications with PUBLISH.
type RedisNotifier struct {
	rdb      *redis.Client
	channels map[string]string
	log      logger.Logger
}

// NewRedisNotifier publishes card moves on cardMovedChannel (TypeCardMoved
// when empty) and dispatch failures on TypeDispatchFailed.
func NewRedisNotifier(rdb *redis.Client, cardMovedChannel string, log logger.Logger) *RedisNotifier {
	if cardMovedChannel == "" {
		cardMovedChannel = TypeCardMoved
	}
	return &RedisNotifier{
		rdb: rdb,
		channels: map[string]string{
			TypeCardMoved:      cardMovedChannel,
			TypeDispatchFailed: TypeDispatchFailed,
		},
		log: log.With(logger.String("component", "notifier")),
	}
}

// Emit publishes n. Callers treat failures as non-fatal.
func (r *RedisNotifier) Emit(ctx context.Context, n Notification) error {
	channel, ok := r.channels[n.Type]
	if !ok {
		channel = n.Type
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	r.log.Debug("notification published",
		logger.String("channel", channel),
		logger.String("card_id", n.CardID),
	)
	return nil
}
