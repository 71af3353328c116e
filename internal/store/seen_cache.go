package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
)

// SeenCache fronts a DedupStore with Redis. A Redis hit short-circuits Seen;
// a miss or a Redis error falls through to the backing store, which stays the
// source of truth.
type SeenCache struct {
	DedupStore
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewSeenCache wraps next.
func NewSeenCache(next DedupStore, client *redis.Client, ttl time.Duration, log logger.Logger) *SeenCache {
	return &SeenCache{
		DedupStore: next,
		client:     client,
		ttl:        ttl,
		log:        log.With(logger.String("component", "seen-cache")),
	}
}

func (s *SeenCache) key(campaignID string, key model.PostingKey) string {
	return fmt.Sprintf("seen:%s:%s", campaignID, key)
}

// Seen checks Redis first.
func (s *SeenCache) Seen(ctx context.Context, campaignID string, key model.PostingKey) (bool, error) {
	redisKey := s.key(campaignID, key)
	exists, err := s.client.Exists(ctx, redisKey).Result()
	if err != nil {
		s.log.Warn("redis error checking seen posting",
			logger.String("redis_key", redisKey),
			logger.Error(err),
		)
	} else if exists == 1 {
		return true, nil
	}

	seen, err := s.DedupStore.Seen(ctx, campaignID, key)
	if err != nil {
		return false, err
	}
	if seen {
		s.remember(ctx, redisKey)
	}
	return seen, nil
}

// MarkSeen writes through to the backing store, then Redis.
func (s *SeenCache) MarkSeen(ctx context.Context, campaignID string, key model.PostingKey) error {
	if err := s.DedupStore.MarkSeen(ctx, campaignID, key); err != nil {
		return err
	}
	s.remember(ctx, s.key(campaignID, key))
	return nil
}

// ExistingCard always asks the backing store.
func (s *SeenCache) ExistingCard(ctx context.Context, campaignID string, key model.PostingKey) (*kanban.ApplicationCard, bool, error) {
	return s.DedupStore.ExistingCard(ctx, campaignID, key)
}

func (s *SeenCache) remember(ctx context.Context, redisKey string) {
	if err := s.client.SetNX(ctx, redisKey, "1", s.ttl).Err(); err != nil {
		s.log.Warn("redis error marking seen posting",
			logger.String("redis_key", redisKey),
			logger.Error(err),
		)
	}
}
