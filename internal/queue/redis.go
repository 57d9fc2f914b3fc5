package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog/taxonomy/internal/config"
	"catalog/taxonomy/internal/domain"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	fieldCollection    = "collection"
	fieldSubcategoryID = "subcategory_id"
	fieldOrigin        = "origin"

	// streamMaxLen caps the invalidation stream; consumers only read new entries.
	streamMaxLen = 1000
	readBlock    = 5 * time.Second
	retryDelay   = time.Second
)

// InvalidationBus carries cache invalidations between console instances that
// share one Catalog API.
type InvalidationBus interface {
	PublishInvalidation(ctx context.Context, inv domain.Invalidation) error
	// Consume blocks, calling handle for every invalidation published after it
	// started, until ctx is cancelled.
	Consume(ctx context.Context, handle func(domain.Invalidation)) error
	Close() error
}

type redisBus struct {
	redisClient *redis.Client
	stream      string
}

func NewRedisBus(redisClient *redis.Client, cfg config.RedisConfig) InvalidationBus {
	return &redisBus{
		redisClient: redisClient,
		stream:      cfg.Stream,
	}
}

func (b *redisBus) PublishInvalidation(ctx context.Context, inv domain.Invalidation) error {
	messageID, err := b.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: encodeInvalidation(inv),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add invalidation to Redis stream %s: %w", b.stream, err)
	}

	log.Debugf("Published invalidation of %s to stream %s with message ID: %s", inv.Collection, b.stream, messageID)
	return nil
}

func (b *redisBus) Consume(ctx context.Context, handle func(domain.Invalidation)) error {
	lastID := "$"

	log.Infof("📡 Listening for invalidations on stream %s", b.stream)

	for {
		result, err := b.redisClient.XRead(ctx, &redis.XReadArgs{
			Streams: []string{b.stream, lastID},
			Count:   10,
			Block:   readBlock,
		}).Result()

		if ctx.Err() != nil {
			log.Info("🛑 Invalidation consumer stopped")
			return nil
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // No new messages
			}
			log.Warnf("⚠️ Failed to read from Redis stream %s: %v", b.stream, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, s := range result {
			for _, msg := range s.Messages {
				lastID = msg.ID

				inv, err := decodeInvalidation(msg)
				if err != nil {
					log.Warnf("⚠️ Skipping message %s: %v", msg.ID, err)
					continue
				}
				handle(inv)
			}
		}
	}
}

func (b *redisBus) Close() error {
	if b.redisClient != nil {
		return b.redisClient.Close()
	}
	return nil
}

func encodeInvalidation(inv domain.Invalidation) map[string]interface{} {
	return map[string]interface{}{
		fieldCollection:    string(inv.Collection),
		fieldSubcategoryID: inv.SubcategoryID,
		fieldOrigin:        inv.Origin,
	}
}

func decodeInvalidation(msg redis.XMessage) (domain.Invalidation, error) {
	collection, _ := msg.Values[fieldCollection].(string)
	switch domain.Collection(collection) {
	case domain.CollectionCategories, domain.CollectionSubSubcategories:
	default:
		return domain.Invalidation{}, fmt.Errorf("unknown collection %q", collection)
	}

	subcategoryID, _ := msg.Values[fieldSubcategoryID].(string)
	origin, _ := msg.Values[fieldOrigin].(string)

	return domain.Invalidation{
		Collection:    domain.Collection(collection),
		SubcategoryID: subcategoryID,
		Origin:        origin,
	}, nil
}
