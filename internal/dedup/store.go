package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/config"
	"github.com/LiamFearon/LocalAINews/internal/logger"
)

// ErrStoreUnavailable wraps every backend failure. Callers treat it as fatal for the
// current ingestion cycle.
var ErrStoreUnavailable = errors.New("seen store unavailable")

// Store is the persisted Seen-Set: article ids that already produced a review post.
type Store interface {
	HasSeen(ctx context.Context, id string) (bool, error)
	// MarkSeen is idempotent; re-marking keeps the original first-seen time.
	MarkSeen(ctx context.Context, id string) error
	// FirstSeen returns when id was first marked.
	FirstSeen(ctx context.Context, id string) (time.Time, bool, error)
	Close() error
}

// Open builds the backend selected in cfg.
func Open(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (Store, error) {
	log = logger.Ensure(log)
	switch cfg.Backend {
	case config.StoreBolt, "":
		s, err := OpenBolt(cfg.BoltPath, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		log.InfoObj("seen store opened", "dedup_store_open", map[string]any{
			"backend": config.StoreBolt,
			"path":    cfg.BoltPath,
		})
		return s, nil
	case config.StoreRedis:
		s, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		log.InfoObj("seen store opened", "dedup_store_open", map[string]any{
			"backend": config.StoreRedis,
			"addr":    cfg.RedisAddr,
			"key":     cfg.RedisKey,
		})
		return s, nil
	default:
		return nil, fmt.Errorf("seen store backend %q not supported", cfg.Backend)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func validID(id string) error {
	if id == "" {
		return errors.New("article id is empty")
	}
	return nil
}
