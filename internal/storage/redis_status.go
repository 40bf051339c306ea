package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultStatusKey is the Redis hash holding the live status.
const DefaultStatusKey = "kasa:status"

// RedisStatusStore keeps ProcessingStatus in a Redis hash so monitors on
// other hosts can read it.
type RedisStatusStore struct {
	client *redis.Client
	key    string
}

var _ service.StatusStore = (*RedisStatusStore)(nil)

// ConnectRedis builds a client from a redis:// URL or a bare host:port and
// verifies it with PING.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if err := validateString(addr, "redis address"); err != nil {
		return nil, err
	}

	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %v", common.ErrInvalidConfig, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewRedisStatusStore wraps client. An empty key uses DefaultStatusKey.
func NewRedisStatusStore(client *redis.Client, key string) *RedisStatusStore {
	if key == "" {
		key = DefaultStatusKey
	}
	return &RedisStatusStore{client: client, key: key}
}

// SetStatus replaces the status hash atomically.
func (r *RedisStatusStore) SetStatus(ctx context.Context, status model.ProcessingStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, map[string]any{
			"name":       status.Name,
			"stage":      string(status.Stage),
			"category":   string(status.Category),
			"amount":     status.Amount.String(),
			"updated_at": status.UpdatedAt.Format(time.RFC3339Nano),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save processing status: %w", err)
	}
	return nil
}

// GetStatus reads the status hash.
func (r *RedisStatusStore) GetStatus(ctx context.Context) (*model.ProcessingStatus, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load processing status: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: processing status", common.ErrNotFound)
	}

	status := &model.ProcessingStatus{
		Name:     fields["name"],
		Stage:    model.Stage(fields["stage"]),
		Category: model.Category(fields["category"]),
	}
	if status.Amount, err = decimal.NewFromString(fields["amount"]); err != nil {
		return nil, fmt.Errorf("%w: status amount %q", common.ErrDatabaseCorrupted, fields["amount"])
	}
	if ts, perr := time.Parse(time.RFC3339Nano, fields["updated_at"]); perr == nil {
		status.UpdatedAt = ts
	}
	return status, nil
}

// ClearStatus deletes the status hash.
func (r *RedisStatusStore) ClearStatus(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear processing status: %w", err)
	}
	return nil
}
