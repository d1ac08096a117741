package answerbank

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	backend "github.com/redis/go-redis/v9"
)

// RedisBackend stores entries in a hash keyed by normalized question, with a sorted set
// recording first-insertion order.
type RedisBackend struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

// NewRedisBackend uses client with keys under prefix (e.g. "applypilot:").
func NewRedisBackend(client *backend.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisBackend) hashKey() string  { return r.prefix + "answers" }
func (r *RedisBackend) orderKey() string { return r.prefix + "answers:order" }

// Load reads every entry in insertion order. Fields missing from the order index are appended.
func (r *RedisBackend) Load(ctx context.Context) ([]Entry, error) {
	raw, err := r.client.HGetAll(ctx, r.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read answers from redis: %w", err)
	}
	order, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read answer order from redis: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	decode := func(key string) error {
		data, ok := raw[key]
		if !ok || seen[key] {
			return nil
		}
		seen[key] = true
		var e Entry
		if err := json.UnmarshalFromString(data, &e); err != nil {
			return fmt.Errorf("failed to decode answer %q: %w", key, err)
		}
		entries = append(entries, e)
		return nil
	}
	for _, key := range order {
		if err := decode(key); err != nil {
			return nil, err
		}
	}
	for key := range raw {
		if err := decode(key); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Persist upserts the changed entry only.
func (r *RedisBackend) Persist(ctx context.Context, changed Entry, _ []Entry) error {
	data, err := json.MarshalToString(changed)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}

	key := changed.Key()
	_, err = r.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.HSet(ctx, r.hashKey(), key, data)
		pipe.ZAddNX(ctx, r.orderKey(), backend.Z{
			Score:  float64(r.now().UnixNano()),
			Member: key,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save answer to redis: %w", err)
	}
	return nil
}
