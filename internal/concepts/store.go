package concepts

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wandersure/wandersure-api/internal/errs"
)

const (
	conceptKeyPrefix = "concept:"
	// Relation edge sets live under concept:<id>:rel:<type>; they are part
	// of the offline graph, not searchable content.
	relSegment = ":rel:"
	scanCount  = 500
)

// RedisStore reads concept graph nodes out of Redis.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to redisURL (redis://... or rediss://...).
func NewRedisStore(redisURL string, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidArgument, "parse redis url", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: redis.NewClient(opt), logger: logger}, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LoadNodes scans every concept hash and parses it into a Node. Relation
// edge keys are skipped, as are nodes whose memory is shorter than
// minMemoryChars: those are bare labels without narrative content.
func (s *RedisStore) LoadNodes(ctx context.Context, minMemoryChars int) ([]Node, error) {
	var nodes []Node
	var skipped int
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, conceptKeyPrefix+"*", scanCount).Result()
		if err != nil {
			return nil, errs.Wrap(errs.KindUnavailable, "concept store not connected", err)
		}

		hashKeys := make([]string, 0, len(keys))
		for _, key := range keys {
			if strings.Contains(key, relSegment) {
				continue
			}
			hashKeys = append(hashKeys, key)
		}

		pipe := s.client.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, len(hashKeys))
		for i, key := range hashKeys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errs.Wrap(errs.KindUnavailable, "read concept hashes", err)
		}

		for i, cmd := range cmds {
			data, err := cmd.Result()
			if err != nil {
				s.logger.Warn("read concept hash", "key", hashKeys[i], "error", err)
				continue
			}
			node, ok := nodeFromHash(hashKeys[i], data, minMemoryChars)
			if !ok {
				skipped++
				continue
			}
			nodes = append(nodes, node)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Debug("loaded concept nodes", "nodes", len(nodes), "skipped", skipped)
	return nodes, nil
}

// nodeFromHash parses one concept hash. The embedding field holds a JSON
// float array.
func nodeFromHash(key string, data map[string]string, minMemoryChars int) (Node, bool) {
	memory := data["memory"]
	if len(memory) < minMemoryChars {
		return Node{}, false
	}
	raw := data["embedding"]
	if raw == "" {
		return Node{}, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
		return Node{}, false
	}
	return Node{
		ID:     strings.TrimPrefix(key, conceptKeyPrefix),
		Memory: memory,
		Vector: vec,
	}, true
}
