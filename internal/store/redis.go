package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/config"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "audiodrive"

// RedisStore keeps selections in a sorted set scored by insertion sequence
// and analyses in a hash keyed by file id.
type RedisStore struct {
	client        *redis.Client
	selectionsKey string
	sequenceKey   string
	analysesKey   string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, cfg config.CacheConfig, prefix string) (*RedisStore, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client, prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:        client,
		selectionsKey: prefix + ":selections",
		sequenceKey:   prefix + ":selections:seq",
		analysesKey:   prefix + ":analyses",
	}
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func (s *RedisStore) AddSelection(ctx context.Context, sel Selection) (bool, error) {
	member, err := json.Marshal(sel)
	if err != nil {
		return false, fmt.Errorf("encode selection: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.sequenceKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr failed: %w", err)
	}

	added, err := s.client.ZAddNX(ctx, s.selectionsKey, redis.Z{Score: float64(seq), Member: string(member)}).Result()
	if err != nil {
		return false, fmt.Errorf("redis zadd failed: %w", err)
	}
	return added > 0, nil
}

func (s *RedisStore) ListSelections(ctx context.Context, prefix string) ([]Selection, error) {
	members, err := s.client.ZRange(ctx, s.selectionsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange failed: %w", err)
	}

	sels := make([]Selection, 0, len(members))
	for _, m := range members {
		var sel Selection
		if err := json.Unmarshal([]byte(m), &sel); err != nil {
			return nil, fmt.Errorf("decode selection: %w", err)
		}
		sels = append(sels, sel)
	}
	return filterByPrefix(sels, prefix), nil
}

func (s *RedisStore) RemoveSelection(ctx context.Context, sel Selection) (bool, error) {
	member, err := json.Marshal(sel)
	if err != nil {
		return false, fmt.Errorf("encode selection: %w", err)
	}

	removed, err := s.client.ZRem(ctx, s.selectionsKey, string(member)).Result()
	if err != nil {
		return false, fmt.Errorf("redis zrem failed: %w", err)
	}
	return removed > 0, nil
}

func (s *RedisStore) PutAnalysis(ctx context.Context, rec AnalysisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	if err := s.client.HSet(ctx, s.analysesKey, rec.FileID, data).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (s *RedisStore) GetAnalysis(ctx context.Context, fileID string) (*AnalysisRecord, error) {
	data, err := s.client.HGet(ctx, s.analysesKey, fileID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("analysis %s: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}

	var rec AnalysisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", fileID, err)
	}
	return &rec, nil
}

func (s *RedisStore) ListAnalyses(ctx context.Context) (map[string]AnalysisRecord, error) {
	all, err := s.client.HGetAll(ctx, s.analysesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	out := make(map[string]AnalysisRecord, len(all))
	for id, data := range all {
		var rec AnalysisRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode analysis %s: %w", id, err)
		}
		out[id] = rec
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
