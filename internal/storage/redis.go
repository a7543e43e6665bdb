package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/prasenjit/go-replay/internal/config"
	"github.com/prasenjit/go-replay/internal/models"
)

const redisTimeout = 5 * time.Second

// RedisStorage implements Storage interface on top of redis. Records are JSON
// strings; sorted sets scored by creation time index them.
type RedisStorage struct {
	client *redis.Client
	prefix string
	mu     sync.Mutex // serializes policy writes so slot checks see a stable set
}

// NewRedisStorage connects to redis and verifies the connection
func NewRedisStorage(cfg config.RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStorageWithClient(client, cfg.Prefix), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "goreplay"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *RedisStorage) policyKey(id string) string   { return r.key("policy", id) }
func (r *RedisStorage) exchangeKey(id string) string { return r.key("exchange", id) }

func (r *RedisStorage) endpointKey(method, path string) string {
	return r.key("endpoint", strings.ToUpper(method), path)
}

func (r *RedisStorage) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisTimeout)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// getJSON loads key into v, mapping a missing key to ErrNotFound
func (r *RedisStorage) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return notFoundf("key %s", key)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s from redis: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// members loads every record listed in an index set. Missing or corrupt
// records are skipped.
func (r *RedisStorage) members(ctx context.Context, index string, keyFn func(string) string) ([]string, error) {
	ids, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFn(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// CreatePolicy creates a new policy
func (r *RedisStorage) CreatePolicy(p *models.MatchingPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := r.opContext()
	defer cancel()

	exists, err := r.client.Exists(ctx, r.policyKey(p.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check policy %s: %w", p.ID, err)
	}
	if exists > 0 {
		return conflictf("policy with ID %s already exists", p.ID)
	}

	return r.writePolicy(ctx, p)
}

func (r *RedisStorage) writePolicy(ctx context.Context, p *models.MatchingPolicy) error {
	existing, err := r.allPolicies(ctx)
	if err != nil {
		return err
	}
	if err := checkUnique(p, existing); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.policyKey(p.ID), data, 0)
		pipe.ZAdd(ctx, r.key("policies"), &redis.Z{Score: score(p.CreatedAt), Member: p.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write policy %s: %w", p.ID, err)
	}
	return nil
}

// GetPolicy retrieves a policy by ID
func (r *RedisStorage) GetPolicy(id string) (*models.MatchingPolicy, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var p models.MatchingPolicy
	if err := r.getJSON(ctx, r.policyKey(id), &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFoundf("policy %s", id)
		}
		return nil, err
	}
	return &p, nil
}

// GetAllPolicies retrieves all policies in registration order
func (r *RedisStorage) GetAllPolicies() ([]*models.MatchingPolicy, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	return r.allPolicies(ctx)
}

func (r *RedisStorage) allPolicies(ctx context.Context) ([]*models.MatchingPolicy, error) {
	records, err := r.members(ctx, r.key("policies"), r.policyKey)
	if err != nil {
		return nil, err
	}

	policies := make([]*models.MatchingPolicy, 0, len(records))
	for _, rec := range records {
		var p models.MatchingPolicy
		if err := json.Unmarshal([]byte(rec), &p); err != nil {
			continue
		}
		policies = append(policies, &p)
	}

	sortPolicies(policies)
	return policies, nil
}

// UpdatePolicy updates a policy
func (r *RedisStorage) UpdatePolicy(p *models.MatchingPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := r.opContext()
	defer cancel()

	exists, err := r.client.Exists(ctx, r.policyKey(p.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check policy %s: %w", p.ID, err)
	}
	if exists == 0 {
		return notFoundf("policy %s", p.ID)
	}

	return r.writePolicy(ctx, p)
}

// DeletePolicy deletes a policy
func (r *RedisStorage) DeletePolicy(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := r.opContext()
	defer cancel()

	removed, err := r.client.Del(ctx, r.policyKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete policy %s: %w", id, err)
	}
	if removed == 0 {
		return notFoundf("policy %s", id)
	}
	return r.client.ZRem(ctx, r.key("policies"), id).Err()
}

// GetClassification returns the stored classification config or the default
func (r *RedisStorage) GetClassification() (*models.EndpointClassificationConfig, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var cfg models.EndpointClassificationConfig
	if err := r.getJSON(ctx, r.key("classification"), &cfg); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.DefaultClassification(), nil
		}
		return nil, err
	}
	return &cfg, nil
}

// SaveClassification replaces the classification config
func (r *RedisStorage) SaveClassification(cfg *models.EndpointClassificationConfig) error {
	return r.setJSON(r.key("classification"), cfg)
}

// GetDefaults returns the stored global defaults or the built-ins
func (r *RedisStorage) GetDefaults() (*models.GlobalDefaults, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var d models.GlobalDefaults
	if err := r.getJSON(ctx, r.key("defaults"), &d); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.DefaultGlobalDefaults(), nil
		}
		return nil, err
	}
	return &d, nil
}

// SaveDefaults replaces the global defaults
func (r *RedisStorage) SaveDefaults(d *models.GlobalDefaults) error {
	return r.setJSON(r.key("defaults"), d)
}

func (r *RedisStorage) setJSON(key string, v interface{}) error {
	ctx, cancel := r.opContext()
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// CreateExchange stores a recorded exchange and indexes it by endpoint
func (r *RedisStorage) CreateExchange(e *models.CandidateExchange) error {
	ctx, cancel := r.opContext()
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode exchange: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.exchangeKey(e.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to write exchange %s: %w", e.ID, err)
	}
	if !created {
		return conflictf("exchange with ID %s already exists", e.ID)
	}

	member := &redis.Z{Score: score(e.CreatedAt), Member: e.ID}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.key("exchanges"), member)
		pipe.ZAdd(ctx, r.endpointKey(e.Method, e.Path), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index exchange %s: %w", e.ID, err)
	}
	return nil
}

// GetExchange retrieves an exchange by ID
func (r *RedisStorage) GetExchange(id string) (*models.CandidateExchange, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var e models.CandidateExchange
	if err := r.getJSON(ctx, r.exchangeKey(id), &e); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFoundf("exchange %s", id)
		}
		return nil, err
	}
	return &e, nil
}

// GetAllExchanges retrieves all exchanges, oldest first
func (r *RedisStorage) GetAllExchanges() ([]*models.CandidateExchange, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	return r.exchanges(ctx, r.key("exchanges"))
}

// GetExchangesByEndpoint retrieves the exchanges recorded for method and path
func (r *RedisStorage) GetExchangesByEndpoint(method, path string) ([]*models.CandidateExchange, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	return r.exchanges(ctx, r.endpointKey(method, path))
}

func (r *RedisStorage) exchanges(ctx context.Context, index string) ([]*models.CandidateExchange, error) {
	records, err := r.members(ctx, index, r.exchangeKey)
	if err != nil {
		return nil, err
	}

	exchanges := make([]*models.CandidateExchange, 0, len(records))
	for _, rec := range records {
		var e models.CandidateExchange
		if err := json.Unmarshal([]byte(rec), &e); err != nil {
			continue
		}
		exchanges = append(exchanges, &e)
	}

	sortExchanges(exchanges)
	return exchanges, nil
}

// DeleteExchange deletes an exchange and its index entries
func (r *RedisStorage) DeleteExchange(id string) error {
	e, err := r.GetExchange(id)
	if err != nil {
		return err
	}

	ctx, cancel := r.opContext()
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.exchangeKey(id))
		pipe.ZRem(ctx, r.key("exchanges"), id)
		pipe.ZRem(ctx, r.endpointKey(e.Method, e.Path), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete exchange %s: %w", id, err)
	}
	return nil
}

// Close closes the redis client
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
