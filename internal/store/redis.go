package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"sentinel/internal/model"
)

const (
	redisKeyPrefix = "sentinel:observation:"
	redisIndexKey  = "sentinel:observations"
)

// RedisStore is a Redis-backed Store, for hosts that run the orchestrator
// across process restarts and want observations to survive them. Grounded on
// the teacher's RedisDedupeStore (internal/orchestrator/dedupe.go): client
// construction and context-scoped calls are carried over unchanged, adapted
// from a TTL string cache to a JSON-serialized observations CRUD store with
// a secondary index set, since List here needs to enumerate and filter
// rather than look up one correlation key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore against addr (e.g. "localhost:6379")
// and pings the server to validate the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: c}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

// CreateBatch persists N observations, assigning IDs.
func (s *RedisStore) CreateBatch(ctx context.Context, observations []model.Observation) ([]model.Observation, error) {
	out := make([]model.Observation, 0, len(observations))
	for _, o := range observations {
		created, err := s.Create(ctx, o)
		if err != nil {
			return out, err
		}
		out = append(out, created)
	}
	return out, nil
}

// Create persists a single observation, assigning an ID.
func (s *RedisStore) Create(ctx context.Context, o model.Observation) (model.Observation, error) {
	o.ID = uuid.NewString()
	if o.Status == "" {
		o.Status = model.StatusOpen
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return model.Observation{}, fmt.Errorf("marshal observation: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(o.ID), raw, 0)
	pipe.SAdd(ctx, redisIndexKey, o.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Observation{}, fmt.Errorf("redis store observation: %w", err)
	}
	return o, nil
}

func (s *RedisStore) load(ctx context.Context, id string) (model.Observation, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return model.Observation{}, fmt.Errorf("observation %q not found", id)
	}
	if err != nil {
		return model.Observation{}, err
	}
	var o model.Observation
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.Observation{}, fmt.Errorf("unmarshal observation %q: %w", id, err)
	}
	return o, nil
}

func (s *RedisStore) save(ctx context.Context, o model.Observation) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	return s.client.Set(ctx, s.key(o.ID), raw, 0).Err()
}

// List returns observations matching opts.Filters, most-recent first. Redis
// has no secondary indexes here, so filtering happens client-side over the
// full index set, loading every stored observation on each call.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return ListResult{}, fmt.Errorf("redis list index: %w", err)
	}

	var matched []model.Observation
	for _, id := range ids {
		o, err := s.load(ctx, id)
		if err != nil {
			continue
		}
		if opts.Filters.Status != "" && o.Status != opts.Filters.Status {
			continue
		}
		if opts.Filters.Severity != "" && o.Severity != opts.Filters.Severity {
			continue
		}
		if opts.Filters.Observer != "" && o.Observer != opts.Filters.Observer {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return ListResult{Observations: matched, Count: len(matched), Total: total}, nil
}

// Get returns one observation by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Observation, error) {
	return s.load(ctx, id)
}

// Acknowledge transitions an observation to Acknowledged.
func (s *RedisStore) Acknowledge(ctx context.Context, id string) error {
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	o.Acknowledge(time.Now())
	return s.save(ctx, o)
}

// Resolve transitions an observation to Resolved with a resolution note.
func (s *RedisStore) Resolve(ctx context.Context, id, resolutionNote string) error {
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	o.Resolve(time.Now(), resolutionNote)
	return s.save(ctx, o)
}

// ClearResolved deletes every resolved observation and returns the count
// removed.
func (s *RedisStore) ClearResolved(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list index: %w", err)
	}
	n := 0
	for _, id := range ids {
		o, err := s.load(ctx, id)
		if err != nil {
			continue
		}
		if o.Status != model.StatusResolved {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, redisIndexKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, fmt.Errorf("redis delete observation %q: %w", id, err)
		}
		n++
	}
	return n, nil
}
