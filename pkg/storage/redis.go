package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "enerbox:report:"

// RedisStore shares reports between box replicas through Redis. Reports
// expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis and checks the connection with a ping.
// A zero ttl defaults to 30 minutes.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// Put stores a report under "enerbox:report:{service}".
func (r *RedisStore) Put(ctx context.Context, report Report) error {
	if err := ValidateService(report.Service); err != nil {
		return err
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = time.Now()
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+report.Service, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store report in redis: %w", err)
	}

	return nil
}

// GetLatest returns the report of service; found is false when there is none.
func (r *RedisStore) GetLatest(ctx context.Context, service string) (Report, bool, error) {
	if err := ValidateService(service); err != nil {
		return Report{}, false, err
	}

	data, err := r.client.Get(ctx, keyPrefix+service).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Report{}, false, nil
		}
		return Report{}, false, fmt.Errorf("failed to get report from redis: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, false, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return report, true, nil
}

// Close closes the client. It is idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
