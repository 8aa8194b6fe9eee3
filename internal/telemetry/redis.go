package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key prefixes the "<key>:latest" string and "<key>:history" list.
	Key string
	// History bounds the list length; 0 disables the list.
	History int
	TTL     time.Duration
}

// RedisSink publishes the latest record and a bounded history to Redis for
// dashboards running outside the vehicle process.
type RedisSink struct {
	client  *redis.Client
	key     string
	history int
	ttl     time.Duration
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	key := opts.Key
	if key == "" {
		key = "rover:telemetry"
	}
	return &RedisSink{client: client, key: key, history: opts.History, ttl: opts.TTL}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) latestKey() string  { return s.key + ":latest" }
func (s *RedisSink) historyKey() string { return s.key + ":history" }

// Write stores r as the latest record and prepends it to the history list.
func (s *RedisSink) Write(ctx context.Context, r Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.latestKey(), data, s.ttl)
		if s.history > 0 {
			p.LPush(ctx, s.historyKey(), data)
			p.LTrim(ctx, s.historyKey(), 0, int64(s.history-1))
			if s.ttl > 0 {
				p.Expire(ctx, s.historyKey(), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

// Latest returns the most recent record, or false when none is stored.
func (s *RedisSink) Latest(ctx context.Context) (Record, bool, error) {
	data, err := s.client.Get(ctx, s.latestKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	r, err := Decode(data)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *RedisSink) Close() error { return s.client.Close() }
