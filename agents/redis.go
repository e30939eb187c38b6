package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aixgo-dev/dataflow/agent"
	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

// DefaultRedisAddr is used when a redis sink has no addr setting.
const DefaultRedisAddr = "localhost:6379"

const redisPingTimeout = 5 * time.Second

func init() {
	agentdef.Register(RoleRedisSink, func(def agentdef.AgentDef) (agent.Agent, error) {
		sink, err := redisSinkFromDef(def)
		if err != nil {
			return nil, err
		}
		return agent.NewStreamConsumer[any, int](def.Name, def.KindOrRole(), sink, def.Inputs...), nil
	})
	agentdef.Register(RoleRedisBatchSink, func(def agentdef.AgentDef) (agent.Agent, error) {
		sink, err := redisSinkFromDef(def)
		if err != nil {
			return nil, err
		}
		return agent.NewComputational[any, int](def.Name, def.KindOrRole(), sink, def.Inputs...), nil
	})
}

func redisSinkFromDef(def agentdef.AgentDef) (*RedisSink, error) {
	ttl := def.GetString("ttl", "")
	cfg := RedisConfig{
		Addr:     def.GetString("addr", DefaultRedisAddr),
		Password: def.GetString("password", ""),
		DB:       def.GetInt("db", 0),
		Key:      def.GetString("key", "dataflow:"+def.Name),
		PoolSize: def.GetInt("pool_size", 0),
	}
	if ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: ttl: %v", ErrInvalidSetting, def.Name, err)
		}
		cfg.TTL = d
	}
	sink, err := NewRedisSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Name, err)
	}
	sink.log = agentLogger(def)
	return sink, nil
}

// RedisConfig holds the connection settings of a RedisSink.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Key is the list values are appended to.
	Key string
	// TTL refreshes the list's expiry on every write (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// RedisSink appends every value it receives to a Redis list as JSON. It
// serves both as a stream item processor and as a batch processor. The
// connection is opened on Initialize and closed on Finish.
type RedisSink struct {
	cfg    RedisConfig
	log    *slog.Logger
	mu     sync.Mutex
	client *redis.Client
	owned  bool
	pushed int

	in      any
	pending bool
}

// NewRedisSink creates a sink that connects with cfg when the run starts.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("redis key is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	return &RedisSink{cfg: cfg}, nil
}

// NewRedisSinkFromClient creates a sink on an existing client, which the sink
// does not close. Useful for testing.
func NewRedisSinkFromClient(client *redis.Client, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{
		cfg:    RedisConfig{Key: key, TTL: ttl},
		client: client,
	}
}

// Key returns the list the sink writes to.
func (s *RedisSink) Key() string { return s.cfg.Key }

// Ping checks the server the sink writes to. Outside a run it dials a
// short-lived connection with the sink's settings.
func (s *RedisSink) Ping(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		return client.Ping(ctx).Err()
	}

	tmp := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
		PoolSize: 1,
	})
	defer func() { _ = tmp.Close() }()
	return tmp.Ping(ctx).Err()
}

// RedisSinkOf returns the sink behind a redis_sink or redis_batch_sink agent.
func RedisSinkOf(a agent.Agent) (*RedisSink, bool) {
	var p any
	switch v := a.(type) {
	case *agent.StreamConsumer[any, int]:
		p = v.Processor()
	case *agent.Computational[any, int]:
		p = v.Processor()
	}
	sink, ok := p.(*RedisSink)
	return sink, ok
}

func (s *RedisSink) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushed, s.pending = 0, false
	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Addr,
			Password: s.cfg.Password,
			DB:       s.cfg.DB,
			PoolSize: s.cfg.PoolSize,
		})
		s.owned = true
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		if s.owned {
			_ = s.client.Close()
			s.client, s.owned = nil, false
		}
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// ConsumeItem implements agent.ItemProcessor.
func (s *RedisSink) ConsumeItem(ctx context.Context, item any) error {
	return s.push(ctx, item)
}

// Consume implements agent.Processor.
func (s *RedisSink) Consume(v any) { s.in, s.pending = v, true }

// Compute implements agent.Processor.
func (s *RedisSink) Compute(ctx context.Context) error {
	if !s.pending {
		return nil
	}
	s.pending = false
	return s.push(ctx, s.in)
}

// Produce returns the number of values written this run.
func (s *RedisSink) Produce() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

func (s *RedisSink) push(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return errors.New("redis sink is not connected")
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.cfg.Key, data)
	if s.cfg.TTL > 0 {
		pipe.Expire(ctx, s.cfg.Key, s.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push value: %w", err)
	}
	s.pushed++
	return nil
}

func (s *RedisSink) Finish(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log != nil {
		s.log.Info("redis sink finished", "key", s.cfg.Key, "pushed", s.pushed)
	}
	if !s.owned || s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client, s.owned = nil, false
	return err
}
