// Package redis stores users as Redis hashes.
//
// Layout, relative to Config.KeyPrefix:
//
//	user:<id>   hash with fields name and age
//	users       set of live ids
//	next_id     counter incremented to allocate ids
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

const (
	userKeyPrefix      = "user:"
	defaultDialTimeout = 5 * time.Second
	scanBatch          = 100
)

// Config holds Redis connection configuration
type Config struct {
	KeyPrefix        string
	MaxConns         int
	DialTimeout      time.Duration
	OperationTimeout time.Duration
}

// Backend is a directory.Backend on top of go-redis.
type Backend struct {
	mu     sync.RWMutex
	client *redis.Client
	config Config
	logger logger.Logger
	errs   directory.ErrorState
}

var _ directory.Backend = (*Backend)(nil)

// New creates a disconnected Redis backend.
func New(cfg Config, log logger.Logger) *Backend {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Backend{
		config: cfg,
		logger: log.With("backend", "redis"),
	}
}

// Client returns the underlying *redis.Client, or nil while disconnected.
func (b *Backend) Client() *redis.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// Connect parses descriptor as a redis:// URL and verifies it with PING.
func (b *Backend) Connect(descriptor string) bool {
	if err := b.connect(descriptor); err != nil {
		b.errs.Record(err)
		b.logger.Error("connect failed", "error", err)
		return false
	}
	b.errs.Clear()
	return true
}

func (b *Backend) connect(descriptor string) error {
	if descriptor == "" {
		return fmt.Errorf("%w: redis URL is required", directory.ErrInvalidDescriptor)
	}
	opts, err := redis.ParseURL(descriptor)
	if err != nil {
		return fmt.Errorf("%w: failed to parse redis URL: %v", directory.ErrInvalidDescriptor, err)
	}
	if b.config.MaxConns > 0 {
		opts.PoolSize = b.config.MaxConns
	}
	opts.DialTimeout = b.config.DialTimeout
	if b.config.OperationTimeout > 0 {
		opts.ReadTimeout = b.config.OperationTimeout
		opts.WriteTimeout = b.config.OperationTimeout
	}

	b.Disconnect()

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), b.config.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.logger.Info("Redis connection established",
		"addr", opts.Addr,
		"db", opts.DB,
		"key_prefix", b.config.KeyPrefix,
	)
	return nil
}

// Disconnect closes the client. It is a no-op when not connected.
func (b *Backend) Disconnect() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		b.logger.Error("failed to close Redis connection", "error", err)
		return
	}
	b.logger.Info("Redis connection closed")
}

func (b *Backend) IsConnected() bool {
	return b.Client() != nil
}

func (b *Backend) InsertUser(name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	err := b.do(func(ctx context.Context, client *redis.Client) error {
		id, err := client.Incr(ctx, b.key("next_id")).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate user id: %w", err)
		}
		_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, b.userKey(int(id)), "name", name, "age", age)
			pipe.SAdd(ctx, b.key("users"), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to insert user %d: %w", id, err)
		}
		return nil
	})
	return err == nil
}

func (b *Backend) GetUserName(userID int) string {
	name, err := b.field(userID, "name")
	if err != nil {
		return ""
	}
	return name
}

func (b *Backend) GetUserAge(userID int) int {
	raw, err := b.field(userID, "age")
	if err != nil {
		return directory.AgeNotFound
	}
	age, err := strconv.Atoi(raw)
	if err != nil {
		b.errs.Record(fmt.Errorf("user %d has a malformed age %q: %w", userID, raw, err))
		return directory.AgeNotFound
	}
	return age
}

func (b *Backend) field(userID int, name string) (string, error) {
	var value string
	err := b.do(func(ctx context.Context, client *redis.Client) error {
		v, err := client.HGet(ctx, b.userKey(userID), name).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
		}
		if err != nil {
			return fmt.Errorf("failed to get user %d: %w", userID, err)
		}
		value = v
		return nil
	})
	return value, err
}

// UpdateUser rewrites an existing hash under WATCH so a concurrent delete
// cannot resurrect the user.
func (b *Backend) UpdateUser(userID int, name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	key := b.userKey(userID)
	err := b.do(func(ctx context.Context, client *redis.Client) error {
		err := client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "name", name, "age", age)
				return nil
			})
			return err
		}, key)
		if err != nil && !errors.Is(err, directory.ErrUserNotFound) {
			return fmt.Errorf("failed to update user %d: %w", userID, err)
		}
		return err
	})
	return err == nil
}

func (b *Backend) DeleteUser(userID int) bool {
	err := b.do(func(ctx context.Context, client *redis.Client) error {
		var del *redis.IntCmd
		_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, b.userKey(userID))
			pipe.SRem(ctx, b.key("users"), userID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete user %d: %w", userID, err)
		}
		if del.Val() == 0 {
			return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
		}
		return nil
	})
	return err == nil
}

// GetAllUserNames uses SORT ... GET to return names ordered by numeric id.
func (b *Backend) GetAllUserNames() []string {
	var names []string
	err := b.do(func(ctx context.Context, client *redis.Client) error {
		values, err := client.Sort(ctx, b.key("users"), &redis.Sort{
			Get: []string{b.key(userKeyPrefix + "*->name")},
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		names = values
		return nil
	})
	if err != nil {
		return nil
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func (b *Backend) GetUserCount() int {
	var count int64
	err := b.do(func(ctx context.Context, client *redis.Client) error {
		n, err := client.SCard(ctx, b.key("users")).Result()
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		count = n
		return nil
	})
	if err != nil {
		return 0
	}
	return int(count)
}

// ExecuteQuery treats query as a SCAN MATCH pattern over user keys, relative
// to the key prefix, and returns the name of every matching user ordered by id.
// Patterns that cannot match user keys are rejected.
func (b *Backend) ExecuteQuery(query string) ([]string, bool) {
	pattern := strings.TrimSpace(query)
	if !strings.HasPrefix(pattern, userKeyPrefix) {
		b.errs.Record(fmt.Errorf("%w: pattern %q must start with %q", directory.ErrUnsupportedQuery, query, userKeyPrefix))
		return nil, false
	}

	type match struct {
		id   int
		name string
	}
	var matches []match

	err := b.do(func(ctx context.Context, client *redis.Client) error {
		iter := client.Scan(ctx, 0, b.key(pattern), scanBatch).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			id, err := strconv.Atoi(strings.TrimPrefix(key, b.key(userKeyPrefix)))
			if err != nil {
				continue
			}
			name, err := client.HGet(ctx, key, "name").Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			matches = append(matches, match{id: id, name: name})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan %q: %w", pattern, err)
		}
		return nil
	})
	if err != nil {
		return nil, false
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].id < matches[j].id })
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names, true
}

func (b *Backend) GetLastError() string {
	return b.errs.Message()
}

func (b *Backend) ClearError() {
	b.errs.Clear()
}

// do runs fn with a live client under the operation timeout and records any failure.
func (b *Backend) do(fn func(ctx context.Context, client *redis.Client) error) error {
	client := b.Client()
	if client == nil {
		b.errs.Record(directory.ErrNotConnected)
		return directory.ErrNotConnected
	}

	ctx, cancel := b.withOperationTimeout(context.Background())
	defer cancel()

	if err := fn(ctx, client); err != nil {
		b.errs.Record(err)
		return err
	}
	return nil
}

func (b *Backend) key(suffix string) string {
	return b.config.KeyPrefix + suffix
}

func (b *Backend) userKey(userID int) string {
	return b.key(userKeyPrefix + strconv.Itoa(userID))
}

func (b *Backend) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.config.OperationTimeout)
}
