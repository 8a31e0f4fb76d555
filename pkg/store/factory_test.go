package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/userdirectory/pkg/config"
	"github.com/nimburion/userdirectory/pkg/store/dynamodb"
	"github.com/nimburion/userdirectory/pkg/store/memory"
	"github.com/nimburion/userdirectory/pkg/store/mongodb"
	"github.com/nimburion/userdirectory/pkg/store/redis"
	"github.com/nimburion/userdirectory/pkg/store/sqlstore"
	"github.com/nimburion/userdirectory/pkg/testutil"
)

func TestNewBackend_SelectsImplementation(t *testing.T) {
	tests := []struct {
		storageType string
		check       func(t *testing.T, backend any)
	}{
		{config.StorageTypeMemory, func(t *testing.T, b any) {
			if _, ok := b.(*memory.Backend); !ok {
				t.Fatalf("got %T, want *memory.Backend", b)
			}
		}},
		{config.StorageTypePostgres, func(t *testing.T, b any) {
			if _, ok := b.(*sqlstore.Backend); !ok {
				t.Fatalf("got %T, want *sqlstore.Backend", b)
			}
		}},
		{" MySQL ", func(t *testing.T, b any) {
			if _, ok := b.(*sqlstore.Backend); !ok {
				t.Fatalf("got %T, want *sqlstore.Backend", b)
			}
		}},
		{config.StorageTypeRedis, func(t *testing.T, b any) {
			if _, ok := b.(*redis.Backend); !ok {
				t.Fatalf("got %T, want *redis.Backend", b)
			}
		}},
		{config.StorageTypeMongoDB, func(t *testing.T, b any) {
			if _, ok := b.(*mongodb.Backend); !ok {
				t.Fatalf("got %T, want *mongodb.Backend", b)
			}
		}},
		{config.StorageTypeDynamoDB, func(t *testing.T, b any) {
			if _, ok := b.(*dynamodb.Backend); !ok {
				t.Fatalf("got %T, want *dynamodb.Backend", b)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.storageType, func(t *testing.T) {
			cfg := config.DefaultConfig().Storage
			cfg.Type = tt.storageType

			backend, err := NewBackend(cfg, &testutil.MockLogger{})
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if backend.IsConnected() {
				t.Fatal("expected a disconnected backend")
			}
			tt.check(t, backend)
		})
	}
}

func TestNewBackend_Unsupported(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.Type = "cassandra"

	_, err := NewBackend(cfg, nil)
	if err == nil {
		t.Fatal("expected unsupported type error")
	}
	if !strings.Contains(err.Error(), "unsupported storage.type") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	backend, err := Open(context.Background(), config.DefaultConfig().Storage, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer backend.Disconnect()

	if !backend.IsConnected() {
		t.Fatal("expected connected backend")
	}
	if !backend.InsertUser("Alice", 25) || backend.GetUserCount() != 1 {
		t.Fatal("expected a working backend")
	}
}

func TestOpen_ReportsConnectError(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.URL = "postgres://not-memory"

	_, err := Open(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !strings.Contains(err.Error(), "connect memory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpen_RetriesConnect(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.URL = "postgres://not-memory"
	cfg.ConnectRetries = 2
	cfg.ConnectRetryBackoff = time.Millisecond
	log := &testutil.MockLogger{}

	_, err := Open(context.Background(), cfg, log)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}

	attempts := 0
	for _, e := range log.Entries() {
		if e.Level == "warn" && e.Msg == "storage connect attempt failed" {
			attempts++
		}
	}
	if attempts != 3 {
		t.Fatalf("logged %d failed attempts, want 3", attempts)
	}
}

func TestConnectWithRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.ConnectRetries = 3
	cfg.ConnectRetryBackoff = time.Millisecond

	backend, err := NewBackend(cfg, nil)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	calls := 0
	err = ConnectWithRetry(context.Background(), cfg, backend, &testutil.MockLogger{}, func() bool {
		calls++
		if calls < 3 {
			return backend.Connect("bogus://")
		}
		return backend.Connect(cfg.URL)
	})
	if err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if calls != 3 || !backend.IsConnected() {
		t.Fatalf("calls = %d, connected = %v", calls, backend.IsConnected())
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.ConnectRetries = 4
	policy := RetryPolicy(cfg)
	if policy.Attempts != 5 || policy.Backoff != cfg.ConnectRetryBackoff || policy.MaxBackoff != maxConnectBackoff {
		t.Fatalf("unexpected policy %+v", policy)
	}
}
