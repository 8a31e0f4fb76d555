// Package store selects and connects the directory.Backend named by configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/userdirectory/pkg/config"
	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
	"github.com/nimburion/userdirectory/pkg/resilience"
)

const maxConnectBackoff = 10 * time.Second

// RetryPolicy derives the connect retry policy from storage configuration.
func RetryPolicy(cfg config.StorageConfig) resilience.RetryPolicy {
	return resilience.RetryPolicy{
		Attempts:   cfg.ConnectRetries + 1,
		Backoff:    cfg.ConnectRetryBackoff,
		MaxBackoff: maxConnectBackoff,
	}
}

// ConnectWithRetry calls connect until it reports success or the policy from
// cfg is exhausted. Each failed attempt is logged with the backend's last error.
func ConnectWithRetry(ctx context.Context, cfg config.StorageConfig, backend directory.Backend, log logger.Logger, connect func() bool) error {
	return resilience.Retry(ctx, RetryPolicy(cfg), func(attempt int) error {
		if connect() {
			return nil
		}
		msg := backend.GetLastError()
		log.Warn("storage connect attempt failed",
			"storage_type", cfg.Type,
			"attempt", attempt,
			"error", msg,
		)
		return errors.New(msg)
	})
}

// Open builds the configured backend and connects it to cfg.URL, retrying
// according to cfg. On failure nothing stays connected.
func Open(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (directory.Backend, error) {
	if log == nil {
		log = logger.NewNop()
	}
	backend, err := NewBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	err = ConnectWithRetry(ctx, cfg, backend, log, func() bool { return backend.Connect(cfg.URL) })
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Type, err)
	}
	return backend, nil
}
