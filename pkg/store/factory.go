package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/userdirectory/pkg/config"
	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
	"github.com/nimburion/userdirectory/pkg/store/dynamodb"
	"github.com/nimburion/userdirectory/pkg/store/memory"
	"github.com/nimburion/userdirectory/pkg/store/mongodb"
	"github.com/nimburion/userdirectory/pkg/store/mysql"
	"github.com/nimburion/userdirectory/pkg/store/postgres"
	"github.com/nimburion/userdirectory/pkg/store/redis"
	"github.com/nimburion/userdirectory/pkg/store/sqlstore"
)

// NewBackend returns a disconnected backend for cfg.Type. The caller connects it
// with cfg.URL.
func NewBackend(cfg config.StorageConfig, log logger.Logger) (directory.Backend, error) {
	if log == nil {
		log = logger.NewNop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.StorageTypeMemory:
		return memory.New(log), nil
	case config.StorageTypePostgres:
		return postgres.New(sqlConfig(cfg), log), nil
	case config.StorageTypeMySQL:
		return mysql.New(sqlConfig(cfg), log), nil
	case config.StorageTypeRedis:
		return redis.New(redis.Config{
			KeyPrefix:        cfg.KeyPrefix,
			MaxConns:         cfg.MaxOpenConns,
			DialTimeout:      cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log), nil
	case config.StorageTypeMongoDB:
		return mongodb.New(mongodb.Config{
			Database:         cfg.DatabaseName,
			Collection:       cfg.Collection,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log), nil
	case config.StorageTypeDynamoDB:
		return dynamodb.New(dynamodb.Config{
			Table:            cfg.Table,
			Region:           cfg.Region,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			OperationTimeout: cfg.QueryTimeout,
			EnsureTable:      cfg.EnsureSchema,
		}, log), nil
	default:
		return nil, fmt.Errorf("unsupported storage.type %q (supported: %s)", cfg.Type, strings.Join(config.StorageTypes, ", "))
	}
}

func sqlConfig(cfg config.StorageConfig) sqlstore.Config {
	return sqlstore.Config{
		Table:           cfg.Table,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
		QueryTimeout:    cfg.QueryTimeout,
		EnsureSchema:    cfg.EnsureSchema,
	}
}
