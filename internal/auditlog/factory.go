package auditlog

import (
	"context"
	"errors"
	"fmt"

	"agentgate/config"
	"agentgate/internal/storage"
)

// Result holds the call log writer and the storage it writes to.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Logger  Writer
	Store   LogStore
	Storage storage.Storage
}

// Close flushes the logger and closes storage. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	return errors.Join(errs...)
}

// New creates the call log from configuration. When the call log is disabled
// the Result holds a NoopLogger and no storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.CallLog.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	store, err := OpenStore(ctx, cfg, cfg.CallLog.RetentionDays)
	if err != nil {
		return nil, err
	}

	logCfg := Config{
		Enabled:       true,
		LogBodies:     cfg.CallLog.LogBodies,
		BufferSize:    cfg.CallLog.BufferSize,
		FlushInterval: cfg.CallLog.FlushInterval,
		RetentionDays: cfg.CallLog.RetentionDays,
		PathPrefix:    AgentPathPrefix(cfg.Server.APIPrefix),
	}

	return &Result{
		Logger:  NewLogger(store.Store, logCfg),
		Store:   store.Store,
		Storage: store.Storage,
	}, nil
}

// AgentPathPrefix returns the path prefix of the agent routes mounted under
// the normalized apiPrefix.
func AgentPathPrefix(apiPrefix string) string {
	return apiPrefix + "/agent/"
}

// OpenStore connects to the configured storage and returns its LogStore
// without starting a logger. Retention cleanup runs when retentionDays is
// positive; read-only callers pass 0.
func OpenStore(ctx context.Context, cfg *config.Config, retentionDays int) (*Result, error) {
	conn, err := storage.New(ctx, storageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	store, err := createLogStore(conn, retentionDays)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Result{Store: store, Storage: conn}, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
	}
}

func createLogStore(conn storage.Storage, retentionDays int) (LogStore, error) {
	switch conn.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(conn.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(conn.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(conn.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", conn.Type())
	}
}
