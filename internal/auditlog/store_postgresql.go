package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertPostgreSQL = `INSERT INTO call_log (` + selectColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO NOTHING`

// PostgreSQLStore implements LogStore on the migrated call_log table.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the store and starts retention cleanup when
// retentionDays is positive.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, errors.New("connection pool is required")
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch sends every insert in one pgx batch.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		var data []byte
		if e.Data != nil {
			var err error
			if data, err = json.Marshal(e.Data); err != nil {
				slog.Warn("failed to marshal call log data", "error", err, "id", e.ID)
				data = nil
			}
		}
		batch.Queue(insertPostgreSQL,
			e.ID, e.Timestamp.UTC(), e.DurationNs, e.RequestID, e.Method, e.Path, e.StatusCode,
			e.Streaming, e.Functions, e.FunctionCalled, e.ErrorCode, e.Provider, e.Model,
			e.PromptTokens, e.CompletionTokens, e.TotalTokens, data,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert call log batch: %w", err)
	}
	return nil
}

// List returns the newest entries matching params.
func (s *PostgreSQLStore) List(ctx context.Context, params ListParams) ([]LogEntry, error) {
	var where []string
	var args []any
	if params.FunctionCalled != "" {
		args = append(args, params.FunctionCalled)
		where = append(where, fmt.Sprintf("function_called = $%d", len(args)))
	}
	if params.ErrorsOnly {
		where = append(where, "error_code <> ''")
	}

	query := `SELECT ` + selectColumns + ` FROM call_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, listLimit(params))
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LogEntry, error) {
		var e LogEntry
		var data []byte
		err := row.Scan(&e.ID, &e.Timestamp, &e.DurationNs, &e.RequestID, &e.Method, &e.Path,
			&e.StatusCode, &e.Streaming, &e.Functions, &e.FunctionCalled, &e.ErrorCode, &e.Provider,
			&e.Model, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &data)
		if err != nil {
			return e, err
		}
		if len(data) > 0 {
			e.Data = &LogData{}
			_ = json.Unmarshal(data, e.Data)
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan call log rows: %w", err)
	}
	return entries, nil
}

// Flush is a no-op; writes are synchronous.
func (s *PostgreSQLStore) Flush(context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. The pool is owned by the storage layer.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := s.pool.Exec(ctx, "DELETE FROM call_log WHERE timestamp < $1",
		retentionCutoff(time.Now(), s.retentionDays))
	if err != nil {
		slog.Error("failed to clean up old call log entries", "error", err)
		return
	}
	if n := result.RowsAffected(); n > 0 {
		slog.Info("cleaned up old call log entries", "deleted", n)
	}
}
