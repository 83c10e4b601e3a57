package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite allows 999 bound parameters per statement; batches are chunked so
// that columnsPerEntry * entries stays below it.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 17
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry
)

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `id, timestamp, duration_ns, request_id, method, path, status_code, streaming,
	functions, function_called, error_code, provider, model,
	prompt_tokens, completion_tokens, total_tokens, data`

// SQLiteStore implements LogStore on the migrated call_log table.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the store and starts retention cleanup when
// retentionDays is positive.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries with multi-row INSERTs. Duplicate IDs are ignored.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*LogEntry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		chunk := entries[i:min(i+maxEntriesPerBatch, len(entries))]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?" + strings.Repeat(", ?", columnsPerEntry-1) + ")"

			streaming := 0
			if e.Streaming {
				streaming = 1
			}
			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(timestampLayout),
				e.DurationNs,
				e.RequestID,
				e.Method,
				e.Path,
				e.StatusCode,
				streaming,
				nullableJSON(e.Functions, e.ID),
				e.FunctionCalled,
				e.ErrorCode,
				e.Provider,
				e.Model,
				e.PromptTokens,
				e.CompletionTokens,
				e.TotalTokens,
				nullableJSON(e.Data, e.ID),
			)
		}

		query := `INSERT OR IGNORE INTO call_log (` + selectColumns + `) VALUES ` + strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert call log batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}
	return nil
}

// List returns the newest entries matching params.
func (s *SQLiteStore) List(ctx context.Context, params ListParams) ([]LogEntry, error) {
	var where []string
	var args []any
	if params.FunctionCalled != "" {
		where = append(where, "function_called = ?")
		args = append(args, params.FunctionCalled)
	}
	if params.ErrorsOnly {
		where = append(where, "error_code <> ''")
	}

	query := `SELECT ` + selectColumns + ` FROM call_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, listLimit(params))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e         LogEntry
			timestamp string
			streaming int
			functions sql.NullString
			data      sql.NullString
		)
		err := rows.Scan(&e.ID, &timestamp, &e.DurationNs, &e.RequestID, &e.Method, &e.Path,
			&e.StatusCode, &streaming, &functions, &e.FunctionCalled, &e.ErrorCode, &e.Provider,
			&e.Model, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}

		e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		e.Streaming = streaming != 0
		if functions.Valid {
			_ = json.Unmarshal([]byte(functions.String), &e.Functions)
		}
		if data.Valid {
			e.Data = &LogData{}
			_ = json.Unmarshal([]byte(data.String), e.Data)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Flush is a no-op; writes are synchronous.
func (s *SQLiteStore) Flush(context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *SQLiteStore) cleanup() {
	cutoff := retentionCutoff(time.Now(), s.retentionDays).Format(timestampLayout)

	result, err := s.db.Exec("DELETE FROM call_log WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to clean up old call log entries", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		slog.Info("cleaned up old call log entries", "deleted", n)
	}
}

// nullableJSON encodes v for a JSON text column. Empty values become NULL.
func nullableJSON(v any, id string) any {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil
		}
	case *LogData:
		if t == nil {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal call log field", "error", err, "id", id)
		return nil
	}
	return string(data)
}
