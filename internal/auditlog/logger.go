package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer accepts finished entries. Logger and NoopLogger implement it.
type Writer interface {
	Write(entry *LogEntry)
	Config() Config
	Close() error
}

// Logger queues entries on a channel and writes them to the store in
// batches, when BatchFlushThreshold entries are pending or every
// FlushInterval, whichever comes first.
type Logger struct {
	store     LogStore
	config    Config
	buffer    chan *LogEntry
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(store LogStore, cfg Config) *Logger {
	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	l := &Logger{
		store:  store,
		config: cfg,
		buffer: make(chan *LogEntry, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues entry without blocking. When the buffer is full the entry is
// dropped with a warning.
func (l *Logger) Write(entry *LogEntry) {
	if entry == nil {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		slog.Warn("call log buffer full, dropping entry",
			"request_id", entry.RequestID,
			"path", entry.Path,
		)
	}
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close stops the flush loop after writing every queued entry, then closes
// the store. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		err = l.store.Close()
	})
	return err
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*LogEntry, 0, BatchFlushThreshold)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				l.flushBatch(batch)
				batch = make([]*LogEntry, 0, BatchFlushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*LogEntry, 0, BatchFlushThreshold)
			}

		case <-l.done:
			// Writers may still race with shutdown, so drain without closing.
		drain:
			for {
				select {
				case entry := <-l.buffer:
					batch = append(batch, entry)
				default:
					break drain
				}
			}
			l.flushBatch(batch)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush call log store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*LogEntry) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write call log batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards entries. It is used when the call log is disabled.
type NoopLogger struct{}

func (NoopLogger) Write(*LogEntry) {}
func (NoopLogger) Config() Config  { return Config{} }
func (NoopLogger) Close() error    { return nil }
