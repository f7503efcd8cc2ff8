// Package journal keeps a durable record of every gateway message: which
// operation ran, over which transport, how long it took and whether it
// failed. Entries are buffered and written to SQLite in batches.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/restyle/idgen"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS message_journal (
    entry_id      TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    operation     TEXT NOT NULL,
    transport     TEXT NOT NULL DEFAULT 'http',
    request_id    TEXT,
    parameters    TEXT NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL,
    error_message TEXT,
    duration_ms   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_journal_op_time ON message_journal(operation, timestamp DESC);
`

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one handled message.
type Entry struct {
	EntryID      string    `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"`
	Transport    string    `json:"transport"`
	RequestID    string    `json:"request_id,omitempty"`
	Parameters   string    `json:"parameters"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Operation string
	Status    string
	Limit     int // default 100
}

// Journal persists entries asynchronously.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	stop   chan struct{}
	done   chan struct{}

	mu     sync.RWMutex // guards closed against in-flight LogAsync sends
	closed bool
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator overrides the entry id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithBufferSize sets the async queue length (default 256).
func WithBufferSize(n int) Option {
	return func(j *Journal) { j.ch = make(chan *Entry, n) }
}

// New creates the table if needed and starts the flush goroutine.
// Close must be called to drain pending entries.
func New(db *sql.DB, logger *slog.Logger, opts ...Option) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("msg_", idgen.Default),
		logger: logger,
		ch:     make(chan *Entry, 256),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(j)
	}
	go j.flushLoop()
	return j, nil
}

// NewEntry builds an entry from a finished call. params is stored as JSON.
func NewEntry(operation string, params any, err error, d time.Duration) *Entry {
	e := &Entry{
		Timestamp:  time.Now(),
		Operation:  operation,
		DurationMs: d.Milliseconds(),
		Parameters: "{}",
	}
	if params != nil {
		if b, merr := json.Marshal(params); merr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Status = StatusError
		e.ErrorMessage = err.Error()
	}
	return e
}

// Log inserts e synchronously.
func (j *Journal) Log(ctx context.Context, e *Entry) error {
	j.fillDefaults(e)
	if err := j.insert(ctx, j.db, e); err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// LogAsync queues e. A full queue, or a closed journal, falls back to a
// synchronous insert.
func (j *Journal) LogAsync(e *Entry) {
	j.fillDefaults(e)
	j.mu.RLock()
	if !j.closed {
		select {
		case j.ch <- e:
			j.mu.RUnlock()
			return
		default:
			j.logger.Warn("journal: buffer full, sync fallback", "operation", e.Operation)
		}
	}
	j.mu.RUnlock()
	if err := j.insert(context.Background(), j.db, e); err != nil {
		j.logger.Error("journal: sync fallback failed", "error", err)
	}
}

// Query returns the newest entries matching f.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT entry_id, timestamp, operation, transport, request_id,
		parameters, status, error_message, duration_ms
		FROM message_journal WHERE 1=1`
	var args []any
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var reqID, errMsg sql.NullString
		var dur sql.NullInt64
		if err := rows.Scan(&e.EntryID, &ts, &e.Operation, &e.Transport, &reqID,
			&e.Parameters, &e.Status, &errMsg, &dur); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.RequestID = reqID.String
		e.ErrorMessage = errMsg.String
		e.DurationMs = dur.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close drains the queue and stops the flush goroutine. Entries logged
// afterwards are written synchronously. Close is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.stop)
	j.mu.Unlock()
	<-j.done
	return nil
}

func (j *Journal) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = j.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (j *Journal) insert(ctx context.Context, db execer, e *Entry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO message_journal
		(entry_id, timestamp, operation, transport, request_id,
		 parameters, status, error_message, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp.UnixMilli(), e.Operation, e.Transport, e.RequestID,
		e.Parameters, e.Status, e.ErrorMessage, e.DurationMs)
	return err
}

func (j *Journal) flushLoop() {
	defer close(j.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]*Entry, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			j.logger.Error("journal: begin tx", "error", err)
			return
		}
		for _, e := range batch {
			if err := j.insert(ctx, tx, e); err != nil {
				j.logger.Error("journal: insert", "error", err, "entry_id", e.EntryID)
			}
		}
		if err := tx.Commit(); err != nil {
			j.logger.Error("journal: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-j.stop:
			for {
				select {
				case e := <-j.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-j.ch:
			batch = append(batch, e)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
