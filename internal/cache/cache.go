// Package cache persists message metadata from list and read operations
// in an embedded SQLite database. The cache is write-through: API
// responses refresh it, and `list --cached` renders the most recent
// listing without a network round trip.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL journal at 16 MiB — the cache holds
// metadata only, so the journal should stay small.
const walJournalSizeLimit = 16777216

// Message is one cached message metadata row.
type Message struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	Date     string
	Snippet  string
	LabelIDs []string
	CachedAt time.Time
}

// Store is a SQLite-backed message metadata cache. Safe for concurrent
// use across processes (WAL mode).
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	upsertStmt *sql.Stmt
	getStmt    *sql.Stmt
	recentStmt *sql.Stmt
}

// Open opens (or creates) the cache database at dbPath, applying
// migrations and preparing statements. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening message cache", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: opening database: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: preparing statements: %w", err)
	}

	return s, nil
}

// setPragmas configures SQLite for WAL mode and cross-process safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("cache: setting pragma %q: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("cache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("cache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	s.upsertStmt, err = s.db.PrepareContext(ctx, `
		INSERT INTO messages (id, thread_id, sender, subject, date, snippet, label_ids, cached_at, list_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id  = excluded.thread_id,
			sender     = excluded.sender,
			subject    = excluded.subject,
			date       = excluded.date,
			snippet    = excluded.snippet,
			label_ids  = excluded.label_ids,
			cached_at  = excluded.cached_at,
			list_order = excluded.list_order`)
	if err != nil {
		return err
	}

	s.getStmt, err = s.db.PrepareContext(ctx, `
		SELECT id, thread_id, sender, subject, date, snippet, label_ids, cached_at
		FROM messages WHERE id = ?`)
	if err != nil {
		return err
	}

	// Rows from one listing share a cached_at; list_order breaks the tie
	// so Recent reproduces the order the listing was fetched in.
	s.recentStmt, err = s.db.PrepareContext(ctx, `
		SELECT id, thread_id, sender, subject, date, snippet, label_ids, cached_at
		FROM messages ORDER BY cached_at DESC, list_order LIMIT ?`)

	return err
}

// Upsert inserts or refreshes one message's metadata.
func (s *Store) Upsert(ctx context.Context, m Message) error {
	cachedAt := m.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now().UTC()
	}

	_, err := s.upsertStmt.ExecContext(ctx,
		m.ID, m.ThreadID, m.From, m.Subject, m.Date, m.Snippet,
		strings.Join(m.LabelIDs, ","), cachedAt.Format(time.RFC3339Nano), 0,
	)
	if err != nil {
		return fmt.Errorf("cache: upserting message %s: %w", m.ID, err)
	}

	return nil
}

// UpsertAll upserts a batch of messages in one transaction, recording
// each message's position so Recent can reproduce the listing order.
func (s *Store) UpsertAll(ctx context.Context, msgs []Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt := tx.StmtContext(ctx, s.upsertStmt)

	now := time.Now().UTC()

	for i, m := range msgs {
		cachedAt := m.CachedAt
		if cachedAt.IsZero() {
			cachedAt = now
		}

		if _, err := stmt.ExecContext(ctx,
			m.ID, m.ThreadID, m.From, m.Subject, m.Date, m.Snippet,
			strings.Join(m.LabelIDs, ","), cachedAt.Format(time.RFC3339Nano), i,
		); err != nil {
			return fmt.Errorf("cache: upserting message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: committing: %w", err)
	}

	return nil
}

// Get returns one cached message by ID, or (nil, nil) on a cache miss.
func (s *Store) Get(ctx context.Context, id string) (*Message, error) {
	row := s.getStmt.QueryRowContext(ctx, id)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // sentinel for cache miss
	}

	if err != nil {
		return nil, fmt.Errorf("cache: reading message %s: %w", id, err)
	}

	return m, nil
}

// Recent returns the most recently cached messages, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("cache: listing recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message

	for rows.Next() {
		m, scanErr := scanMessage(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("cache: scanning row: %w", scanErr)
		}

		msgs = append(msgs, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterating rows: %w", err)
	}

	return msgs, nil
}

// Close finalizes prepared statements and closes the database.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.upsertStmt, s.getStmt, s.recentStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var labelIDs, cachedAt string

	if err := row.Scan(&m.ID, &m.ThreadID, &m.From, &m.Subject, &m.Date,
		&m.Snippet, &labelIDs, &cachedAt); err != nil {
		return nil, err
	}

	if labelIDs != "" {
		m.LabelIDs = strings.Split(labelIDs, ",")
	}

	if t, err := time.Parse(time.RFC3339Nano, cachedAt); err == nil {
		m.CachedAt = t
	}

	return &m, nil
}
