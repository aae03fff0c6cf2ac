// Package sqlitestore provides a SQLite-backed implementation of the
// sessions.Store interface. The database runs in WAL mode with a single
// writer connection, and a cron-scheduled purge clears expired rows.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ggoodman/httpkit-go/sessions"
)

// Config for the SQLite-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// Path is the database file path. ENV: SESSIONS_SQLITE_PATH
	Path string `env:"SESSIONS_SQLITE_PATH,default=sessions.db"`
	// GCSchedule is the cron expression for the expired-row purge.
	// ENV: SESSIONS_SQLITE_GC
	GCSchedule string `env:"SESSIONS_SQLITE_GC,default=@every 5m"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// LogHandler routes purge logging. When nil, logs are discarded.
	LogHandler slog.Handler
}

// Store implements sessions.Store using SQLite.
type Store struct {
	db        *sql.DB
	cron      *cron.Cron
	log       *slog.Logger
	closeOnce sync.Once
	closeErr  error

	loadStmt   *sql.Stmt
	saveStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	purgeStmt  *sql.Stmt
}

// New creates a SQLite-backed store at cfg.Path and starts the scheduled
// purge of expired rows.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = "sessions.db"
	}
	if cfg.GCSchedule == "" {
		cfg.GCSchedule = "@every 5m"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	logHandler := cfg.LogHandler
	if logHandler == nil {
		logHandler = slog.DiscardHandler
	}

	if _, err := cron.ParseStandard(cfg.GCSchedule); err != nil {
		return nil, fmt.Errorf("invalid gc schedule %q: %w", cfg.GCSchedule, err)
	}

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:   db,
		cron: cron.New(),
		log:  slog.New(logHandler),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	if _, err := s.cron.AddFunc(cfg.GCSchedule, s.purgeExpired); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to schedule gc: %w", err)
	}
	s.cron.Start()

	return s, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode env config: %w", err)
	}
	return New(cfg)
}

// initSchema creates the database schema if it doesn't exist. Timestamps
// are unix milliseconds so sub-second TTLs round-trip.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *Store) prepareStatements() error {
	var err error

	s.loadStmt, err = s.db.Prepare(`
		SELECT data, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO sessions (id, data, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`
		DELETE FROM sessions
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.purgeStmt, err = s.db.Prepare(`
		DELETE FROM sessions
		WHERE expires_at IS NOT NULL AND expires_at < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare purge statement: %w", err)
	}

	return nil
}

// Load retrieves the record for a session id.
func (s *Store) Load(ctx context.Context, id string) (*sessions.Record, error) {
	var (
		data      []byte
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := s.loadStmt.QueryRowContext(ctx, id).Scan(&data, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	rec := &sessions.Record{
		Data:      data,
		CreatedAt: time.UnixMilli(createdAt),
	}
	if expiresAt.Valid {
		exp := time.UnixMilli(expiresAt.Int64)
		rec.ExpiresAt = &exp
	}

	if rec.IsExpired() {
		if _, err := s.deleteStmt.ExecContext(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to delete expired session %s: %w", id, err)
		}
		return nil, nil
	}
	return rec, nil
}

// Save stores the record data for a session id.
func (s *Store) Save(ctx context.Context, id string, data []byte, opts ...sessions.Option) error {
	options := sessions.ApplyOptions(opts)

	now := time.Now()
	var expiresAt sql.NullInt64
	if options.TTL != nil {
		expiresAt = sql.NullInt64{Int64: now.Add(*options.TTL).UnixMilli(), Valid: true}
	}

	if _, err := s.saveStmt.ExecContext(ctx, id, data, now.UnixMilli(), expiresAt); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// Delete removes the record for a session id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// purgeExpired runs on the cron schedule and clears rows whose expiry has
// passed.
func (s *Store) purgeExpired() {
	res, err := s.purgeStmt.Exec(time.Now().UnixMilli())
	if err != nil {
		s.log.Error("sessions.gc.fail", slog.String("err", err.Error()))
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("sessions.gc.ok", slog.Int64("purged", n))
	}
}

// Close stops the purge scheduler, waits for a running purge to finish,
// and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		<-s.cron.Stop().Done()

		for _, stmt := range []*sql.Stmt{s.loadStmt, s.saveStmt, s.deleteStmt, s.purgeStmt} {
			if stmt != nil {
				_ = stmt.Close()
			}
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Compile-time interface check
var _ sessions.Store = (*Store)(nil)
