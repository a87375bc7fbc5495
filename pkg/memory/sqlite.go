package memory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/aura/internal/observability"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Config holds SQLite store configuration
type Config struct {
	DBPath       string
	Conversation string
	Logger       zerolog.Logger
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// SQLiteStore is a Store backed by a SQLite file. The database is opened and
// migrated on first use.
type SQLiteStore struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool

	writeMu sync.Mutex
	lastTS  int64
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore validates cfg. No I/O happens until the first operation.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Conversation == "" {
		cfg.Conversation = DefaultConversation
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SQLiteStore{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("conversation", cfg.Conversation).Logger(),
	}, nil
}

// Conversation returns the identity rows are keyed by.
func (s *SQLiteStore) Conversation() string {
	return s.cfg.Conversation
}

func (s *SQLiteStore) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	s.db = db
	return db, nil
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	if dir := filepath.Dir(s.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", s.cfg.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	var maxTS sql.NullInt64
	if err := db.QueryRowContext(ctx,
		"SELECT MAX(ts) FROM turns WHERE conversation = ?", s.cfg.Conversation,
	).Scan(&maxTS); err != nil {
		db.Close()
		return nil, err
	}

	s.writeMu.Lock()
	s.lastTS = maxTS.Int64
	s.writeMu.Unlock()

	s.logger.Info().Str("path", s.cfg.DBPath).Msg("Memory store initialized")
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Append writes all turns in one transaction. Zero or missing timestamps are
// taken from the clock and clamped so they never precede earlier turns.
func (s *SQLiteStore) Append(ctx context.Context, turns ...Turn) (err error) {
	if len(turns) == 0 {
		return nil
	}
	if err := validateTurns(turns); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		observability.RecordMemoryOperation("append", time.Since(start), err == nil)
	}()

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO turns (conversation, role, content, ts) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	lastTS := s.lastTS
	for _, turn := range turns {
		ts := turn.Timestamp
		if ts == 0 {
			ts = s.cfg.Now().UnixMilli()
		}
		if ts < lastTS {
			ts = lastTS
		}
		if _, err = stmt.ExecContext(ctx, s.cfg.Conversation, string(turn.Role), turn.Content, ts); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
		lastTS = ts
	}

	var total int
	if err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE conversation = ?", s.cfg.Conversation,
	).Scan(&total); err != nil {
		return fmt.Errorf("failed to count turns: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}

	s.lastTS = lastTS
	observability.SetMemoryTurns(total)
	s.logger.Debug().Int("turns", len(turns)).Int("total", total).Msg("Turns appended")
	return nil
}

// All returns every turn in ascending order.
func (s *SQLiteStore) All(ctx context.Context) (turns []Turn, err error) {
	start := time.Now()
	defer func() {
		observability.RecordMemoryOperation("read", time.Since(start), err == nil)
	}()

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT role, content, ts FROM turns WHERE conversation = ? ORDER BY ts ASC, id ASC",
		s.cfg.Conversation)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns = []Turn{}
	for rows.Next() {
		var (
			turn Turn
			role string
		)
		if err := rows.Scan(&role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = Role(role)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return turns, nil
}

// Clear deletes every turn of the conversation.
func (s *SQLiteStore) Clear(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordMemoryOperation("clear", time.Since(start), err == nil)
	}()

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE conversation = ?", s.cfg.Conversation)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear turns: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	removed, _ := result.RowsAffected()
	observability.SetMemoryTurns(0)
	s.logger.Info().Int64("removed", removed).Msg("Conversation cleared")
	return nil
}

// Close releases the database. Further operations return ErrClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
