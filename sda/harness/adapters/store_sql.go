package adapters

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLCheckpointStore keeps one checkpoint blob per thread in a SQLite-compatible database.
type SQLCheckpointStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLCheckpointStore applies pending migrations and returns the store.
func NewSQLCheckpointStore(ctx context.Context, db *sql.DB) (*SQLCheckpointStore, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &SQLCheckpointStore{db: db, now: time.Now}, nil
}

// Migrate brings the checkpoint schema up to date using the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// Save stores blob as the latest checkpoint of threadID.
func (s *SQLCheckpointStore) Save(ctx context.Context, threadID string, blob []byte) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sda_checkpoints (id, thread_id, blob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`, uuid.NewString(), threadID, blob, now, now)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", threadID, err)
	}
	return nil
}

// Load returns the latest checkpoint of threadID; ok is false when none exists.
func (s *SQLCheckpointStore) Load(ctx context.Context, threadID string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM sda_checkpoints WHERE thread_id = ?`, threadID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load checkpoint for %s: %w", threadID, err)
	}
	return blob, true, nil
}

func (s *SQLCheckpointStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sda_checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", threadID, err)
	}
	return nil
}

var _ ports.CheckpointStore = (*SQLCheckpointStore)(nil)
