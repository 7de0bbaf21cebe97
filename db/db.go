// Package db provides the Postgres connection, schema migration and the
// database-backed accounts store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/config"
	"github.com/onnwee/chatter/crypto"
)

// AccountsKey is the kv row holding the accounts document.
const AccountsKey = "accounts"

// Connect opens a Postgres connection pool for dsn and checks it responds.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DB_DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return database, nil
}

// Migrate applies the schema. Kept as the single entry point callers use.
func Migrate(ctx context.Context, database *sql.DB) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return RunMigrations(database)
}

// AccountStore keeps the accounts document in the kv table. It implements
// config.Store. With a Sealer, credentials are stored encrypted.
type AccountStore struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

// NewAccountStore returns a store over database. sealer may be nil.
func NewAccountStore(database *sql.DB, sealer *crypto.Sealer) *AccountStore {
	return &AccountStore{db: database, sealer: sealer}
}

// Load returns the stored snapshot, or the placeholder template when no
// document has been saved yet.
func (s *AccountStore) Load(ctx context.Context) (chat.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, AccountsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return config.Template(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	snap, err := config.Decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	opened, err := s.sealer.OpenSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrConfiguration, err)
	}
	return opened, nil
}

// Save validates snap and upserts it.
func (s *AccountStore) Save(ctx context.Context, snap chat.Snapshot) error {
	if err := config.ValidateSnapshot(snap); err != nil {
		return err
	}
	if s.sealer != nil {
		sealed, err := s.sealer.SealSnapshot(snap)
		if err != nil {
			return fmt.Errorf("seal credentials: %w", err)
		}
		snap = sealed
	}
	b, err := config.Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		AccountsKey, string(b))
	if err != nil {
		return fmt.Errorf("upsert accounts: %w", err)
	}
	return nil
}

// UpdatedAt returns when the accounts document was last saved.
func (s *AccountStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key=$1`, AccountsKey).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

var _ config.Store = (*AccountStore)(nil)
