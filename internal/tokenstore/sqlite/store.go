// Package sqlite persists the token pair in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"finboard/internal/log"
	"finboard/internal/tokenstore"
)

var _ tokenstore.Store = (*Store)(nil)

type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New opens (and migrates) the token database at dbPath.
func New(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.WithComponent(log.ComponentTokenStore),
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (tokenstore.Tokens, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM credentials WHERE key IN (?, ?)`,
		tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken)
	if err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var t tokenstore.Tokens
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return tokenstore.Tokens{}, fmt.Errorf("scan credential: %w", err)
		}
		switch key {
		case tokenstore.KeyAccessToken:
			t.Access = value
		case tokenstore.KeyRefreshToken:
			t.Refresh = value
		}
	}
	if err := rows.Err(); err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("iterate credentials: %w", err)
	}
	return t, nil
}

func (s *Store) Save(ctx context.Context, t tokenstore.Tokens) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	for key, value := range map[string]string{
		tokenstore.KeyAccessToken:  t.Access,
		tokenstore.KeyRefreshToken: t.Refresh,
	} {
		if value == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	s.logger.DebugContext(ctx, "Tokens saved")
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE key IN (?, ?)`,
		tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.DebugContext(ctx, "Tokens cleared")
	return nil
}
