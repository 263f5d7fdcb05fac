// Package credstore persists bearer tokens between runs, one per server.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Credential is a stored login for one chat server.
type Credential struct {
	Server     string
	Username   string
	Token      string
	TokenType  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt time.Time
}

// Store is a SQLite-backed credential store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	// The file holds bearer tokens.
	if err := os.Chmod(dbPath, 0o600); err != nil {
		logger.Warn("cannot restrict credential file permissions", "path", dbPath, "err", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Save inserts or replaces the credential for cred.Server.
func (s *Store) Save(ctx context.Context, cred Credential) error {
	if cred.Server == "" || cred.Token == "" {
		return errors.New("save credential: server and token are required")
	}
	if cred.TokenType == "" {
		cred.TokenType = "bearer"
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (server, username, token, token_type, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			token_type = excluded.token_type,
			updated_at = excluded.updated_at,
			last_used_at = excluded.last_used_at`,
		cred.Server, cred.Username, cred.Token, cred.TokenType, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	s.logger.Debug("credential saved", "server", cred.Server, "username", cred.Username)
	return nil
}

// Load returns the credential for server, or nil when none is stored.
func (s *Store) Load(ctx context.Context, server string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT server, username, token, token_type, created_at, updated_at, last_used_at
		FROM credentials WHERE server = ?`, server)

	var c Credential
	var lastUsed sql.NullTime
	err := row.Scan(&c.Server, &c.Username, &c.Token, &c.TokenType, &c.CreatedAt, &c.UpdatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	c.LastUsedAt = lastUsed.Time
	return &c, nil
}

// Touch records that the credential for server was used.
func (s *Store) Touch(ctx context.Context, server string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE credentials SET last_used_at = ? WHERE server = ?", time.Now().UTC(), server); err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}

// Delete removes the credential for server. Deleting a missing entry is
// not an error.
func (s *Store) Delete(ctx context.Context, server string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE server = ?", server); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// List returns every stored credential ordered by server.
func (s *Store) List(ctx context.Context) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server, username, token, token_type, created_at, updated_at, last_used_at
		FROM credentials ORDER BY server`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		var lastUsed sql.NullTime
		if err := rows.Scan(&c.Server, &c.Username, &c.Token, &c.TokenType, &c.CreatedAt, &c.UpdatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.LastUsedAt = lastUsed.Time
		out = append(out, c)
	}
	return out, rows.Err()
}

// SchemaVersion reports the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return SchemaVersion(ctx, s.db)
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
