// Package sqlite implements an authz.Backend over database/sql using the
// pure-Go modernc.org/sqlite driver (a direct teacher dependency) with
// schema managed by goose migrations, grounded on the teacher's go.mod
// pairing of modernc.org/sqlite and github.com/pressly/goose/v3 for
// embedded relational storage.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Backend is a SQLite-backed authz.Backend.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at dsn and applies
// pending goose migrations.
func Open(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite authz: open %s: %w", dsn, err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite authz: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite authz: migrate: %w", err)
	}

	return &Backend{db: db}, nil
}

// Passwd implements authz.Backend.
func (b *Backend) Passwd(ctx context.Context, user string) (string, bool, error) {
	var hash string
	err := b.db.QueryRowContext(ctx, `SELECT passwd_hash FROM accounts WHERE user = ?`, user).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite authz: passwd: %w", err)
	}
	return hash, true, nil
}

// Group implements authz.Backend.
func (b *Backend) Group(ctx context.Context, user string) (string, error) {
	var group sql.NullString
	err := b.db.QueryRowContext(ctx, `SELECT account_group FROM accounts WHERE user = ?`, user).Scan(&group)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite authz: group: %w", err)
	}
	return group.String, nil
}

// Home implements authz.Backend.
func (b *Backend) Home(ctx context.Context, user string) (string, error) {
	var home sql.NullString
	err := b.db.QueryRowContext(ctx, `SELECT home FROM accounts WHERE user = ?`, user).Scan(&home)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite authz: home: %w", err)
	}
	return home.String, nil
}

// Close implements authz.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Join implements authz.TokenJoiner.
func (b *Backend) Join(ctx context.Context, user, token string, expire time.Duration) error {
	var expiresAt sql.NullTime
	if expire != 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(expire), Valid: true}
	}
	_, err := b.db.ExecContext(ctx,
		`UPDATE accounts SET token = ?, token_expires_at = ? WHERE user = ?`,
		token, expiresAt, user)
	if err != nil {
		return fmt.Errorf("sqlite authz: join: %w", err)
	}
	return nil
}

// Check implements authz.TokenChecker.
func (b *Backend) Check(ctx context.Context, token string) (string, bool, error) {
	var user string
	var expiresAt sql.NullTime
	err := b.db.QueryRowContext(ctx,
		`SELECT user, token_expires_at FROM accounts WHERE token = ?`, token).
		Scan(&user, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite authz: check: %w", err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return "", false, nil
	}
	return user, true, nil
}

// Seed inserts or replaces an account record. Exposed for tests and
// provisioning tooling rather than for the request path.
func (b *Backend) Seed(ctx context.Context, user, passwdHash, group, home string) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO accounts (user, passwd_hash, account_group, home) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user) DO UPDATE SET passwd_hash = excluded.passwd_hash,
		   account_group = excluded.account_group, home = excluded.home`,
		user, passwdHash, group, home)
	if err != nil {
		return fmt.Errorf("sqlite authz: seed: %w", err)
	}
	return nil
}
