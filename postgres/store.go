package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	authgate "github.com/authgate/authgate"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolationCode = "23505"

// Store is a CredentialStore over a users table. Uniqueness of the email is
// enforced by the primary key, so concurrent registrations resolve in the
// database, not in application code.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing connection pool. The schema must already be in
// place; use Open to get migrations applied automatically.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn through the pgx stdlib driver, applies pending
// migrations, and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	store := &Store{db: db}
	if err := store.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return store, nil
}

// RunMigrations applies the embedded goose migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, s.db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Register(ctx context.Context, email, passwordHash string) error {
	query :=
		`INSERT INTO users (email, password_hash, created_at)
		 VALUES ($1, $2, $3)
		 `

	_, err := s.db.ExecContext(ctx, query, email, passwordHash, time.Now().Unix())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return authgate.ErrDuplicateUser
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *Store) Lookup(ctx context.Context, email string) (authgate.Credential, error) {
	query :=
		`SELECT password_hash, created_at FROM users
		 WHERE email = $1
		 `

	cred := authgate.Credential{Email: email}
	err := s.db.QueryRowContext(ctx, query, email).Scan(&cred.PasswordHash, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authgate.Credential{}, authgate.ErrUserNotFound
		}
		return authgate.Credential{}, fmt.Errorf("db error: %w", err)
	}

	return cred, nil
}

// UpdateHash lets the engine persist upgraded password hashes after login.
func (s *Store) UpdateHash(ctx context.Context, email, passwordHash string) error {
	query :=
		`UPDATE users SET password_hash = $2
		 WHERE email = $1
		 `

	res, err := s.db.ExecContext(ctx, query, email, passwordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return authgate.ErrUserNotFound
	}

	return nil
}
