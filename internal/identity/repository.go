package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no identity matches the lookup.
	ErrNotFound = errors.New("identity not found")

	// ErrDuplicateUsername is returned by Create when the normalized username is taken.
	ErrDuplicateUsername = errors.New("username already in use")
)

const uniqueViolation = "23505"

// Store persists identities.
type Store interface {
	Create(ctx context.Context, ident Identity) error
	FindByID(ctx context.Context, id string) (Identity, error)
	FindByUsername(ctx context.Context, username string) (Identity, error)
	Delete(ctx context.Context, id string) error
	SetEmailConfirmed(ctx context.Context, id string) error
	SetPhoneConfirmed(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
	Count(ctx context.Context) (int, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed identity store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectIdentity = `SELECT id, username, email, phone, email_confirmed, phone_confirmed,
        two_factor_enabled, password_hash, created_at, updated_at FROM identities`

// Create inserts a new identity. A unique violation on the normalized username maps to
// ErrDuplicateUsername so concurrent registrations resolve here.
func (s *PostgresStore) Create(ctx context.Context, ident Identity) error {
	id, err := uuid.Parse(ident.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO identities (id, username, normalized_username, email, phone,
        email_confirmed, phone_confirmed, two_factor_enabled, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, ident.Username, NormalizeUsername(ident.Username), nullable(ident.Email), nullable(ident.Phone),
		ident.EmailConfirmed, ident.PhoneConfirmed, ident.TwoFactorEnabled, ident.PasswordHash,
		ident.CreatedAt.UTC(), ident.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateUsername
	}
	return err
}

// FindByID fetches an identity by id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Identity, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, ErrNotFound
	}
	return s.scan(s.db.QueryRow(ctx, selectIdentity+` WHERE id = $1`, uid))
}

// FindByUsername fetches an identity by its normalized username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Identity, error) {
	return s.scan(s.db.QueryRow(ctx, selectIdentity+` WHERE normalized_username = $1`, NormalizeUsername(username)))
}

// Delete removes an identity.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
}

// SetEmailConfirmed marks the email channel confirmed. Identities registered by phone
// are left untouched and reported as not found.
func (s *PostgresStore) SetEmailConfirmed(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE identities SET email_confirmed = TRUE, updated_at = now()
        WHERE id = $1 AND email IS NOT NULL`, id)
}

// SetPhoneConfirmed marks the phone channel confirmed.
func (s *PostgresStore) SetPhoneConfirmed(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE identities SET phone_confirmed = TRUE, updated_at = now()
        WHERE id = $1 AND phone IS NOT NULL`, id)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := s.db.Exec(ctx, `UPDATE identities SET password_hash = $1, updated_at = now() WHERE id = $2`, hash, uid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored identities.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) exec(ctx context.Context, query, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := s.db.Exec(ctx, query, uid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scan(row pgx.Row) (Identity, error) {
	var (
		id           uuid.UUID
		email, phone *string
		ident        Identity
	)
	err := row.Scan(&id, &ident.Username, &email, &phone, &ident.EmailConfirmed, &ident.PhoneConfirmed,
		&ident.TwoFactorEnabled, &ident.PasswordHash, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	ident.ID = id.String()
	if email != nil {
		ident.Email = *email
	}
	if phone != nil {
		ident.Phone = *phone
	}
	ident.CreatedAt = ident.CreatedAt.UTC()
	ident.UpdatedAt = ident.UpdatedAt.UTC()
	return ident, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
