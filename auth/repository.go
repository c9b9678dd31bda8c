package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrIdentityNotFound signals that no login identity exists for the key.
	ErrIdentityNotFound = errors.New("auth: login identity not found")
	// ErrDuplicateUserName signals that the username is already registered.
	ErrDuplicateUserName = errors.New("auth: username already exists")
)

// Repository handles data access for login identities.
type Repository interface {
	GetByUserName(ctx context.Context, userName string) (Identity, error)
	GetByMemberID(ctx context.Context, memberID string) (Identity, error)
	Create(ctx context.Context, identity Identity) (Identity, error)
	UpdateUserName(ctx context.Context, id, userName string) (Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) (Identity, error)
	Delete(ctx context.Context, userName string) error
	DeleteByID(ctx context.Context, id string) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed login-identity repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const identityColumns = `id, user_name, password_hash, roles, must_change_password, member_id, created_at, updated_at`

// GetByUserName retrieves an identity by its unique login username.
func (r *PGRepository) GetByUserName(ctx context.Context, userName string) (Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM login_identities WHERE user_name = $1`, userName)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("auth: get by username: %w", err)
	}
	return identity, nil
}

// GetByMemberID retrieves the identity linked to a member record.
func (r *PGRepository) GetByMemberID(ctx context.Context, memberID string) (Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM login_identities WHERE member_id = $1`, memberID)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("auth: get by member id: %w", err)
	}
	return identity, nil
}

// Create inserts a new login identity.
func (r *PGRepository) Create(ctx context.Context, identity Identity) (Identity, error) {
	const insertSQL = `
		INSERT INTO login_identities (id, user_name, password_hash, roles, must_change_password, member_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + identityColumns

	created, err := scanIdentity(r.pool.QueryRow(ctx, insertSQL,
		identity.ID,
		identity.UserName,
		identity.PasswordHash,
		identity.Roles,
		identity.MustChangePassword,
		identity.MemberID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Identity{}, ErrDuplicateUserName
		}
		return Identity{}, fmt.Errorf("auth: create identity: %w", err)
	}
	return created, nil
}

// UpdateUserName moves the identity to a new login key. Used when a member's
// email changes so authentication keeps working.
func (r *PGRepository) UpdateUserName(ctx context.Context, id, userName string) (Identity, error) {
	const updateSQL = `
		UPDATE login_identities
		SET user_name = $1, updated_at = now()
		WHERE id = $2
		RETURNING ` + identityColumns

	updated, err := scanIdentity(r.pool.QueryRow(ctx, updateSQL, userName, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Identity{}, ErrDuplicateUserName
		}
		return Identity{}, fmt.Errorf("auth: update username: %w", err)
	}
	return updated, nil
}

// UpdatePassword stores a new password hash and the must-change flag.
func (r *PGRepository) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) (Identity, error) {
	const updateSQL = `
		UPDATE login_identities
		SET password_hash = $1, must_change_password = $2, updated_at = now()
		WHERE id = $3
		RETURNING ` + identityColumns

	updated, err := scanIdentity(r.pool.QueryRow(ctx, updateSQL, passwordHash, mustChange, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("auth: update password: %w", err)
	}
	return updated, nil
}

// Delete removes the identity with the given username. Missing rows are not
// an error so delete flows stay idempotent.
func (r *PGRepository) Delete(ctx context.Context, userName string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM login_identities WHERE user_name = $1`, userName); err != nil {
		return fmt.Errorf("auth: delete identity: %w", err)
	}
	return nil
}

// DeleteByID removes the identity with the given id.
func (r *PGRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM login_identities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("auth: delete identity by id: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		identity Identity
		memberID *string
	)
	err := row.Scan(
		&identity.ID,
		&identity.UserName,
		&identity.PasswordHash,
		&identity.Roles,
		&identity.MustChangePassword,
		&memberID,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return Identity{}, err
	}
	identity.MemberID = memberID
	return identity, nil
}
