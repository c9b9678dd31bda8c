package changereq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"memberflow/member"
)

var (
	// ErrRequestNotFound signals no change request exists for the id.
	ErrRequestNotFound = errors.New("changereq: request not found")
	// ErrRequestNotPending signals a terminal request was acted upon.
	ErrRequestNotPending = errors.New("changereq: request is not pending")
	// ErrPendingRequestExists signals the member already has a request in review.
	ErrPendingRequestExists = errors.New("changereq: member already has a pending request")
)

// Repository handles data access for change requests.
type Repository interface {
	GetByID(ctx context.Context, id string) (ChangeRequest, error)
	Create(ctx context.Context, req ChangeRequest) (ChangeRequest, error)
	MarkReviewed(ctx context.Context, id string, status Status, reviewedBy string, reviewedAt time.Time, reason *string) (ChangeRequest, error)
	ExistsPendingForMember(ctx context.Context, memberID string) (bool, error)
	ListByStatus(ctx context.Context, status Status) ([]ChangeRequest, error)
}

// PGRepository implements Repository backed by PostgreSQL. The snapshot and
// the requested delta are stored as jsonb columns; the one-pending-per-member
// invariant is a partial unique index on (member_id) WHERE status='PENDING'.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed change-request repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, member_id, member_email, type, status, before, requested,
	submitted_by, submitted_at, reviewed_by, reviewed_at, rejection_reason`

// GetByID retrieves a change request by identifier.
func (r *PGRepository) GetByID(ctx context.Context, id string) (ChangeRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM change_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChangeRequest{}, ErrRequestNotFound
		}
		return ChangeRequest{}, fmt.Errorf("changereq: get by id: %w", err)
	}
	return req, nil
}

// Create inserts a new pending change request. A second pending request for
// the same member trips the partial unique index and surfaces as
// ErrPendingRequestExists, closing the race the submission pre-check leaves
// open.
func (r *PGRepository) Create(ctx context.Context, req ChangeRequest) (ChangeRequest, error) {
	before, err := json.Marshal(req.Before)
	if err != nil {
		return ChangeRequest{}, fmt.Errorf("changereq: marshal snapshot: %w", err)
	}
	var requested []byte
	if req.Requested != nil {
		if requested, err = json.Marshal(req.Requested); err != nil {
			return ChangeRequest{}, fmt.Errorf("changereq: marshal delta: %w", err)
		}
	}

	const insertSQL = `
		INSERT INTO change_requests (id, member_id, member_email, type, status, before, requested, submitted_by, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + requestColumns

	created, err := scanRequest(r.pool.QueryRow(ctx, insertSQL,
		req.ID, req.MemberID, req.MemberEmail, req.Type, req.Status, before, requested,
		req.SubmittedBy, req.SubmittedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ChangeRequest{}, ErrPendingRequestExists
		}
		return ChangeRequest{}, fmt.Errorf("changereq: create: %w", err)
	}
	return created, nil
}

// MarkReviewed moves a pending request to its terminal status. The WHERE
// clause guards the transition at the store level: a request that is no
// longer pending matches no row and the caller gets ErrRequestNotPending.
func (r *PGRepository) MarkReviewed(ctx context.Context, id string, status Status, reviewedBy string, reviewedAt time.Time, reason *string) (ChangeRequest, error) {
	if !CanTransition(StatusPending, status) {
		return ChangeRequest{}, fmt.Errorf("changereq: illegal transition %s -> %s", StatusPending, status)
	}

	const updateSQL = `
		UPDATE change_requests
		SET status = $1, reviewed_by = $2, reviewed_at = $3, rejection_reason = $4
		WHERE id = $5 AND status = $6
		RETURNING ` + requestColumns

	updated, err := scanRequest(r.pool.QueryRow(ctx, updateSQL,
		status, reviewedBy, reviewedAt, reason, id, StatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrRequestNotFound) {
				return ChangeRequest{}, ErrRequestNotFound
			}
			return ChangeRequest{}, ErrRequestNotPending
		}
		return ChangeRequest{}, fmt.Errorf("changereq: mark reviewed: %w", err)
	}
	return updated, nil
}

// ExistsPendingForMember reports whether the member already has a request in
// review.
func (r *PGRepository) ExistsPendingForMember(ctx context.Context, memberID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM change_requests WHERE member_id = $1 AND status = $2)`,
		memberID, StatusPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("changereq: exists pending: %w", err)
	}
	return exists, nil
}

// ListByStatus returns all requests with the given status, oldest first, for
// the admin review queue.
func (r *PGRepository) ListByStatus(ctx context.Context, status Status) ([]ChangeRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM change_requests WHERE status = $1 ORDER BY submitted_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("changereq: list by status: %w", err)
	}
	defer rows.Close()

	requests := []ChangeRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("changereq: list scan: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changereq: list rows: %w", err)
	}
	return requests, nil
}

func scanRequest(row pgx.Row) (ChangeRequest, error) {
	var (
		req       ChangeRequest
		before    []byte
		requested []byte
	)
	err := row.Scan(
		&req.ID,
		&req.MemberID,
		&req.MemberEmail,
		&req.Type,
		&req.Status,
		&before,
		&requested,
		&req.SubmittedBy,
		&req.SubmittedAt,
		&req.ReviewedBy,
		&req.ReviewedAt,
		&req.RejectionReason,
	)
	if err != nil {
		return ChangeRequest{}, err
	}

	if len(before) > 0 {
		if err := json.Unmarshal(before, &req.Before); err != nil {
			return ChangeRequest{}, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	if len(requested) > 0 {
		var delta member.UpdateRequest
		if err := json.Unmarshal(requested, &delta); err != nil {
			return ChangeRequest{}, fmt.Errorf("unmarshal delta: %w", err)
		}
		req.Requested = &delta
	}
	return req, nil
}
