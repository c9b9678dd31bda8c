package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Submitter races to insert pending change requests for one member. The
// partial unique index on (member_id) WHERE status='PENDING' must keep at
// most one alive no matter how many submitters collide.
func Submitter(ctx context.Context, pool *pgxpool.Pool, memberID, memberEmail string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		ty := "UPDATE"
		var requested []byte
		if rand.Intn(3) == 0 {
			ty = "DELETE"
		} else {
			requested = fmt.Appendf(nil, `{"age": %d}`, 18+rand.Intn(60))
		}

		_, err := pool.Exec(ctx, `INSERT INTO change_requests (id, member_id, member_email, type, status, before, requested, submitted_by, submitted_at)
                                  VALUES ($1,$2,$3,$4,'PENDING','{}'::jsonb,$5,$3,NOW())`,
			uuid.NewString(), memberID, memberEmail, ty, requested)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// expected under contention
			} else {
				return fmt.Errorf("submitter insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Reviewer locks whatever pending request it can grab and drives it to a
// terminal status, applying the member mutation before the status write the
// way the review service does. Deletion approvals would end the run, so
// DELETE requests are always rejected.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		var reqID, memberID, ty string
		err = tx.QueryRow(ctx, `SELECT id, member_id, type FROM change_requests
                                WHERE status='PENDING' LIMIT 1 FOR UPDATE SKIP LOCKED`).Scan(&reqID, &memberID, &ty)
		if err == nil {
			if ty == "DELETE" || rand.Intn(4) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE change_requests SET status='REJECTED', reviewed_by='stress-admin', reviewed_at=NOW(), rejection_reason='load test'
                                     WHERE id=$1 AND status='PENDING'`, reqID)
			} else {
				_, _ = tx.Exec(ctx, `UPDATE members SET age = age + 1, version = version + 1, updated_at = NOW() WHERE id=$1`, memberID)
				_, _ = tx.Exec(ctx, `UPDATE change_requests SET status='APPROVED', reviewed_by='stress-admin', reviewed_at=NOW()
                                     WHERE id=$1 AND status='PENDING'`, reqID)
			}
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// ProfileEditor applies optimistic-version member updates, simulating the
// direct admin edits that race with approvals. Stale versions are expected
// and simply retried next round.
func ProfileEditor(ctx context.Context, pool *pgxpool.Pool, memberID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var version int64
		if err := pool.QueryRow(ctx, `SELECT version FROM members WHERE id=$1`, memberID).Scan(&version); err == nil {
			_, _ = pool.Exec(ctx, `UPDATE members SET place=$1, version=version+1, updated_at=NOW()
                                   WHERE id=$2 AND version=$3`,
				fmt.Sprintf("Place %d", rand.Intn(100)), memberID, version)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Registrar keeps enrolling fresh members with paired logins, tolerating the
// occasional unique-key collision.
func Registrar(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		memberID := uuid.NewString()
		email := fmt.Sprintf("stress-%d@example.com", rand.Int63())
		phone := fmt.Sprintf("9%09d", rand.Int63n(1_000_000_000))

		_, err := pool.Exec(ctx, `INSERT INTO members (id, name, email, phone_number, age, place, registration_date)
                                  VALUES ($1,'Stress Member',$2,$3,30,'Nowhere',CURRENT_DATE)`, memberID, email, phone)
		if err == nil {
			_, _ = pool.Exec(ctx, `INSERT INTO login_identities (id, user_name, password_hash, roles, must_change_password, member_id)
                                   VALUES ($1,$2,'x',ARRAY['member'],TRUE,$3)`, uuid.NewString(), email, memberID)
		} else {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
				return fmt.Errorf("registrar insert: %w", err)
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}
