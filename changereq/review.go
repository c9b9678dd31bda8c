package changereq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memberflow/auth"
	"memberflow/member"
	"memberflow/notify"
)

// ErrUnsupportedChangeType guards the type dispatch. The column is constrained
// to UPDATE/DELETE so this is unreachable for well-formed rows, but the branch
// must exist for robustness against bad data.
var ErrUnsupportedChangeType = errors.New("changereq: unsupported change type")

// MemberStore is the member access the review state machine needs.
type MemberStore interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
	Update(ctx context.Context, m member.Member) (member.Member, error)
	Delete(ctx context.Context, id string) error
}

// LoginStore keeps the login username in sync with the member's email.
type LoginStore interface {
	GetByUserName(ctx context.Context, userName string) (auth.Identity, error)
	UpdateUserName(ctx context.Context, id, userName string) (auth.Identity, error)
	Delete(ctx context.Context, userName string) error
}

// MemberNotifier tells the member how their request was resolved.
type MemberNotifier interface {
	NotifyMemberUpdateApproved(ctx context.Context, email string, before member.Snapshot, requested member.UpdateRequest) error
	NotifyMemberDeleteApproved(ctx context.Context, email string, name *string) error
	NotifyMemberRejected(ctx context.Context, email string, reason *string, name *string) error
}

// ReviewService is the approval/rejection state machine. All domain mutations
// happen before the terminal status write, so a crash in between leaves the
// request visibly PENDING; re-running the approval is safe because the patch
// is applied field-by-field against the current member.
type ReviewService struct {
	repo     Repository
	members  MemberStore
	logins   LoginStore
	notifier MemberNotifier
	log      *slog.Logger
	now      func() time.Time
}

// NewReviewService creates a review service.
func NewReviewService(repo Repository, members MemberStore, logins LoginStore, notifier MemberNotifier, log *slog.Logger) *ReviewService {
	return &ReviewService{
		repo:     repo,
		members:  members,
		logins:   logins,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

// Approve applies a pending request to the member and login stores, then
// marks it APPROVED. Any failure before the final write aborts with the
// request still PENDING so the reviewer can retry.
func (s *ReviewService) Approve(ctx context.Context, requestID, reviewedBy string) (ChangeRequest, error) {
	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return ChangeRequest{}, err
	}

	switch req.Type {
	case TypeUpdate:
		if err := s.applyUpdate(ctx, req); err != nil {
			return ChangeRequest{}, err
		}
	case TypeDelete:
		if err := s.applyDelete(ctx, req); err != nil {
			return ChangeRequest{}, err
		}
	default:
		return ChangeRequest{}, fmt.Errorf("%w: %q", ErrUnsupportedChangeType, req.Type)
	}

	return s.repo.MarkReviewed(ctx, req.ID, StatusApproved, reviewedBy, s.now(), nil)
}

// Reject marks a pending request REJECTED with the optional reason, then
// notifies the member best-effort.
func (s *ReviewService) Reject(ctx context.Context, requestID, reviewedBy string, reason *string) (ChangeRequest, error) {
	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return ChangeRequest{}, err
	}

	rejected, err := s.repo.MarkReviewed(ctx, req.ID, StatusRejected, reviewedBy, s.now(), reason)
	if err != nil {
		return ChangeRequest{}, err
	}

	name := s.memberName(ctx, req.MemberID)
	notify.Dispatch(s.log, notify.BestEffort, "member rejected", func() error {
		return s.notifier.NotifyMemberRejected(ctx, req.MemberEmail, reason, name)
	})
	return rejected, nil
}

func (s *ReviewService) pendingRequest(ctx context.Context, requestID string) (ChangeRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return ChangeRequest{}, err
	}
	if req.Status != StatusPending {
		return ChangeRequest{}, ErrRequestNotPending
	}
	return req, nil
}

func (s *ReviewService) applyUpdate(ctx context.Context, req ChangeRequest) error {
	m, err := s.members.GetByID(ctx, req.MemberID)
	if err != nil {
		// The member may have been removed independently since submission;
		// surface it rather than approving against nothing.
		return err
	}

	var delta member.UpdateRequest
	if req.Requested != nil {
		delta = *req.Requested
	}

	beforeEmail := m.Email
	updated, err := s.members.Update(ctx, delta.ApplyTo(m))
	if err != nil {
		// Duplicate email/phone or a stale version surfaces as a conflict and
		// the request stays PENDING for a retry.
		return err
	}

	if !strings.EqualFold(updated.Email, beforeEmail) {
		// The login record is keyed by the email captured at submission, not
		// the member's pre-update email: earlier approvals may already have
		// moved the member's email while the login key lagged behind.
		identity, err := s.logins.GetByUserName(ctx, req.MemberEmail)
		if err != nil {
			return err
		}
		if _, err := s.logins.UpdateUserName(ctx, identity.ID, updated.Email); err != nil {
			return err
		}
	}

	notify.Dispatch(s.log, notify.BestEffort, "member update approved", func() error {
		return s.notifier.NotifyMemberUpdateApproved(ctx, beforeEmail, req.Before, delta)
	})
	return nil
}

func (s *ReviewService) applyDelete(ctx context.Context, req ChangeRequest) error {
	// Send the notification first, while the address is still known. A member
	// record that is already gone is tolerated: the end state "no member" is
	// the same, and the mail goes out with no display name.
	name := s.memberName(ctx, req.MemberID)
	notify.Dispatch(s.log, notify.BestEffort, "member delete approved", func() error {
		return s.notifier.NotifyMemberDeleteApproved(ctx, req.MemberEmail, name)
	})

	if err := s.logins.Delete(ctx, req.MemberEmail); err != nil {
		return err
	}
	return s.members.Delete(ctx, req.MemberID)
}

func (s *ReviewService) memberName(ctx context.Context, memberID string) *string {
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil
	}
	return &m.Name
}
