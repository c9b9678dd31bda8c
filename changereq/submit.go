package changereq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"memberflow/member"
	"memberflow/notify"
)

// ErrNoChanges signals an update submission whose delta matches the current
// profile on every requested field.
var ErrNoChanges = errors.New("changereq: no changes detected")

// MemberReader resolves the submitting member.
type MemberReader interface {
	GetByEmail(ctx context.Context, email string) (member.Member, error)
}

// AdminNotifier alerts the administrator that a request awaits review.
type AdminNotifier interface {
	NotifyAdminUpdate(ctx context.Context, m member.Member, delta member.UpdateRequest) error
	NotifyAdminDelete(ctx context.Context, m member.Member) error
}

// SubmitService converts member self-service requests into durable pending
// change requests.
type SubmitService struct {
	members     MemberReader
	repo        Repository
	notifier    AdminNotifier
	log         *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

// NewSubmitService creates a submission service.
func NewSubmitService(members MemberReader, repo Repository, notifier AdminNotifier, log *slog.Logger) *SubmitService {
	return &SubmitService{
		members:     members,
		repo:        repo,
		notifier:    notifier,
		log:         log,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *SubmitService) WithIDGenerator(gen func() string) *SubmitService {
	s.idGenerator = gen
	return s
}

func (s *SubmitService) WithClock(now func() time.Time) *SubmitService {
	s.now = now
	return s
}

// SubmitProfileUpdate records a pending UPDATE request for the member who owns
// loginKey. Submissions whose delta changes nothing are rejected outright.
//
// The admin notification on this path is deliberately Required: the change
// request has already been persisted, so a returned error means "saved, but
// the admin may not know" — callers should fall back to the pending list
// rather than trust this call's success signal alone.
func (s *SubmitService) SubmitProfileUpdate(ctx context.Context, loginKey string, delta member.UpdateRequest) (ChangeRequest, error) {
	m, err := s.members.GetByEmail(ctx, loginKey)
	if err != nil {
		return ChangeRequest{}, err
	}

	if !delta.HasChanges(m) {
		return ChangeRequest{}, ErrNoChanges
	}

	req := ChangeRequest{
		ID:          s.idGenerator(),
		MemberID:    m.ID,
		MemberEmail: m.Email,
		Type:        TypeUpdate,
		Status:      StatusPending,
		Before:      member.SnapshotOf(m),
		Requested:   &delta,
		SubmittedBy: loginKey,
		SubmittedAt: s.now(),
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		return ChangeRequest{}, err
	}

	if err := notify.Dispatch(s.log, notify.Required, "admin update review", func() error {
		return s.notifier.NotifyAdminUpdate(ctx, m, delta)
	}); err != nil {
		return created, err
	}
	return created, nil
}

// SubmitDeleteRequest records a pending DELETE request for the member who owns
// loginKey. A member with a request already in review gets a conflict.
func (s *SubmitService) SubmitDeleteRequest(ctx context.Context, loginKey string) (ChangeRequest, error) {
	m, err := s.members.GetByEmail(ctx, loginKey)
	if err != nil {
		return ChangeRequest{}, err
	}

	exists, err := s.repo.ExistsPendingForMember(ctx, m.ID)
	if err != nil {
		return ChangeRequest{}, err
	}
	if exists {
		return ChangeRequest{}, ErrPendingRequestExists
	}

	req := ChangeRequest{
		ID:          s.idGenerator(),
		MemberID:    m.ID,
		MemberEmail: m.Email,
		Type:        TypeDelete,
		Status:      StatusPending,
		Before:      member.SnapshotOf(m),
		SubmittedBy: loginKey,
		SubmittedAt: s.now(),
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		return ChangeRequest{}, err
	}

	notify.Dispatch(s.log, notify.BestEffort, "admin delete review", func() error {
		return s.notifier.NotifyAdminDelete(ctx, m)
	})
	return created, nil
}

// ListPending returns the admin review queue, oldest submissions first.
func (s *SubmitService) ListPending(ctx context.Context) ([]ChangeRequest, error) {
	return s.repo.ListByStatus(ctx, StatusPending)
}
