package changereq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"memberflow/member"
)

var testLogger = slog.New(slog.DiscardHandler)

func ptr[T any](v T) *T { return &v }

func testMember() member.Member {
	return member.Member{
		ID:          "member-1",
		Name:        "Alice Doe",
		Email:       "alice@example.com",
		PhoneNumber: "1112223333",
		Age:         20,
		Place:       "Pune",
		Version:     3,
	}
}

func TestSubmitProfileUpdate_NoChanges(t *testing.T) {
	repo := newFakeRequestRepo()
	notifier := &fakeAdminNotifier{}
	svc := NewSubmitService(&fakeMemberReader{m: testMember()}, repo, notifier, testLogger)

	delta := member.UpdateRequest{
		Email: ptr("ALICE@example.com"), // same login key modulo case
		Age:   ptr(20),
	}

	_, err := svc.SubmitProfileUpdate(context.Background(), "alice@example.com", delta)
	if !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no request persisted, got %d", len(repo.created))
	}
	if notifier.updates != 0 {
		t.Fatalf("expected no admin notification, got %d", notifier.updates)
	}
}

func TestSubmitProfileUpdate_PersistsAndNotifies(t *testing.T) {
	repo := newFakeRequestRepo()
	notifier := &fakeAdminNotifier{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewSubmitService(&fakeMemberReader{m: testMember()}, repo, notifier, testLogger).
		WithIDGenerator(func() string { return "req-1" }).
		WithClock(func() time.Time { return now })

	delta := member.UpdateRequest{Age: ptr(30), PhoneNumber: ptr("9627713570")}

	created, err := svc.SubmitProfileUpdate(context.Background(), "alice@example.com", delta)
	if err != nil {
		t.Fatalf("submit: unexpected error: %v", err)
	}

	if created.ID != "req-1" || created.Type != TypeUpdate || created.Status != StatusPending {
		t.Fatalf("unexpected request: %+v", created)
	}
	if created.MemberEmail != "alice@example.com" || created.MemberID != "member-1" {
		t.Fatalf("unexpected member linkage: %+v", created)
	}
	if created.Before.Age != 20 || created.Before.PhoneNumber != "1112223333" {
		t.Fatalf("snapshot not captured: %+v", created.Before)
	}
	if created.Requested == nil || *created.Requested.Age != 30 {
		t.Fatalf("delta not stored: %+v", created.Requested)
	}
	if !created.SubmittedAt.Equal(now) {
		t.Fatalf("expected submittedAt %v, got %v", now, created.SubmittedAt)
	}
	if notifier.updates != 1 {
		t.Fatalf("expected one admin notification, got %d", notifier.updates)
	}
}

func TestSubmitProfileUpdate_NotifyFailurePropagatesAfterSave(t *testing.T) {
	repo := newFakeRequestRepo()
	notifier := &fakeAdminNotifier{updateErr: errors.New("smtp down")}
	svc := NewSubmitService(&fakeMemberReader{m: testMember()}, repo, notifier, testLogger)

	_, err := svc.SubmitProfileUpdate(context.Background(), "alice@example.com", member.UpdateRequest{Age: ptr(30)})
	if err == nil {
		t.Fatal("expected notification failure to propagate")
	}
	// The request must still have been saved before the notification ran.
	if len(repo.created) != 1 {
		t.Fatalf("expected the request to be persisted, got %d", len(repo.created))
	}
}

func TestSubmitProfileUpdate_MemberNotFound(t *testing.T) {
	repo := newFakeRequestRepo()
	svc := NewSubmitService(&fakeMemberReader{err: member.ErrNotFound}, repo, &fakeAdminNotifier{}, testLogger)

	_, err := svc.SubmitProfileUpdate(context.Background(), "ghost@example.com", member.UpdateRequest{Age: ptr(30)})
	if !errors.Is(err, member.ErrNotFound) {
		t.Fatalf("expected member.ErrNotFound, got %v", err)
	}
}

func TestSubmitDeleteRequest_DuplicatePending(t *testing.T) {
	repo := newFakeRequestRepo()
	repo.pendingMembers["member-1"] = true
	svc := NewSubmitService(&fakeMemberReader{m: testMember()}, repo, &fakeAdminNotifier{}, testLogger)

	_, err := svc.SubmitDeleteRequest(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrPendingRequestExists) {
		t.Fatalf("expected ErrPendingRequestExists, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no request persisted, got %d", len(repo.created))
	}
}

func TestSubmitDeleteRequest_NotifyFailureSwallowed(t *testing.T) {
	repo := newFakeRequestRepo()
	notifier := &fakeAdminNotifier{deleteErr: errors.New("smtp down")}
	svc := NewSubmitService(&fakeMemberReader{m: testMember()}, repo, notifier, testLogger)

	created, err := svc.SubmitDeleteRequest(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("delete-path notification failures must not propagate, got %v", err)
	}
	if created.Type != TypeDelete || created.Requested != nil {
		t.Fatalf("unexpected request: %+v", created)
	}
	if notifier.deletes != 1 {
		t.Fatalf("expected admin delete notification attempt, got %d", notifier.deletes)
	}
}

type fakeMemberReader struct {
	m   member.Member
	err error
}

func (f *fakeMemberReader) GetByEmail(ctx context.Context, email string) (member.Member, error) {
	if f.err != nil {
		return member.Member{}, f.err
	}
	return f.m, nil
}

type fakeAdminNotifier struct {
	updates   int
	deletes   int
	updateErr error
	deleteErr error
}

func (f *fakeAdminNotifier) NotifyAdminUpdate(ctx context.Context, m member.Member, delta member.UpdateRequest) error {
	f.updates++
	return f.updateErr
}

func (f *fakeAdminNotifier) NotifyAdminDelete(ctx context.Context, m member.Member) error {
	f.deletes++
	return f.deleteErr
}

// fakeRequestRepo is an in-memory Repository shared by the submit and review
// tests.
type fakeRequestRepo struct {
	requests       map[string]ChangeRequest
	pendingMembers map[string]bool
	created        []ChangeRequest
	createErr      error
	reviewed       int
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{
		requests:       make(map[string]ChangeRequest),
		pendingMembers: make(map[string]bool),
	}
}

func (f *fakeRequestRepo) GetByID(ctx context.Context, id string) (ChangeRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return ChangeRequest{}, ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeRequestRepo) Create(ctx context.Context, req ChangeRequest) (ChangeRequest, error) {
	if f.createErr != nil {
		return ChangeRequest{}, f.createErr
	}
	if f.pendingMembers[req.MemberID] {
		return ChangeRequest{}, ErrPendingRequestExists
	}
	f.requests[req.ID] = req
	f.created = append(f.created, req)
	f.pendingMembers[req.MemberID] = true
	return req, nil
}

func (f *fakeRequestRepo) MarkReviewed(ctx context.Context, id string, status Status, reviewedBy string, reviewedAt time.Time, reason *string) (ChangeRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return ChangeRequest{}, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return ChangeRequest{}, ErrRequestNotPending
	}
	req.Status = status
	req.ReviewedBy = &reviewedBy
	req.ReviewedAt = &reviewedAt
	req.RejectionReason = reason
	f.requests[id] = req
	f.pendingMembers[req.MemberID] = false
	f.reviewed++
	return req, nil
}

func (f *fakeRequestRepo) ExistsPendingForMember(ctx context.Context, memberID string) (bool, error) {
	return f.pendingMembers[memberID], nil
}

func (f *fakeRequestRepo) ListByStatus(ctx context.Context, status Status) ([]ChangeRequest, error) {
	var out []ChangeRequest
	for _, req := range f.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}
