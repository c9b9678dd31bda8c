package changereq

import (
	"time"

	"memberflow/member"
)

type ChangeType string

const (
	TypeUpdate ChangeType = "UPDATE"
	TypeDelete ChangeType = "DELETE"
)

// ChangeRequest is the durable record of one proposed profile mutation
// awaiting (or past) an administrator decision. Requests are never deleted;
// the resolved rows form the audit trail.
type ChangeRequest struct {
	ID       string
	MemberID string
	// MemberEmail is the submitter's login key captured at submission time.
	// It keys the login-identity lookups during review, because the member's
	// current email may have moved on since.
	MemberEmail string
	Type        ChangeType
	Status      Status

	// Before is the profile snapshot at submission, kept for diff display.
	Before member.Snapshot
	// Requested is the partial patch for UPDATE requests; nil for DELETE.
	Requested *member.UpdateRequest

	SubmittedBy string
	SubmittedAt time.Time

	ReviewedBy      *string
	ReviewedAt      *time.Time
	RejectionReason *string
}
