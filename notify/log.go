package notify

import (
	"context"
	"log/slog"

	"memberflow/member"
)

// LogNotifier writes notifications to the log instead of sending mail. Used
// when no SMTP host is configured, typically in local development.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, email, name, tempPassword string) error {
	n.log.Info("welcome mail suppressed", "to", email, "name", name)
	return nil
}

func (n *LogNotifier) NotifyAdminUpdate(ctx context.Context, mem member.Member, delta member.UpdateRequest) error {
	n.log.Info("admin update-review mail suppressed", "member", mem.Email)
	return nil
}

func (n *LogNotifier) NotifyAdminDelete(ctx context.Context, mem member.Member) error {
	n.log.Info("admin delete-review mail suppressed", "member", mem.Email)
	return nil
}

func (n *LogNotifier) NotifyMemberUpdateApproved(ctx context.Context, email string, before member.Snapshot, requested member.UpdateRequest) error {
	n.log.Info("update-approved mail suppressed", "to", email)
	return nil
}

func (n *LogNotifier) NotifyMemberDeleteApproved(ctx context.Context, email string, name *string) error {
	n.log.Info("delete-approved mail suppressed", "to", email)
	return nil
}

func (n *LogNotifier) NotifyMemberRejected(ctx context.Context, email string, reason *string, name *string) error {
	n.log.Info("rejected mail suppressed", "to", email)
	return nil
}

func (n *LogNotifier) NotifyMemberUpdated(ctx context.Context, email, name string) error {
	n.log.Info("profile-updated mail suppressed", "to", email)
	return nil
}

func (n *LogNotifier) NotifyMemberDeleted(ctx context.Context, email, name string) error {
	n.log.Info("account-removed mail suppressed", "to", email)
	return nil
}
