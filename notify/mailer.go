package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wneessen/go-mail"

	"memberflow/member"
)

// MailerConfig carries SMTP connection settings and the addresses used in
// outgoing mail.
type MailerConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
	LoginURL   string
}

// Mailer sends registry notifications over SMTP.
type Mailer struct {
	client *mail.Client
	cfg    MailerConfig
}

// NewMailer builds an SMTP-backed mailer.
func NewMailer(cfg MailerConfig) (*Mailer, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return &Mailer{client: client, cfg: cfg}, nil
}

// SendWelcome mails a freshly registered member their temporary password.
func (m *Mailer) SendWelcome(ctx context.Context, email, name, tempPassword string) error {
	body := fmt.Sprintf(`<h2>Welcome %s</h2>
<p>Your membership account has been created. Sign in with the temporary password below; you will be asked to set a new one.</p>
<p><b>Email:</b> %s<br><b>Temporary password:</b> <code>%s</code></p>
<p><a href=%q>Sign in</a></p>`,
		html.EscapeString(name), html.EscapeString(email), html.EscapeString(tempPassword), m.cfg.LoginURL)
	return m.send(ctx, email, "You're added as a member — set your password", body)
}

// NotifyAdminUpdate tells the administrator a profile update awaits review.
func (m *Mailer) NotifyAdminUpdate(ctx context.Context, mem member.Member, delta member.UpdateRequest) error {
	body := fmt.Sprintf(`<h2>Profile update requested</h2>
<p>%s (%s) submitted a profile update that needs your review.</p>
<table border="1" cellpadding="6" cellspacing="0">%s</table>`,
		html.EscapeString(mem.Name), html.EscapeString(mem.Email),
		DiffRows(member.SnapshotOf(mem), delta))
	return m.send(ctx, m.cfg.AdminEmail, "Member profile update pending review", body)
}

// NotifyAdminDelete tells the administrator a deletion awaits review.
func (m *Mailer) NotifyAdminDelete(ctx context.Context, mem member.Member) error {
	body := fmt.Sprintf(`<h2>Account deletion requested</h2>
<p>%s (%s) asked for their account to be deleted. The request is pending your review.</p>`,
		html.EscapeString(mem.Name), html.EscapeString(mem.Email))
	return m.send(ctx, m.cfg.AdminEmail, "Member deletion pending review", body)
}

// NotifyMemberUpdateApproved tells the member their update went live, with a
// before/after diff of the changed fields.
func (m *Mailer) NotifyMemberUpdateApproved(ctx context.Context, email string, before member.Snapshot, requested member.UpdateRequest) error {
	body := fmt.Sprintf(`<h2>Your profile update was approved</h2>
<p>Hi %s, your requested changes were approved and applied to your profile.</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Field</th><th>Before</th><th>After</th></tr>%s</table>`,
		html.EscapeString(before.Name), DiffRows(before, requested))
	return m.send(ctx, email, "Your profile update was approved", body)
}

// NotifyMemberDeleteApproved tells the member their account is gone. The name
// may be nil when the member record was already removed.
func (m *Mailer) NotifyMemberDeleteApproved(ctx context.Context, email string, name *string) error {
	display := "there"
	if name != nil {
		display = *name
	}
	body := fmt.Sprintf(`<h2>Your account deletion was approved</h2>
<p>Hi %s, your deletion request was approved and your data has been removed.</p>
<p>If this was a mistake, contact support immediately.</p>`, html.EscapeString(display))
	return m.send(ctx, email, "Your account deletion was approved", body)
}

// NotifyMemberRejected tells the member their request was declined.
func (m *Mailer) NotifyMemberRejected(ctx context.Context, email string, reason *string, name *string) error {
	var b strings.Builder
	b.WriteString("<h2>Your request could not be approved</h2><p>")
	if name != nil {
		fmt.Fprintf(&b, "Hi %s, ", html.EscapeString(*name))
	}
	b.WriteString("your request was rejected by the administrator.")
	if reason != nil && strings.TrimSpace(*reason) != "" {
		fmt.Fprintf(&b, " Reason: %s", html.EscapeString(*reason))
	}
	b.WriteString("</p>")
	return m.send(ctx, email, "Your request was rejected", b.String())
}

// NotifyMemberUpdated tells the member an administrator edited their profile.
func (m *Mailer) NotifyMemberUpdated(ctx context.Context, email, name string) error {
	body := fmt.Sprintf(`<p>Hi %s, your member profile was updated by an administrator.</p>`,
		html.EscapeString(name))
	return m.send(ctx, email, "Your member profile was updated", body)
}

// NotifyMemberDeleted tells the member an administrator removed their account.
func (m *Mailer) NotifyMemberDeleted(ctx context.Context, email, name string) error {
	body := fmt.Sprintf(`<p>Hi %s, your membership account was removed by an administrator.</p>`,
		html.EscapeString(name))
	return m.send(ctx, email, "Your membership account was removed", body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("notify: from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("notify: to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %q to %s: %w", subject, to, err)
	}
	return nil
}

// DiffRows renders one HTML table row per field the delta actually changes.
func DiffRows(before member.Snapshot, requested member.UpdateRequest) string {
	var b strings.Builder
	row := func(field, oldVal, newVal string) {
		if oldVal == newVal {
			return
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(field), html.EscapeString(oldVal), html.EscapeString(newVal))
	}
	if requested.Name != nil {
		row("Name", before.Name, *requested.Name)
	}
	if requested.Email != nil {
		row("Email", before.Email, member.NormalizeEmail(*requested.Email))
	}
	if requested.PhoneNumber != nil {
		row("Phone", before.PhoneNumber, *requested.PhoneNumber)
	}
	if requested.Age != nil {
		row("Age", fmt.Sprintf("%d", before.Age), fmt.Sprintf("%d", *requested.Age))
	}
	if requested.Place != nil {
		row("Place", before.Place, *requested.Place)
	}
	return b.String()
}
