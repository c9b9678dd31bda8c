package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"memberflow/auth"
)

// ErrValidation signals input that fails the registration format rules.
var ErrValidation = errors.New("member: validation failed")

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\d{10,12}$`)
	digitsOnly   = regexp.MustCompile(`^\d+$`)
)

// RegisterRequest carries the fields needed to enroll a new member.
type RegisterRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Age         int    `json:"age"`
	Place       string `json:"place"`
}

// Validate checks the registration fields against the input format rules.
func (r RegisterRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > 25 {
		return fmt.Errorf("%w: name must be 1-25 characters", ErrValidation)
	}
	if digitsOnly.MatchString(name) {
		return fmt.Errorf("%w: name must not contain only numbers", ErrValidation)
	}
	if !emailPattern.MatchString(strings.TrimSpace(r.Email)) {
		return fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	if !phonePattern.MatchString(r.PhoneNumber) {
		return fmt.Errorf("%w: phone number must be 10-12 digits", ErrValidation)
	}
	if r.Age < 0 || r.Age > 150 {
		return fmt.Errorf("%w: age must be between 0 and 150", ErrValidation)
	}
	return nil
}

// Validate checks the requested fields of a partial update. Nil fields are
// skipped.
func (r UpdateRequest) Validate() error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" || len(name) > 25 {
			return fmt.Errorf("%w: name must be 1-25 characters", ErrValidation)
		}
		if digitsOnly.MatchString(name) {
			return fmt.Errorf("%w: name must not contain only numbers", ErrValidation)
		}
	}
	if r.Email != nil && !emailPattern.MatchString(strings.TrimSpace(*r.Email)) {
		return fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	if r.PhoneNumber != nil && !phonePattern.MatchString(*r.PhoneNumber) {
		return fmt.Errorf("%w: phone number must be 10-12 digits", ErrValidation)
	}
	if r.Age != nil && (*r.Age < 0 || *r.Age > 150) {
		return fmt.Errorf("%w: age must be between 0 and 150", ErrValidation)
	}
	return nil
}

// Logins provisions and maintains the login identity tied to a member.
type Logins interface {
	ProvisionMember(ctx context.Context, memberID, email, tempPassword string) (auth.Identity, error)
	RenameLogin(ctx context.Context, userName, newUserName string) error
	DeleteLogin(ctx context.Context, userName string) error
}

// Notifier sends the member lifecycle mails the service emits.
type Notifier interface {
	SendWelcome(ctx context.Context, email, name, tempPassword string) error
	NotifyMemberUpdated(ctx context.Context, email, name string) error
	NotifyMemberDeleted(ctx context.Context, email, name string) error
}

// Service handles member registration and the direct admin edits that bypass
// the review queue.
type Service struct {
	repo        Repository
	logins      Logins
	notifier    Notifier
	log         *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

// NewService creates a member service.
func NewService(repo Repository, logins Logins, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		logins:      logins,
		notifier:    notifier,
		log:         log,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register enrolls a new member and provisions their login with a generated
// temporary password, mailed to them rather than returned. A failed login
// provisioning rolls the member row back so the two stores stay in step.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Member, error) {
	if err := req.Validate(); err != nil {
		return Member{}, err
	}

	created, err := s.repo.Create(ctx, Member{
		ID:               s.idGenerator(),
		Name:             NormalizeName(req.Name),
		Email:            NormalizeEmail(req.Email),
		PhoneNumber:      strings.TrimSpace(req.PhoneNumber),
		Age:              req.Age,
		Place:            NormalizePlace(req.Place),
		RegistrationDate: s.now(),
	})
	if err != nil {
		return Member{}, err
	}

	tempPassword, err := auth.GenerateTempPassword()
	if err != nil {
		return Member{}, s.rollbackRegistration(ctx, created.ID, err)
	}
	if _, err := s.logins.ProvisionMember(ctx, created.ID, created.Email, tempPassword); err != nil {
		return Member{}, s.rollbackRegistration(ctx, created.ID, err)
	}

	s.notifyBestEffort("welcome", func() error {
		return s.notifier.SendWelcome(ctx, created.Email, created.Name, tempPassword)
	})
	return created, nil
}

func (s *Service) rollbackRegistration(ctx context.Context, memberID string, cause error) error {
	if err := s.repo.Delete(ctx, memberID); err != nil {
		s.log.Error("registration rollback failed", "memberId", memberID, "error", err)
	}
	return fmt.Errorf("member: provision login: %w", cause)
}

// Update applies an admin edit directly, without going through the review
// queue. The login key follows the email when it changes.
func (s *Service) Update(ctx context.Context, id string, delta UpdateRequest) (Member, error) {
	if err := delta.Validate(); err != nil {
		return Member{}, err
	}

	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Member{}, err
	}

	if delta.Email != nil {
		taken, err := s.repo.ExistsByEmailExcludingID(ctx, *delta.Email, id)
		if err != nil {
			return Member{}, err
		}
		if taken {
			return Member{}, ErrDuplicateEmail
		}
	}
	if delta.PhoneNumber != nil {
		taken, err := s.repo.ExistsByPhoneExcludingID(ctx, *delta.PhoneNumber, id)
		if err != nil {
			return Member{}, err
		}
		if taken {
			return Member{}, ErrDuplicatePhone
		}
	}

	updated, err := s.repo.Update(ctx, delta.ApplyTo(m))
	if err != nil {
		return Member{}, err
	}

	if !strings.EqualFold(updated.Email, m.Email) {
		if err := s.logins.RenameLogin(ctx, m.Email, updated.Email); err != nil {
			return Member{}, fmt.Errorf("member: rename login: %w", err)
		}
	}

	s.notifyBestEffort("member updated", func() error {
		return s.notifier.NotifyMemberUpdated(ctx, updated.Email, updated.Name)
	})
	return updated, nil
}

// Delete removes a member and their login directly, without review. The
// notification goes out first, while the address is still known to be live.
func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.notifyBestEffort("member deleted", func() error {
		return s.notifier.NotifyMemberDeleted(ctx, m.Email, m.Name)
	})

	if err := s.logins.DeleteLogin(ctx, m.Email); err != nil {
		return fmt.Errorf("member: delete login: %w", err)
	}
	return s.repo.Delete(ctx, m.ID)
}

// Get retrieves a member by id.
func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail retrieves a member by their unique email.
func (s *Service) GetByEmail(ctx context.Context, email string) (Member, error) {
	return s.repo.GetByEmail(ctx, email)
}

// Search returns one page of members matching filters plus the total count.
func (s *Service) Search(ctx context.Context, filters Filters) ([]Member, int, error) {
	return s.repo.Search(ctx, filters)
}

func (s *Service) notifyBestEffort(op string, call func() error) {
	if err := call(); err != nil {
		s.log.Warn("notification failed", "op", op, "error", err)
	}
}
