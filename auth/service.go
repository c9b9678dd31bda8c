package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong username or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
)

// Service handles authentication business logic.
type Service struct {
	repo        Repository
	jwtSecret   []byte
	idGenerator func() string
	now         func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
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

// Login authenticates an identity and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	identity, err := s.repo.GetByUserName(ctx, req.UserName)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(identity)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token:              token,
		Identity:           identity,
		MustChangePassword: identity.MustChangePassword,
	}, nil
}

// ProvisionMember creates the login identity for a freshly registered member.
// The password is expected to be a generated temporary one, so the identity is
// flagged to force a reset on first login.
func (s *Service) ProvisionMember(ctx context.Context, memberID, email, tempPassword string) (Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: hash password: %w", err)
	}

	return s.repo.Create(ctx, Identity{
		ID:                 s.idGenerator(),
		UserName:           email,
		PasswordHash:       string(hash),
		Roles:              []string{string(RoleMember)},
		MustChangePassword: true,
		MemberID:           &memberID,
	})
}

// CreateAdmin creates an administrator identity with a caller-chosen password.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (Identity, error) {
	if len(password) < 8 {
		return Identity{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: hash password: %w", err)
	}

	return s.repo.Create(ctx, Identity{
		ID:           s.idGenerator(),
		UserName:     email,
		PasswordHash: string(hash),
		Roles:        []string{string(RoleAdmin)},
	})
}

// ResetPassword replaces the stored hash and clears the must-change flag.
func (s *Service) ResetPassword(ctx context.Context, userName, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	identity, err := s.repo.GetByUserName(ctx, userName)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}

	if _, err := s.repo.UpdatePassword(ctx, identity.ID, string(hash), false); err != nil {
		return err
	}
	return nil
}

// RenameLogin moves the identity keyed by userName to a new username, keeping
// the login key in step with a changed member email.
func (s *Service) RenameLogin(ctx context.Context, userName, newUserName string) error {
	identity, err := s.repo.GetByUserName(ctx, userName)
	if err != nil {
		return err
	}
	if _, err := s.repo.UpdateUserName(ctx, identity.ID, newUserName); err != nil {
		return err
	}
	return nil
}

// DeleteLogin removes the identity keyed by userName. Deleting an absent
// identity is not an error.
func (s *Service) DeleteLogin(ctx context.Context, userName string) error {
	return s.repo.Delete(ctx, userName)
}

// VerifyToken validates a JWT token and returns the username and roles.
func (s *Service) VerifyToken(tokenString string) (string, []string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", nil, fmt.Errorf("auth: invalid token")
	}

	userName, ok := claims["sub"].(string)
	if !ok || userName == "" {
		return "", nil, fmt.Errorf("auth: invalid subject in token")
	}

	rawRoles, ok := claims["roles"].([]any)
	if !ok {
		return "", nil, fmt.Errorf("auth: invalid roles in token")
	}
	roles := make([]string, 0, len(rawRoles))
	for _, r := range rawRoles {
		role, ok := r.(string)
		if !ok {
			return "", nil, fmt.Errorf("auth: invalid role entry in token")
		}
		roles = append(roles, role)
	}

	return userName, roles, nil
}

// generateToken creates a JWT token for the identity.
func (s *Service) generateToken(identity Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   identity.UserName,
		"roles": identity.Roles,
		"exp":   now.Add(24 * time.Hour).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

const tempPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// GenerateTempPassword returns a random 12-character temporary password drawn
// from an alphabet without look-alike characters.
func GenerateTempPassword() (string, error) {
	out := make([]byte, 12)
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("auth: generate temp password: %w", err)
		}
		out[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}
