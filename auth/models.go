package auth

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Identity is the credential record keyed by a login username, which is always
// the linked member's email. It mirrors the login_identities table and should
// not include JSON annotations so it can be reused by different presentation
// layers.
type Identity struct {
	ID                 string
	UserName           string
	PasswordHash       string
	Roles              []string
	MustChangePassword bool
	MemberID           *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// LoginRequest contains login credentials supplied by callers.
type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// LoginResult bundles the token and identity returned after a successful login.
type LoginResult struct {
	Token              string
	Identity           Identity
	MustChangePassword bool
}
