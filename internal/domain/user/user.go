// Package user defines the user domain model for authentication and
// permission resolution.
package user

import (
	"errors"
	"net/mail"
	"time"
	"unicode"
)

// MaxFailedAttempts is the number of consecutive failed login attempts
// before an account is temporarily locked.
const MaxFailedAttempts = 5

// LockoutDuration is how long an account stays locked after exceeding
// MaxFailedAttempts.
const LockoutDuration = 15 * time.Minute

// User is a registered account. Komodo has no role enum beyond two binary
// elevations (Admin, SuperAdmin) — all other authorization is resolved
// per-resource via explicit grants and kind-all levels (internal/domain/permission).
type User struct {
	ID                 string    `json:"id"`
	Username            string    `json:"username"`
	Email              string    `json:"email,omitempty"`
	Name               string    `json:"name,omitempty"`
	PasswordHash       string    `json:"-"`
	Admin              bool      `json:"admin"`
	SuperAdmin         bool      `json:"super_admin"`
	ServiceUser        bool      `json:"service_user"`
	Enabled            bool      `json:"enabled"`
	MustChangePassword bool      `json:"must_change_password"`
	FailedAttempts     int       `json:"-"`
	LockedUntil        time.Time `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsLocked returns true if the account is currently locked due to too many
// failed login attempts.
func (u *User) IsLocked() bool {
	return !u.LockedUntil.IsZero() && time.Now().Before(u.LockedUntil)
}

// CreateRequest is the input for registering a new interactive user.
// Service users (no password, API-key only) are created via a separate
// admin-only request, see internal/service/auth.CreateServiceUser.
type CreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

func (r *CreateRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return errors.New("invalid email format")
		}
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return ValidatePasswordComplexity(r.Password)
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // response field, not a hardcoded secret
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

// TokenClaims contains the JWT payload fields.
type TokenClaims struct {
	JTI        string `json:"jti,omitempty"`
	UserID     string `json:"sub"`
	Username   string `json:"username"`
	Admin      bool   `json:"admin,omitempty"`
	SuperAdmin bool   `json:"super_admin,omitempty"`
	Audience   string `json:"aud,omitempty"`
	Issuer     string `json:"iss,omitempty"`
	IssuedAt   int64  `json:"iat"`
	Expiry     int64  `json:"exp"`
}

// ChangePasswordRequest is the input for changing a user's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r.OldPassword == "" {
		return errors.New("old password is required")
	}
	if r.NewPassword == "" {
		return errors.New("new password is required")
	}
	return ValidatePasswordComplexity(r.NewPassword)
}

// ValidatePasswordComplexity checks that a password meets minimum
// complexity requirements: at least 10 characters, contains uppercase,
// lowercase, and a digit.
func ValidatePasswordComplexity(password string) error {
	if len(password) < 10 {
		return errors.New("password must be at least 10 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return errors.New("password must contain at least one digit")
	}
	return nil
}

// RefreshToken is a stored refresh token.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is a UserGroup resource: a named set of member users whose grants
// apply to every member.
type Group struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Users []string `json:"users"`
}
