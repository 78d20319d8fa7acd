package identity

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
)

var (
	ErrUserNotFound = apperr.NotFound("user")
	ErrEmailTaken   = apperr.New(apperr.ErrConflict, "email already registered")
	ErrInactive     = apperr.New(apperr.ErrForbidden, "account is inactive")
	ErrLastAdmin    = apperr.New(apperr.ErrConflict, "at least one active admin must remain")

	// ErrBadCredentials covers both unknown emails and wrong passwords. It
	// carries no apperr kind; the handler answers 401.
	ErrBadCredentials = errors.New("invalid email or password")
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{
		UserID: u.ID.String(),
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		Active: u.Active,
	}
}

func (u *User) isActiveAdmin() bool { return u.Active && u.Role == auth.RoleAdmin }

// Session is what a successful sign-in returns.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Profile   *User     `json:"profile"`
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validRole(r string) bool { return r == auth.RoleAdmin || r == auth.RoleUser }

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

type CreateUserInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (in *CreateUserInput) Validate() error {
	v := &apperr.ValidationError{}
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = auth.RoleUser
	}

	if in.Email == "" {
		v.Add("email", "is required")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		v.Add("email", "is not a valid address")
	}
	v.Required("name", in.Name)
	if len(in.Password) < auth.MinPasswordLen {
		v.Add("password", "is too short")
	}
	if !validRole(in.Role) {
		v.Add("role", "must be admin or user")
	}
	return v.Err()
}

// UpdateUserInput changes only the fields that are set.
type UpdateUserInput struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Active *bool   `json:"is_active"`
}

func (in *UpdateUserInput) Validate() error {
	v := &apperr.ValidationError{}
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		in.Name = &n
		v.Required("name", n)
	}
	if in.Role != nil && !validRole(*in.Role) {
		v.Add("role", "must be admin or user")
	}
	return v.Err()
}
