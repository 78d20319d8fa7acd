package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
	"github.com/ehr/bedboard/pkg/pagination"
)

// Service manages accounts and sessions. It also serves as the
// auth.UserLookup so deactivation takes effect on live sessions.
type Service struct {
	repo        Repository
	tx          db.TxRunner
	issuer      *auth.TokenIssuer
	revocations auth.RevocationStore
	pub         changefeed.Publisher
	now         func() time.Time
	logger      zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, issuer *auth.TokenIssuer, revocations auth.RevocationStore, pub changefeed.Publisher) *Service {
	return &Service{
		repo:        repo,
		tx:          tx,
		issuer:      issuer,
		revocations: revocations,
		pub:         pub,
		now:         time.Now,
		logger:      zerolog.Nop(),
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

func (s *Service) publish(ctx context.Context, op changefeed.Op, id uuid.UUID) {
	ch := changefeed.Change{Table: changefeed.TableUsers, Op: op, ID: id.String(), At: s.now().UTC()}
	if err := s.pub.Publish(ctx, ch); err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.String()).Msg("publish user change")
	}
}

func (s *Service) SignIn(ctx context.Context, in SignInInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if apperr.Kind(err) == apperr.ErrNotFound {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, in.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("stored password hash is unreadable")
		return nil, ErrBadCredentials
	}
	if !ok {
		return nil, ErrBadCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}

	token, exp, err := s.issuer.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("signed in")
	return &Session{Token: token, ExpiresAt: exp, Profile: u}, nil
}

// SignOut revokes the session the request was authenticated with until it
// would have expired anyway.
func (s *Service) SignOut(ctx context.Context) error {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.TokenID == "" {
		return apperr.New(apperr.ErrValidation, "no session to sign out")
	}
	return s.revocations.Revoke(ctx, p.TokenID, p.ExpiresAt)
}

func (s *Service) Me(ctx context.Context) (*User, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrUserNotFound
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// LookupPrincipal implements auth.UserLookup.
func (s *Service) LookupPrincipal(ctx context.Context, userID string) (auth.Principal, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return auth.Principal{}, ErrUserNotFound
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return auth.Principal{}, err
	}
	return u.Principal(), nil
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Invalid("password", err.Error())
	}
	u := &User{Email: in.Email, Name: in.Name, PasswordHash: hash, Role: in.Role, Active: true}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.publish(ctx, changefeed.OpInsert, u.ID)
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).
		Str("by", auth.ActorFromContext(ctx)).Msg("user created")
	return u, nil
}

// UpdateUser applies a partial change. The last active admin cannot be
// demoted or deactivated.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var u *User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		wasAdmin := u.isActiveAdmin()
		if in.Name != nil {
			u.Name = *in.Name
		}
		if in.Role != nil {
			u.Role = *in.Role
		}
		if in.Active != nil {
			u.Active = *in.Active
		}
		if wasAdmin && !u.isActiveAdmin() {
			n, err := s.repo.CountActiveAdmins(ctx)
			if err != nil {
				return err
			}
			if n <= 1 {
				return ErrLastAdmin
			}
		}
		return s.repo.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, changefeed.OpUpdate, u.ID)
	return u, nil
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	return s.UpdateUser(ctx, id, UpdateUserInput{Active: &active})
}

func (s *Service) SetRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	role = strings.TrimSpace(role)
	return s.UpdateUser(ctx, id, UpdateUserInput{Role: &role})
}

func (s *Service) ListUsers(ctx context.Context, page pagination.Params) ([]*User, int, error) {
	return s.repo.List(ctx, page.Limit, page.Offset)
}
