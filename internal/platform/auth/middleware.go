package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// UserLookup returns the current state of an account. The middleware uses it
// so that deactivation and role changes take effect before the token
// expires.
type UserLookup interface {
	LookupPrincipal(ctx context.Context, userID string) (Principal, error)
}

type MiddlewareConfig struct {
	Issuer      *TokenIssuer
	Revocations RevocationStore
	// Users is optional; without it the claims in the token are trusted.
	Users   UserLookup
	Skipper func(echo.Context) bool
	Logger  zerolog.Logger
}

// Middleware authenticates bearer session tokens. Requests without a valid,
// non-revoked token for an active account are rejected.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			p, err := cfg.Authenticate(ctx, tokenStr)
			if err != nil {
				return err
			}

			c.Set("user_id", p.UserID)
			ctx = ContextWithPrincipal(ctx, p)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// Authenticate resolves a raw session token to the current principal. Errors
// are echo HTTP errors carrying the status the caller should see.
func (cfg MiddlewareConfig) Authenticate(ctx context.Context, tokenStr string) (Principal, error) {
	p, err := cfg.Issuer.Parse(tokenStr)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	if cfg.Revocations != nil {
		revoked, err := cfg.Revocations.IsRevoked(ctx, p.TokenID)
		if err != nil {
			cfg.Logger.Error().Err(err).Msg("revocation lookup failed")
			return Principal{}, echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
		}
		if revoked {
			return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "session has been signed out")
		}
	}

	if cfg.Users != nil {
		current, err := cfg.Users.LookupPrincipal(ctx, p.UserID)
		if err != nil {
			return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		p.Email, p.Name = current.Email, current.Name
		p.Role, p.Active = current.Role, current.Active
	}
	if !p.Active {
		return Principal{}, echo.NewHTTPError(http.StatusForbidden, "account is inactive")
	}
	return p, nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

// ActorFromContext names the caller for audit columns (requested_by,
// discharged_by, ...). Empty when unauthenticated.
func ActorFromContext(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	if p.Email != "" {
		return p.Email
	}
	return p.UserID
}
