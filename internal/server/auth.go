package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/rxverify/internal/common"
)

// Claims is the bearer token payload. Roles holds "issuer" and/or "verifier".
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type AuthConfig struct {
	Secret []byte
	Issuer string
}

// Enabled reports whether bearer tokens are enforced.
func (a AuthConfig) Enabled() bool { return len(a.Secret) > 0 }

// ParseToken validates an HS256 token and returns its claims.
func (a AuthConfig) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, common.ErrUnauthorized
	}
	return claims, nil
}

// IssueToken signs a token for subject with roles, valid for ttl.
func (a AuthConfig) IssueToken(subject string, roles []string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("%w: no signing secret configured", common.ErrInvalidInput)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// bearer extracts the token from an "Authorization: Bearer <token>" value.
func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// JWTMiddleware authenticates the request and stores the principal on its
// context. It is a no-op when auth is disabled.
func JWTMiddleware(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !cfg.Enabled() {
			return next
		}
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			raw, ok := bearer(authHeader)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			claims, err := cfg.ParseToken(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			ctx := common.WithPrincipal(c.Request().Context(), claims.Subject, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireRole passes requests whose principal holds any of roles. It is a
// no-op when auth is disabled.
func RequireRole(cfg AuthConfig, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !cfg.Enabled() {
			return next
		}
		return func(c echo.Context) error {
			if hasAnyRole(common.RolesFromContext(c.Request().Context()), roles) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func hasAnyRole(have, want []string) bool {
	for _, r := range want {
		if slices.Contains(have, r) {
			return true
		}
	}
	return false
}
