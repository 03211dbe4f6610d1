package middleware

import (
	"errors"
	"net/http"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/sweet_shop/pkg/logging"
	"github.com/Skotchmaster/sweet_shop/pkg/tokens"
)

const (
	CtxClaims = "user"
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
)

const (
	MsgUnauthorized = "Unauthorized"
	MsgForbidden    = "You are not authorized"
)

type TokenParser interface {
	AccessClaimsFromToken(token string) (*tokens.AccessClaims, error)
}

type AuthMiddleware struct {
	requireAuth echo.MiddlewareFunc
}

// NewAuthMiddleware builds a bearer-token guard. Tokens are read from
// "Authorization: Bearer <jwt>" and verified by p; any failure is a 401.
func NewAuthMiddleware(p TokenParser) *AuthMiddleware {
	mw := echojwt.WithConfig(echojwt.Config{
		ContextKey:  CtxClaims,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(_ echo.Context, auth string) (interface{}, error) {
			return p.AccessClaimsFromToken(auth)
		},
		SuccessHandler: func(c echo.Context) {
			if claims, ok := c.Get(CtxClaims).(*tokens.AccessClaims); ok {
				setUserContext(c, claims)
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			l := logging.FromContext(c.Request().Context())
			l.Warn("auth_failed", "status", http.StatusUnauthorized, "reason", failureReason(err), "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthorized).SetInternal(err)
		},
	})
	return &AuthMiddleware{requireAuth: mw}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuth(next)
}

// RequireRole must run after RequireAuth. It is the only place role policy is
// enforced; routes name the roles they admit.
func (m *AuthMiddleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthorized)
			}
			if !Allowed(role, roles...) {
				l := logging.FromContext(c.Request().Context())
				l.Warn("access_denied", "status", http.StatusForbidden, "role", role, "required", roles)
				return echo.NewHTTPError(http.StatusForbidden, MsgForbidden)
			}
			return next(c)
		}
	}
}

func Allowed(role string, required ...string) bool {
	return slices.Contains(required, role)
}

func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get(CtxUserID).(uint)
	return id, ok
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	if id, err := claims.UserID(); err == nil {
		c.Set(CtxUserID, id)
	}
	c.Set(CtxEmail, claims.Email)
	c.Set(CtxRole, claims.Role)
}

func failureReason(err error) string {
	var extractErr *echojwt.TokenExtractionError
	switch {
	case errors.As(err, &extractErr):
		return "missing bearer token"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	default:
		return "invalid token"
	}
}
