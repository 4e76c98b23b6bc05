package middleware

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/clinic-crm/internal/model"
	echo "github.com/labstack/echo/v4"
)

const ctxIdentity = "identity"

// SessionParser validates a session token.
type SessionParser interface {
	Parse(token string) (*model.Identity, error)
}

// IdentityFromCtx extracts the identity set by SessionMiddleware.
func IdentityFromCtx(c echo.Context) (*model.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(*model.Identity)
	return id, ok && id != nil
}

// SessionToken returns the bearer token, falling back to the session cookie.
func SessionToken(c echo.Context, cookieName string) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookieName == "" {
		return ""
	}
	if ck, err := c.Cookie(cookieName); err == nil {
		return ck.Value
	}
	return ""
}

// SessionMiddleware authenticates requests with a session token. Identities
// without a dataset are rejected: every data call is scoped to one.
func SessionMiddleware(sessions SessionParser, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := SessionToken(c, cookieName)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			id, err := sessions.Parse(token)
			if err != nil || strings.TrimSpace(id.Dataset) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			c.Set(ctxIdentity, id)
			return next(c)
		}
	}
}
