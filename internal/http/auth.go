package http

import (
	"net/http"
	"time"

	"github.com/jmehdipour/clinic-crm/internal/auth"
	"github.com/jmehdipour/clinic-crm/internal/http/middleware"
	"github.com/jmehdipour/clinic-crm/internal/model"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type loginResp struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      model.Identity `json:"user"`
}

type cookieOpts struct {
	Name   string
	Secure bool
}

func (o cookieOpts) session(token string, exp time.Time, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o cookieOpts) cleared() *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// loginHandler exchanges a username and password for a session. All
// verification failures get the same 401.
func loginHandler(verifier *auth.Verifier, sessions *auth.Sessions, ck cookieOpts, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		id, err := verifier.Verify(c.Request().Context(), req.Username, req.Password)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
		}

		token, exp, err := sessions.Issue(*id)
		if err != nil {
			log.Error("issue session failed", zap.String("login", id.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
		}

		c.SetCookie(ck.session(token, exp, sessions.TTL()))
		return c.JSON(http.StatusOK, loginResp{Token: token, ExpiresAt: exp.UTC(), User: *id})
	}
}

func currentSessionHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		return c.JSON(http.StatusOK, map[string]any{"user": id})
	}
}

// logoutHandler only clears the cookie: tokens are stateless and stay valid
// until they expire.
func logoutHandler(ck cookieOpts) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.SetCookie(ck.cleared())
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}
