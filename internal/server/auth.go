package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/enroller/session"
)

const authCookie = "auth"

// AuthHandler issues admin tokens. Each token names a server-side session so
// logout and expiry take effect immediately across replicas.
type AuthHandler struct {
	Sessions     session.Store
	Secret       []byte
	PasswordHash string
	TTL          time.Duration
	SecureCookie bool
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)
}

// Login
//
//	@Summary		Admin login
//	@Description	Returns JWT in cookie and body; supports Bearer flows
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthLoginRequest	true	"Login payload"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		401		{object}	HTTPError
//	@Router			/api/auth/login [post]
func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "password required")
	}
	if a.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	subject := strings.TrimSpace(req.Username)
	if subject == "" {
		subject = "admin"
	}
	sess, err := a.Sessions.Create(c.Request().Context(), subject, a.TTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	signed, err := signJWT(subject, sess.ID, a.Secret, sess.ExpiresAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.SetCookie(&http.Cookie{
		Name:     authCookie,
		Value:    signed,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   a.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	return c.JSON(http.StatusOK, TokenResponse{
		Token:     signed,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout
//
//	@Summary	Logout
//	@Tags		auth
//	@Success	204
//	@Router		/api/auth/logout [post]
func (a *AuthHandler) logout(c echo.Context) error {
	if tok := extractToken(c); tok != "" {
		if claims, err := parseJWT(tok, a.Secret); err == nil {
			if err := a.Sessions.Delete(c.Request().Context(), claims.SessionID); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
		}
	}
	c.SetCookie(&http.Cookie{Name: authCookie, Value: "", Path: "/", MaxAge: -1})
	return c.NoContent(http.StatusNoContent)
}

// RequireSession validates the bearer token or auth cookie and the session
// it names.
func (a *AuthHandler) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok := extractToken(c)
		if tok == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}
		claims, err := parseJWT(tok, a.Secret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		sess, err := a.Sessions.Get(c.Request().Context(), claims.SessionID)
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		c.Set("user_id", sess.Subject)
		c.Set("session_id", sess.ID)
		return next(c)
	}
}

type adminClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func signJWT(subject, sessionID string, secret []byte, expires time.Time) (string, error) {
	claims := adminClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseJWT(tok string, secret []byte) (*adminClaims, error) {
	claims := &adminClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.SessionID == "" {
		return nil, fmt.Errorf("token has no session")
	}
	return claims, nil
}

func extractToken(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if ck, err := c.Cookie(authCookie); err == nil {
		return ck.Value
	}
	return ""
}
