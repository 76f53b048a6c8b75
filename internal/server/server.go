package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth    *AuthHandler
	Runs    *RunsHandler
	Hooks   *HooksHandler
	Ops     *OpsHandler
	Metrics http.Handler
	// Ping reports backing-store health for /healthz; nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewEcho builds the router with the unified JSON error handler.
func NewEcho(h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error {
		if h.Ping != nil {
			if err := h.Ping(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.String(http.StatusOK, "ok")
	})
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}

	if h.Hooks != nil {
		h.Hooks.Register(e.Group("/hooks"))
	}

	api := e.Group("/api")
	if h.Auth != nil {
		h.Auth.Register(api.Group("/auth"))
	}
	admin := api.Group("")
	if h.Auth != nil {
		admin.Use(h.Auth.RequireSession)
	}
	admin.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"user_id": c.Get("user_id"), "session_id": c.Get("session_id")})
	})
	if h.Runs != nil {
		h.Runs.Register(admin.Group("/runs"))
	}
	if h.Ops != nil {
		h.Ops.Register(admin)
	}
	return e
}
