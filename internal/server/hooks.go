package server

import (
	"crypto/subtle"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/enroller/internal/correlator"
)

const defaultMaxBody = 2 << 20

// HooksHandler receives callbacks from the automation platform. Once the
// caller is authenticated it always answers 200 so the sender never retries;
// unmatched or unreadable callbacks are kept as orphans instead.
type HooksHandler struct {
	correlator *correlator.Correlator
	token      string
	maxBody    int64
	logger     *log.Logger
}

func NewHooksHandler(c *correlator.Correlator, token string, maxBody int64) *HooksHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &HooksHandler{
		correlator: c,
		token:      token,
		maxBody:    maxBody,
		logger:     log.New(log.Writer(), "[HOOKS] ", log.LstdFlags),
	}
}

func (h *HooksHandler) Register(g *echo.Group) {
	g.POST("/automation", h.webhook)
	g.POST("/email", h.email)
}

// Webhook
//
//	@Summary	Automation completion webhook
//	@Tags		hooks
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	IngressResponse
//	@Failure	401	{object}	HTTPError
//	@Router		/hooks/automation [post]
func (h *HooksHandler) webhook(c echo.Context) error {
	if err := h.authorize(c); err != nil {
		return err
	}
	body := h.readBody(c)
	ev, err := correlator.DecodeWebhook(body)
	if err != nil {
		h.logger.Printf("webhook body is not JSON (%d bytes): %v", len(body), err)
	}
	return h.correlate(c, ev)
}

// Email
//
//	@Summary	Inbound email relay
//	@Tags		hooks
//	@Accept		plain
//	@Produce	json
//	@Success	200	{object}	IngressResponse
//	@Failure	401	{object}	HTTPError
//	@Router		/hooks/email [post]
func (h *HooksHandler) email(c echo.Context) error {
	if err := h.authorize(c); err != nil {
		return err
	}
	return h.correlate(c, correlator.DecodeEmail(h.readBody(c)))
}

func (h *HooksHandler) correlate(c echo.Context, ev correlator.Event) error {
	if _, err := h.correlator.Correlate(c.Request().Context(), ev); err != nil {
		h.logger.Printf("%s callback %q not persisted: %v", ev.Channel, ev.Identifier, err)
	}
	return c.JSON(http.StatusOK, IngressResponse{Status: "received"})
}

func (h *HooksHandler) authorize(c echo.Context) error {
	if h.token == "" {
		return nil
	}
	got := c.Request().Header.Get("X-Webhook-Token")
	if got == "" {
		got = c.QueryParam("token")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
	}
	return nil
}

func (h *HooksHandler) readBody(c echo.Context) []byte {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBody))
	if err != nil {
		h.logger.Printf("read callback body: %v", err)
	}
	return body
}
