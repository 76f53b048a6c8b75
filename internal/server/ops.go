package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
	"github.com/mohammad-safakhou/enroller/internal/retention"
)

// OpsHandler exposes operational endpoints: orphaned callbacks, the audit
// trail, chain presets and on-demand retention runs. It expects
// authentication to be applied by the caller.
type OpsHandler struct {
	orphans ledger.OrphanStore
	audit   ledger.AuditStore
	presets ledger.PresetStore
	sweeper *retention.Sweeper
}

func NewOpsHandler(orphans ledger.OrphanStore, audit ledger.AuditStore, presets ledger.PresetStore, sweeper *retention.Sweeper) *OpsHandler {
	return &OpsHandler{orphans: orphans, audit: audit, presets: presets, sweeper: sweeper}
}

func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/orphans", h.listOrphans)
	g.GET("/audit", h.listAudit)
	g.GET("/chains", h.listPresets)
	g.POST("/chains", h.addPreset)
	g.DELETE("/chains/:name", h.removePreset)
	g.POST("/retention/sweep", h.sweep)
	g.POST("/retention/health", h.health)
}

func queryLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	return n, nil
}

func (h *OpsHandler) listOrphans(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	out, err := h.orphans.ListOrphans(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []ledger.OrphanEvent{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OpsHandler) listAudit(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}
	out, err := h.audit.ListAudit(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []ledger.AuditEntry{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OpsHandler) listPresets(c echo.Context) error {
	out, err := h.presets.ListPresets(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []ledger.ChainPreset{}
	}
	return c.JSON(http.StatusOK, out)
}

// Add preset
//
//	@Summary	Register a named chain preset
//	@Tags		chains
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreatePresetRequest	true	"Preset"
//	@Success	201		{object}	ledger.ChainPreset
//	@Failure	400		{object}	HTTPError
//	@Router		/api/chains [post]
func (h *OpsHandler) addPreset(c echo.Context) error {
	var req CreatePresetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ChainName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and chain_name required")
	}
	p, err := h.presets.AddPreset(c.Request().Context(), ledger.ChainPreset{Name: req.Name, ChainName: req.ChainName})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *OpsHandler) removePreset(c echo.Context) error {
	err := h.presets.RemovePreset(c.Request().Context(), c.Param("name"))
	if errors.Is(err, ledger.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "preset not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Sweep
//
//	@Summary	Run one retention cycle now
//	@Tags		retention
//	@Produce	json
//	@Success	200	{object}	retention.Report
//	@Router		/api/retention/sweep [post]
func (h *OpsHandler) sweep(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sweeper.RunCycle(c.Request().Context()))
}

func (h *OpsHandler) health(c echo.Context) error {
	rep, err := h.sweeper.HealthCheck(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}
