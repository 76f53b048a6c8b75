package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/enroller/internal/automation"
	"github.com/mohammad-safakhou/enroller/internal/decision"
	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

type RunsHandler struct {
	trigger *automation.Service
	ledger  ledger.Ledger
	presets ledger.PresetStore
	logger  *log.Logger
}

func NewRunsHandler(trigger *automation.Service, l ledger.Ledger, presets ledger.PresetStore) *RunsHandler {
	return &RunsHandler{
		trigger: trigger,
		ledger:  l,
		presets: presets,
		logger:  log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.DELETE("", h.clear)
	g.GET("/by-identifier/:identifier", h.byIdentifier)
	g.GET("/:id", h.get)
	g.GET("/:id/decision", h.decision)
}

// Trigger run
//
//	@Summary	Trigger a chain run
//	@Tags		runs
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		TriggerRunRequest	true	"Trigger payload"
//	@Success	201		{object}	TriggerRunResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	502		{object}	TriggerRunResponse
//	@Router		/api/runs [post]
func (h *RunsHandler) create(c echo.Context) error {
	var req TriggerRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	chain := strings.TrimSpace(req.ChainName)
	if chain == "" && strings.TrimSpace(req.Preset) != "" {
		presets, err := h.presets.ListPresets(ctx)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		for _, p := range presets {
			if strings.EqualFold(p.Name, strings.TrimSpace(req.Preset)) {
				chain = p.ChainName
				break
			}
		}
		if chain == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown preset")
		}
	}
	if chain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chain_name required")
	}

	res, err := h.trigger.Trigger(ctx, automation.TriggerRequest{
		ChainName:         chain,
		TriggerEmail:      req.TriggerEmail,
		SourceID:          req.SourceID,
		FolderID:          req.FolderID,
		FirstStepInput:    req.FirstStepInput,
		StartingVariables: req.StartingVariables,
	})
	resp := TriggerRunResponse{Run: res.Run, RunIdentifier: res.Identifier, Strategy: res.Strategy}
	switch {
	case errors.Is(err, automation.ErrTriggerFailed):
		resp.Error = err.Error()
		return c.JSON(http.StatusBadGateway, resp)
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, resp)
}

// List runs
//
//	@Summary	Most recent runs first
//	@Tags		runs
//	@Produce	json
//	@Param		limit	query		int	false	"Max runs (1-500, default 50)"
//	@Success	200		{object}	RunListResponse
//	@Router		/api/runs [get]
func (h *RunsHandler) list(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = n
	}
	runs, err := h.ledger.ListRecentRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []ledger.AutomationRun{}
	}
	return c.JSON(http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

// Clear runs
//
//	@Summary	Delete every run
//	@Tags		runs
//	@Produce	json
//	@Success	200	{object}	DeletedResponse
//	@Router		/api/runs [delete]
func (h *RunsHandler) clear(c echo.Context) error {
	n, err := h.ledger.ClearRuns(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Printf("cleared %d runs (by %v)", n, c.Get("user_id"))
	return c.JSON(http.StatusOK, DeletedResponse{Deleted: n})
}

func (h *RunsHandler) get(c echo.Context) error {
	run, err := h.ledger.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *RunsHandler) byIdentifier(c echo.Context) error {
	run, ok, err := h.ledger.FindRunByIdentifier(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// Decision
//
//	@Summary	Parsed review of the run's correlated content
//	@Tags		runs
//	@Produce	json
//	@Success	200	{object}	DecisionResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/runs/{id}/decision [get]
func (h *RunsHandler) decision(c echo.Context) error {
	run, err := h.ledger.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rec := decision.NoAnalysis()
	if run.CorrelatedResponse != nil {
		rec = decision.Parse(*run.CorrelatedResponse)
	}
	return c.JSON(http.StatusOK, DecisionResponse{
		RunID:    run.ID,
		Passed:   rec.PassedCount(),
		Failed:   rec.FailedCount(),
		Decision: rec,
	})
}
