package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsync/medsync/internal/domain/synclog"
	"github.com/medsync/medsync/internal/platform/auth"
)

type Handler struct {
	orch     *Orchestrator
	importer *Importer
	logs     synclog.Repository
}

func NewHandler(orch *Orchestrator, importer *Importer, logs synclog.Repository) *Handler {
	return &Handler{orch: orch, importer: importer, logs: logs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sync", auth.RequireRole("admin", "employee"))
	g.POST("/all", h.RunAll)
	g.GET("/status", h.Status)
	g.GET("/history", h.History)
	g.GET("/history/:id", h.HistoryDetail)
	g.GET("/last", h.LastRun)
	g.GET("/summary", h.Summary)
	g.POST("/:sourceName", h.RunSource)

	v := api.Group("/voucher", auth.RequireRole("admin", "employee"))
	v.POST("/import", h.ImportVouchers)
	v.POST("/import-batch", h.ImportBatch)
}

type windowRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// parseWindow reads an optional {startDate, endDate} body. An empty body
// means the default trailing window.
func parseWindow(c echo.Context) (Window, error) {
	var req windowRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, echo.ErrUnsupportedMediaType) {
		return Window{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StartDate == "" && req.EndDate == "" {
		return DefaultWindow(time.Now()), nil
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return Window{}, echo.NewHTTPError(http.StatusBadRequest, "invalid startDate: "+req.StartDate)
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return Window{}, echo.NewHTTPError(http.StatusBadRequest, "invalid endDate: "+req.EndDate)
	}
	if end.Before(start) {
		return Window{}, echo.NewHTTPError(http.StatusBadRequest, "endDate is before startDate")
	}
	return Window{Start: start, End: end.Add(24*time.Hour - time.Nanosecond)}, nil
}

func userIDPtr(c echo.Context) *string {
	if id := auth.UserIDFromContext(c.Request().Context()); id != "" {
		return &id
	}
	return nil
}

func (h *Handler) RunAll(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}

	summary, err := h.orch.RunAll(c.Request().Context(), w, synclog.TypeManual, userIDPtr(c))
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			return echo.NewHTTPError(http.StatusConflict, "a sync run is already in progress")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) RunSource(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return err
	}

	result, err := h.orch.RunSource(c.Request().Context(), c.Param("sourceName"), w, synclog.TypeManual, userIDPtr(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrSyncRunning):
			return echo.NewHTTPError(http.StatusConflict, "a sync run is already in progress")
		case errors.Is(err, ErrUnknownSource), errors.Is(err, ErrSourceDisabled):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.orch.CheckStatus(c.Request().Context()))
}

func (h *Handler) History(c echo.Context) error {
	f := synclog.Filter{
		APIName: c.QueryParam("apiName"),
		Status:  c.QueryParam("status"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: "+v)
		}
		f.Limit = n
	}

	logs, err := h.logs.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) HistoryDetail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := h.logs.GetByID(c.Request().Context(), id)
	if err != nil || l == nil {
		return echo.NewHTTPError(http.StatusNotFound, "sync log not found")
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) LastRun(c echo.Context) error {
	l, err := h.logs.LastRun(c.Request().Context(), c.QueryParam("apiName"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if l == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"lastRun": nil})
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) Summary(c echo.Context) error {
	days := 30
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid days: "+v)
		}
		days = n
	}

	summaries, err := h.logs.Summary(c.Request().Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summaries)
}

type importRequest struct {
	VoucherIDs []string `json:"voucherIds"`
}

func (h *Handler) ImportVouchers(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.VoucherIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "voucherIds is required")
	}

	result, err := h.importer.ImportVouchers(c.Request().Context(), req.VoucherIDs, userIDPtr(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

type importBatchRequest struct {
	Vouchers []json.RawMessage `json:"vouchers"`
}

func (h *Handler) ImportBatch(c echo.Context) error {
	var req importBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Vouchers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "vouchers is required")
	}

	result, err := h.importer.ImportExtracted(c.Request().Context(), req.Vouchers, userIDPtr(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
