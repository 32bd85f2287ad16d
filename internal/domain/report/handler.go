package report

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medsync/medsync/internal/domain/atencion"
	"github.com/medsync/medsync/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole("admin", "employee"))
	g.GET("/atenciones/pdf", h.PDF)
	g.GET("/atenciones/excel", h.Excel)
}

// PDF streams the filtered report as a PDF attachment. Filters are the same
// query params the list endpoint takes.
func (h *Handler) PDF(c echo.Context) error {
	r, err := h.generate(c)
	if err != nil {
		return err
	}

	data, err := RenderPDF(r)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, attachment(r.GeneratedAt, "pdf"))
	return c.Blob(http.StatusOK, "application/pdf", data)
}

// Excel streams the filtered report as an xlsx attachment.
func (h *Handler) Excel(c echo.Context) error {
	r, err := h.generate(c)
	if err != nil {
		return err
	}

	data, err := RenderExcel(r)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, attachment(r.GeneratedAt, "xlsx"))
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handler) generate(c echo.Context) (*Report, error) {
	f, err := atencion.ParseFilter(c)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Generate(c.Request().Context(), f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return r, nil
}

func attachment(at time.Time, ext string) string {
	return fmt.Sprintf(`attachment; filename="atenciones_%s.%s"`, at.Format("20060102_150405"), ext)
}
