package alert

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/alerts/long-stay", h.LongStay)
	api.GET("/alerts/readmissions", h.Readmissions)
	api.PUT("/alerts/investigations/:key", h.RecordInvestigation)
}

func (h *Handler) LongStay(c echo.Context) error {
	alerts, err := h.svc.LongStay(c.Request().Context(), Order(c.QueryParam("order")))
	if err != nil {
		return err
	}
	if alerts == nil {
		alerts = []*LongStayAlert{}
	}
	return c.JSON(http.StatusOK, alerts)
}

func (h *Handler) Readmissions(c echo.Context) error {
	var since time.Time
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be YYYY-MM-DD")
		}
		since = t
	}
	list, err := h.svc.Readmissions(c.Request().Context(), since)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*Readmission{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) RecordInvestigation(c echo.Context) error {
	var in InvestigationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inv, err := h.svc.RecordInvestigation(c.Request().Context(), c.Param("key"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}
