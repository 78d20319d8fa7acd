package ambulance

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ambulance-requests", h.List)
	api.POST("/ambulance-requests", h.Create)
	api.GET("/ambulance-requests/stats", h.Statistics)
	api.GET("/ambulance-requests/:id", h.Get)
	api.POST("/ambulance-requests/:id/confirm", h.Confirm)
	api.POST("/ambulance-requests/:id/cancel", h.Cancel)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{Status: Status(c.QueryParam("status"))}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := bed.ParseDate(raw)
		if err != nil {
			return apperr.Invalid("date", "must be YYYY-MM-DD")
		}
		f.Date = d
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Request{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Confirm(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}

// Statistics takes from/to as YYYY-MM-DD; to is inclusive.
func (h *Handler) Statistics(c echo.Context) error {
	from, to, err := ParsePeriod(c.QueryParam("from"), c.QueryParam("to"), h.svc.Location())
	if err != nil {
		return err
	}
	st, err := h.svc.Statistics(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// ParsePeriod reads an optional inclusive date range in loc. The returned
// to is the start of the day after the last day.
func ParsePeriod(rawFrom, rawTo string, loc *time.Location) (time.Time, time.Time, error) {
	v := &apperr.ValidationError{}
	var from, to time.Time
	if rawFrom != "" {
		t, err := time.ParseInLocation("2006-01-02", rawFrom, loc)
		if err != nil {
			v.Add("from", "must be YYYY-MM-DD")
		}
		from = t
	}
	if rawTo != "" {
		t, err := time.ParseInLocation("2006-01-02", rawTo, loc)
		if err != nil {
			v.Add("to", "must be YYYY-MM-DD")
		} else {
			to = t.AddDate(0, 0, 1)
		}
	}
	return from, to, v.Err()
}
