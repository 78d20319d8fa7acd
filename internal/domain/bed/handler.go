package bed

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/beds", h.ListBeds)
	api.GET("/beds/:id", h.GetBed)
	api.POST("/beds/:id/admit", h.Admit)
	api.POST("/beds/:id/discharge", h.Discharge)
	api.POST("/beds/:id/transfer", h.Transfer)
	api.POST("/beds/:id/reservation", h.Reserve)
	api.DELETE("/beds/:id/reservation", h.CancelReservation)

	api.GET("/patients/:id", h.GetPatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.GET("/patients/:id/transfers", h.ListTransfers)
	api.GET("/discharges", h.ListDischarges)

	admin := api.Group("", auth.RequireAdmin())
	admin.POST("/beds", h.CreateBed)
	admin.DELETE("/beds/:id", h.DeleteBed)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (h *Handler) ListBeds(c echo.Context) error {
	beds, err := h.svc.GetBoard(c.Request().Context(), Department(c.QueryParam("department")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CreateBed(c echo.Context) error {
	var req CreateBedRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := h.svc.CreateBed(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Admit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req AdmitRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Admit(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req DischargeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.Discharge(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := h.svc.Transfer(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Reserve(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req ReserveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Reserve(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) CancelReservation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.CancelReservation(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var u PatientUpdate
	if err := bind(c, &u); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListTransfers(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListTransfers(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Transfer{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDischarges(c echo.Context) error {
	f := DischargeFilter{
		Department: Department(c.QueryParam("department")),
		Type:       DischargeType(c.QueryParam("type")),
	}
	v := &apperr.ValidationError{}
	loc := h.svc.Location()
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			v.Add("from", "must be YYYY-MM-DD")
		}
		f.From = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			v.Add("to", "must be YYYY-MM-DD")
		}
		// inclusive of the whole day
		f.To = t.AddDate(0, 0, 1)
	}
	if err := v.Err(); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDischarges(c.Request().Context(), f, pg)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*DischargeRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
