// Package reporting assembles read-only snapshots of the board, the alert
// lists and ambulance activity, and renders them as JSON, CSV or XLSX.
package reporting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/bedboard/internal/domain/alert"
	"github.com/ehr/bedboard/internal/domain/ambulance"
	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

const (
	ReportDepartments  = "departments"
	ReportLongStay     = "long-stay"
	ReportReadmissions = "readmissions"
	ReportAmbulance    = "ambulance"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type BoardSource interface {
	GetBoard(ctx context.Context, dept bed.Department) ([]*bed.Bed, error)
}

type AlertSource interface {
	LongStay(ctx context.Context, order alert.Order) ([]*alert.LongStayAlert, error)
	Readmissions(ctx context.Context, since time.Time) ([]*alert.Readmission, error)
}

type AmbulanceSource interface {
	Statistics(ctx context.Context, from, to time.Time) (ambulance.Stats, error)
}

// Query carries the optional report parameters.
type Query struct {
	From  time.Time
	To    time.Time
	Order alert.Order
}

// Reports builds each named report both as its JSON payload and as a Table.
type Reports struct {
	board     BoardSource
	alerts    AlertSource
	ambulance AmbulanceSource
	loc       *time.Location
	now       func() time.Time
}

func NewReports(board BoardSource, alerts AlertSource, amb AmbulanceSource, loc *time.Location) *Reports {
	if loc == nil {
		loc = time.Local
	}
	return &Reports{board: board, alerts: alerts, ambulance: amb, loc: loc, now: time.Now}
}

func (r *Reports) SetClock(now func() time.Time) { r.now = now }

// Build returns the payload for name and its tabular rendering.
func (r *Reports) Build(ctx context.Context, name string, q Query) (any, *Table, error) {
	switch name {
	case ReportDepartments:
		board, err := r.board.GetBoard(ctx, "")
		if err != nil {
			return nil, nil, err
		}
		sum := DepartmentStats(board, r.now())
		return sum, departmentsTable(sum), nil
	case ReportLongStay:
		alerts, err := r.alerts.LongStay(ctx, q.Order)
		if err != nil {
			return nil, nil, err
		}
		return alerts, r.longStayTable(alerts), nil
	case ReportReadmissions:
		list, err := r.alerts.Readmissions(ctx, q.From)
		if err != nil {
			return nil, nil, err
		}
		return list, r.readmissionsTable(list), nil
	case ReportAmbulance:
		st, err := r.ambulance.Statistics(ctx, q.From, q.To)
		if err != nil {
			return nil, nil, err
		}
		return st, ambulanceTable(st), nil
	}
	return nil, nil, apperr.NotFound(fmt.Sprintf("report %q", name))
}

func departmentsTable(sum BoardSummary) *Table {
	t := &Table{
		Title:  "Departments",
		Header: []string{"Department", "Beds", "Occupied", "Reserved", "Available", "Occupancy %", "Isolation", "TFD", "Mean stay (days)"},
	}
	for _, st := range append(sum.Departments, sum.Overall) {
		t.Rows = append(t.Rows, []any{string(st.Department), st.Total, st.Occupied, st.Reserved, st.Available,
			st.OccupancyRate, st.Isolation, st.TFD, st.MeanOccupationDays})
	}
	return t
}

func investigationStatus(inv *alert.Investigation) string {
	if inv == nil {
		return ""
	}
	return string(inv.Status)
}

func (r *Reports) longStayTable(alerts []*alert.LongStayAlert) *Table {
	t := &Table{
		Title:  "Long stay",
		Header: []string{"Patient", "Bed", "Department", "Diagnosis", "Origin city", "Admission", "Days", "Investigation"},
	}
	for _, a := range alerts {
		t.Rows = append(t.Rows, []any{a.PatientName, a.BedName, string(a.Department), a.Diagnosis, a.OriginCity,
			a.AdmissionAt.In(r.loc).Format("2006-01-02 15:04"), a.DaysInHospital, investigationStatus(a.Investigation)})
	}
	return t
}

func (r *Reports) readmissionsTable(list []*alert.Readmission) *Table {
	t := &Table{
		Title:  "Readmissions",
		Header: []string{"Patient", "Origin city", "Diagnosis", "Discharge", "Readmission", "Days between", "Still admitted", "Investigation"},
	}
	for _, rm := range list {
		still := "no"
		if rm.StillAdmitted {
			still = "yes"
		}
		t.Rows = append(t.Rows, []any{rm.PatientName, rm.OriginCity, rm.Diagnosis,
			rm.DischargeAt.In(r.loc).Format("2006-01-02"), rm.ReadmissionAt.In(r.loc).Format("2006-01-02"),
			rm.DaysBetween, still, investigationStatus(rm.Investigation)})
	}
	return t
}

func ambulanceTable(st ambulance.Stats) *Table {
	t := &Table{Title: "Ambulance requests", Header: []string{"Metric", "Value"}}
	add := func(k string, v any) { t.Rows = append(t.Rows, []any{k, v}) }

	add("Total", st.Total)
	for _, s := range []ambulance.Status{ambulance.StatusPending, ambulance.StatusConfirmed, ambulance.StatusCancelled} {
		add("Status "+string(s), st.ByStatus[s])
	}
	for _, v := range []ambulance.VehicleType{ambulance.VehicleAmbulance, ambulance.VehicleCar} {
		add("Vehicle "+string(v), st.ByVehicleType[v])
	}
	sectors := make([]string, 0, len(st.BySector))
	for s := range st.BySector {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	for _, s := range sectors {
		add("Sector "+s, st.BySector[s])
	}
	if st.MeanConfirmationSeconds != nil {
		add("Mean confirmation (minutes)", round1(float64(*st.MeanConfirmationSeconds)/60))
	} else {
		add("Mean confirmation (minutes)", "")
	}
	return t
}

// -- HTTP --

type Handler struct {
	reports *Reports
}

func NewHandler(reports *Reports) *Handler {
	return &Handler{reports: reports}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports/:name", h.Export)
}

// Export serves GET /reports/:name?format=json|csv|xlsx with optional
// from/to (YYYY-MM-DD, inclusive) and order.
func (h *Handler) Export(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV && format != FormatXLSX {
		return apperr.Invalid("format", "must be json, csv or xlsx")
	}

	from, to, err := ambulance.ParsePeriod(c.QueryParam("from"), c.QueryParam("to"), h.reports.loc)
	if err != nil {
		return err
	}
	q := Query{From: from, To: to, Order: alert.Order(c.QueryParam("order"))}

	name := c.Param("name")
	payload, table, err := h.reports.Build(c.Request().Context(), name, q)
	if err != nil {
		return err
	}
	if format == FormatJSON {
		return c.JSON(http.StatusOK, payload)
	}

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == FormatXLSX {
		contentType = mimeXLSX
		err = WriteXLSX(&buf, table)
	} else {
		err = WriteCSV(&buf, table)
	}
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("%s-%s.%s", name, h.reports.now().In(h.reports.loc).Format("20060102"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}
