package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/bedboard/internal/platform/apperr"
)

func newServer(f *fixture) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func TestHandler_LongStayAndInvestigation(t *testing.T) {
	f := newFixture(t)
	e := newServer(f)
	p := f.admit(t, "2A", "Maria Silva", 20)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/long-stay?order=desc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var alerts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.EqualValues(t, 20, alerts[0]["days_in_hospital"])
	key := alerts[0]["key"].(string)
	assert.Equal(t, LongStayKey(p.ID).String(), key)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/alerts/investigations/"+key,
		strings.NewReader(`{"status":"investigated","notes":"ok"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/alerts/investigations/"+key,
		strings.NewReader(`{"status":"maybe"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ReadmissionsEmptyList(t *testing.T) {
	f := newFixture(t)
	e := newServer(f)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/readmissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/readmissions?since=15/06", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
