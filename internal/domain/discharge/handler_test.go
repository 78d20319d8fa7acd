package discharge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RequestAndComplete(t *testing.T) {
	f := newFixture(t)
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))
	bedID, patientID := f.admitted(t, bed.DeptClinicaMedica, "4A")

	rec := serve(e, http.MethodPost, "/api/v1/discharge-controls", `{"patient_id":"`+patientID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ctl Control
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctl))

	f.now = f.now.Add(5 * time.Hour)
	rec = serve(e, http.MethodGet, "/api/v1/discharge-controls", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"requires_justification":true`)

	rec = serve(e, http.MethodPost, "/api/v1/discharge-controls/"+ctl.ID.String()+"/complete", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body apperr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Error.Fields, 1)
	assert.Equal(t, "justification", body.Error.Fields[0].Field)

	rec = serve(e, http.MethodPost, "/api/v1/discharge-controls/"+ctl.ID.String()+"/complete", `{"justification":"aguardou exame"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, f.occupied(t, bedID))

	rec = serve(e, http.MethodPost, "/api/v1/discharge-controls/"+ctl.ID.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(e, http.MethodGet, "/api/v1/discharge-controls?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}
