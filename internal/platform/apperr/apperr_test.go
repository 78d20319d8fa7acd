package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestKind(t *testing.T) {
	sentinel := New(ErrConflict, "bed is occupied")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"conflict", sentinel, ErrConflict},
		{"wrapped conflict", fmt.Errorf("admit: %w", sentinel), ErrConflict},
		{"not found", NotFound("bed"), ErrNotFound},
		{"validation", Invalid("name", "is required"), ErrValidation},
		{"unavailable", Unavailable(errors.New("dial tcp: refused")), ErrUnavailable},
		{"plain", errors.New("boom"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError_Aggregates(t *testing.T) {
	v := &ValidationError{}
	v.Required("patient_name", "")
	v.Required("sector", "  ")
	v.Required("bed", "2A")
	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if len(v.Fields) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(v.Fields))
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation kind")
	}
	if err.Error() != "validation failed: patient_name: is required; sector: is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidationError_EmptyIsNil(t *testing.T) {
	v := &ValidationError{}
	if v.Err() != nil {
		t.Error("expected nil error with no violations")
	}
}

func TestUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable(cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if Unavailable(nil) != nil {
		t.Error("expected nil for nil cause")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Invalid("x", "bad"), http.StatusBadRequest},
		{Conflict("bed %s is reserved", "3B"), http.StatusConflict},
		{NotFound("patient"), http.StatusNotFound},
		{New(ErrForbidden, "inactive"), http.StatusForbidden},
		{Unavailable(errors.New("eof")), http.StatusServiceUnavailable},
		{echo.NewHTTPError(http.StatusUnauthorized, "invalid token"), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestToBody_HidesInternalMessage(t *testing.T) {
	status, body := ToBody(errors.New("pq: secret detail"))
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if body.Error.Message != "internal server error" {
		t.Errorf("internal message leaked: %q", body.Error.Message)
	}
}

func TestToBody_ValidationFields(t *testing.T) {
	v := &ValidationError{}
	v.Add("date", "must be YYYY-MM-DD")
	status, body := ToBody(v)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Error.Kind != "validation" {
		t.Errorf("expected kind validation, got %s", body.Error.Kind)
	}
	if len(body.Error.Fields) != 1 || body.Error.Fields[0].Field != "date" {
		t.Errorf("unexpected fields %+v", body.Error.Fields)
	}
}
