package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope returned by every endpoint.
type Body struct {
	Error Detail `json:"error"`
}

// Detail describes one failed operation.
type Detail struct {
	Kind    string       `json:"kind"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	switch Kind(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrConflict:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrForbidden:
		return http.StatusForbidden
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func kindName(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusConflict:
		return "conflict"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	return "internal"
}

// ToBody renders err into the error envelope. Internal errors never leak
// their message.
func ToBody(err error) (int, Body) {
	status := Status(err)
	detail := Detail{Kind: kindName(status), Message: err.Error()}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			detail.Message = msg
		} else {
			detail.Message = http.StatusText(he.Code)
		}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		detail.Fields = ve.Fields
	}

	if status == http.StatusInternalServerError {
		detail.Message = "internal server error"
	}
	return status, Body{Error: detail}
}

// ErrorHandler returns an echo.HTTPErrorHandler writing the error envelope.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := ToBody(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}
