package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes_service/internal/transport"
	"github.com/Skotchmaster/notes_service/pkg/logging"
)

// ErrorHandler renders every error, including echo's own, as the JSON envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg, code := http.StatusInternalServerError, "Internal server error", ""

	var apiErr *transport.APIError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
		status, msg, code = apiErr.Status, apiErr.Message, apiErr.Code
	case errors.As(err, &he):
		status = he.Code
		msg = httpErrorMessage(he)
	default:
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "status", status, "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, transport.Fail(msg, code))
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", werr)
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch he.Code {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusMethodNotAllowed:
		return "Method not allowed"
	case http.StatusRequestEntityTooLarge:
		return "Request body too large"
	case http.StatusTooManyRequests:
		return "Too many requests, try again later"
	}
	if he.Code >= http.StatusInternalServerError {
		return "Internal server error"
	}
	if s, ok := he.Message.(string); ok && s != "" {
		return s
	}
	if he.Message != nil {
		return fmt.Sprint(he.Message)
	}
	return http.StatusText(he.Code)
}
