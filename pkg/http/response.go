package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope is the single response shape for both successes and failures.
type Envelope struct {
	StatusCode int         `json:"status_code"`
	Status     string      `json:"status"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func JSON(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{StatusCode: status, Status: statusSuccess, Message: message, Data: data})
}

func ErrorJSON(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{StatusCode: status, Status: statusError, Message: message, Data: data})
}

// ErrorHandler renders every error returned by a handler or middleware into
// the error envelope. Unclassified errors are logged in full and, in
// production, replaced by a generic message.
func ErrorHandler(logger pkglog.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, message, data := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("trace_id", RequestID(c)).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("unhandled error")
			if production {
				message = "Internal server error"
				data = nil
			}
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = ErrorJSON(c, status, message, data)
	}
}

func classify(err error) (int, string, interface{}) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message, appErr.Data
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, msg, nil
	}
	return http.StatusInternalServerError, err.Error(), nil
}

func RequestID(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
