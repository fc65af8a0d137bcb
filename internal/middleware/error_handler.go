package middleware

import (
	"errors"
	"net/http"

	"myContentLab/domain"
	"myContentLab/pkg/logger"

	jsonres "myContentLab/pkg/response"

	"github.com/labstack/echo/v4"
)

// ErrorHandler is the echo HTTPErrorHandler: it maps domain sentinels
// and echo errors onto a uniform JSON envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"

	var httpErr *echo.HTTPError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrInvalidState):
		code = http.StatusConflict
		message = err.Error()
	case errors.Is(err, domain.ErrConflictExhausted):
		code = http.StatusConflict
		message = err.Error()
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	default:
		logger.Error("Unhandled request error", "path", c.Path(), "error", err)
	}

	if err := c.JSON(code, jsonres.Error(http.StatusText(code), message, nil)); err != nil {
		logger.Error("Failed to write error response", "error", err)
	}
}
