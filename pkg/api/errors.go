package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/semibot/gateway/pkg/gateway"
	"github.com/semibot/gateway/pkg/services"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, gateway.ErrConnectionNotFound) {
		return echo.NewHTTPError(http.StatusConflict, "no execution plane connected for this user")
	}
	if errors.Is(err, gateway.ErrConnectionNotReady) {
		return echo.NewHTTPError(http.StatusConflict, "execution plane is not ready")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
