package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/sweet_shop/internal/service"
)

const (
	MsgValidation        = "Validation Failed"
	MsgConflict          = "Username Already Exists!"
	MsgUserNotFound      = "User not found"
	MsgSweetNotFound     = "Sweet not found"
	MsgInvalidCreds      = "Invalid credentials"
	MsgInsufficientStock = "Not enough stock available"
	MsgInternal          = "Internal Server Error"

	MsgSweetCreated = "Sweet created successfully"
	MsgSweetUpdated = "Sweet updated successfully"
	MsgSweetDeleted = "Sweet deleted successfully"
	MsgPurchased    = "Purchase successful"
	MsgRestocked    = "Restock successful"
)

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, MsgValidation
	case errors.Is(err, service.ErrConflict):
		return http.StatusBadRequest, MsgConflict
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusBadRequest, MsgInsufficientStock
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, MsgUserNotFound
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, MsgSweetNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, MsgInvalidCreds
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

// fail logs err under event and converts it to the HTTP error the client sees.
func fail(l *slog.Logger, event string, err error) error {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		l.Error(event, "status", code, "reason", msg, "error", err)
	} else {
		l.Warn(event, "status", code, "reason", msg, "error", err.Error())
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}

func badRequest(l *slog.Logger, event, reason string, err error) error {
	l.Warn(event, "status", http.StatusBadRequest, "reason", reason, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, MsgValidation).SetInternal(err)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, strconv.ErrRange
	}
	return uint(id), nil
}
