// Package controller holds what the HTTP handlers share.
package controller

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"

	"github.com/labstack/echo/v4"
)

// Status is the HTTP status each error code answers with.
func Status(err error) int {
	switch apperr.Code(err) {
	case apperr.ErrBadInput:
		return http.StatusBadRequest
	case apperr.ErrSignatureMismatch:
		return http.StatusUnauthorized
	case apperr.ErrPaymentIncomplete:
		return http.StatusPaymentRequired
	case apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrConflict, apperr.ErrUnavailable, apperr.ErrAlreadyRented, apperr.ErrInvalidTransition:
		return http.StatusConflict
	case apperr.ErrInvalidToken:
		return http.StatusUnprocessableEntity
	case apperr.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Fail writes err as {"code","message"}. Server-side failures are logged and
// their detail stays out of the response.
func Fail(c echo.Context, log *slog.Logger, op string, err error) error {
	status := Status(err)
	body := echo.Map{"code": apperr.Code(err), "message": err.Error()}
	if status >= http.StatusInternalServerError {
		log.Error(op, "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
		body["message"] = http.StatusText(status)
	}
	if status == http.StatusInternalServerError {
		body["code"] = "INTERNAL"
	}
	return c.JSON(status, body)
}

func ParamID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
