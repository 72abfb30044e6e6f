package jwtx

import (
	"errors"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"

	"github.com/labstack/echo/v4"
)

// ContextKey is where the auth middleware leaves the caller.
const ContextKey = "user"

func ActorFromContext(c echo.Context) (model.Actor, error) {
	a, ok := c.Get(ContextKey).(model.Actor)
	if !ok || a.UserID <= 0 {
		return model.Actor{}, errors.New("no authenticated user in context")
	}
	return a, nil
}
