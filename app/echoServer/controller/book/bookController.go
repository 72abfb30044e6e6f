package book

import (
	"log/slog"
	"net/http"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller"
	bookrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/book"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/inventory"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Catalog bookrepo.Repo
	Ledger  inventory.Ledger
	Log     *slog.Logger
}

// GET /v1/books/:id/availability
func (h *Controller) Availability(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	ctx := c.Request().Context()
	b, err := h.Catalog.FindBook(ctx, id)
	if err != nil {
		return controller.Fail(c, h.Log, "book detail", err)
	}
	pool, err := h.Ledger.Get(ctx, id)
	if err != nil {
		return controller.Fail(c, h.Log, "book availability", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":               b.ID,
		"title":            b.Title,
		"rent_per_day":     b.RentPerDay,
		"total_rentals":    b.TotalRentals,
		"total_copies":     pool.TotalCopies,
		"available_copies": pool.AvailableCopies,
	})
}
