package rental

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/jwtx"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	rs "github.com/Kevall84/Smart-Library-Management-System-sub000/service/rental"
	tokensvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/token"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc    rs.Service
	Tokens tokensvc.Service
	Log    *slog.Logger
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
}

func invalidID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
}

// Create a rental
// @Summary      Request a rental
// @Description  Reserves a copy, opens a provider order and returns the issue QR token.
// @Tags         rentals
// @Accept       json
// @Produce      json
// @Param        body  body      CreateRentalReq  true  "book and days"
// @Success      201   {object}  rs.Created
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Security     BearerAuth
// @Router       /v1/rentals [post]
func (h *Controller) Create(c echo.Context) error {
	var req CreateRentalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}

	out, err := h.Svc.RequestRental(c.Request().Context(), a.UserID, req.BookID, req.Days)
	if err != nil {
		return controller.Fail(c, h.Log, "rental create", err)
	}
	return c.JSON(http.StatusCreated, out)
}

// GET /v1/rentals/:id
func (h *Controller) Get(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	rn, err := h.Svc.Get(c.Request().Context(), id, a)
	if err != nil {
		return controller.Fail(c, h.Log, "rental get", err)
	}
	return c.JSON(http.StatusOK, rn)
}

// My rentals
// @Summary      List my rentals
// @Tags         rentals
// @Produce      json
// @Param        status  query  string  false  "pending|issued|overdue|returned|cancelled"
// @Security     BearerAuth
// @Router       /v1/rentals/my [get]
func (h *Controller) My(c echo.Context) error {
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	rows, err := h.Svc.MyRentals(c.Request().Context(), a.UserID, model.RentalStatus(c.QueryParam("status")))
	if err != nil {
		return controller.Fail(c, h.Log, "rental history", err)
	}
	if rows == nil {
		rows = []model.Rental{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/rentals/:id/qr?purpose=issue|return
func (h *Controller) QR(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	purpose := model.TokenPurpose(c.QueryParam("purpose"))
	if purpose == "" {
		purpose = model.PurposeIssue
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size > 1024 {
		size = 1024
	}

	tok, err := h.Svc.RequestToken(c.Request().Context(), id, a, purpose)
	if err != nil {
		return controller.Fail(c, h.Log, "rental qr", err)
	}
	png, err := h.Tokens.RenderPNG(tok, size)
	if err != nil {
		return controller.Fail(c, h.Log, "rental qr render", err)
	}
	c.Response().Header().Set("X-Token-Expires-At", tok.ExpiresAt.UTC().Format(http.TimeFormat))
	return c.Blob(http.StatusOK, "image/png", png)
}

// POST /v1/rentals/:id/return-token
func (h *Controller) ReturnToken(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	tok, err := h.Svc.RequestToken(c.Request().Context(), id, a, model.PurposeReturn)
	if err != nil {
		return controller.Fail(c, h.Log, "return token", err)
	}
	return c.JSON(http.StatusOK, tok)
}

// POST /v1/rentals/:id/cancel
func (h *Controller) Cancel(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	rn, err := h.Svc.Cancel(c.Request().Context(), id, a)
	if err != nil {
		return controller.Fail(c, h.Log, "rental cancel", err)
	}
	return c.JSON(http.StatusOK, rn)
}

// RetryPayment
// @Summary      Retry a failed payment
// @Description  Opens a new provider order for a pending rental whose payment failed.
// @Tags         rentals
// @Produce      json
// @Param        id   path      int  true  "rental id"
// @Success      201  {object}  map[string]any
// @Failure      409  {object}  map[string]any
// @Security     BearerAuth
// @Router       /v1/rentals/{id}/retry-payment [post]
func (h *Controller) RetryPayment(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	out, err := h.Svc.RetryPayment(c.Request().Context(), id, a)
	if err != nil {
		return controller.Fail(c, h.Log, "retry payment", err)
	}
	return c.JSON(http.StatusCreated, out)
}

// Penalty
// @Summary      Overdue penalty
// @Description  Frozen amount for returned rentals, running amount otherwise.
// @Tags         rentals
// @Produce      json
// @Param        id   path      int  true  "rental id"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /v1/rentals/{id}/penalty [get]
func (h *Controller) Penalty(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	p, err := h.Svc.Penalty(c.Request().Context(), id, a)
	if err != nil {
		return controller.Fail(c, h.Log, "rental penalty", err)
	}
	return c.JSON(http.StatusOK, p)
}

// POST /v1/rentals/:id/penalty/settle (desk)
func (h *Controller) SettlePenalty(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	rn, err := h.Svc.SettlePenalty(c.Request().Context(), id)
	if err != nil {
		return controller.Fail(c, h.Log, "settle penalty", err)
	}
	return c.JSON(http.StatusOK, rn)
}

// Scan a QR token
// @Summary      Scan issue/return token
// @Tags         desk
// @Accept       json
// @Produce      json
// @Param        body  body      ScanReq  true  "token value"
// @Success      200   {object}  rs.ScanResult
// @Failure      422   {object}  map[string]string
// @Security     BearerAuth
// @Router       /v1/rentals/scan [post]
func (h *Controller) Scan(c echo.Context) error {
	var req ScanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	out, err := h.Svc.ProcessScan(c.Request().Context(), req.Token, a.UserID)
	if err != nil {
		return controller.Fail(c, h.Log, "rental scan", err)
	}
	return c.JSON(http.StatusOK, out)
}

// POST /v1/rentals/:id/return (desk, no token)
func (h *Controller) Return(c echo.Context) error {
	id, ok := controller.ParamID(c)
	if !ok {
		return invalidID(c)
	}
	a, err := jwtx.ActorFromContext(c)
	if err != nil {
		return unauthorized(c)
	}
	out, err := h.Svc.ReturnBook(c.Request().Context(), id, a.UserID)
	if err != nil {
		return controller.Fail(c, h.Log, "rental return", err)
	}
	return c.JSON(http.StatusOK, out)
}
