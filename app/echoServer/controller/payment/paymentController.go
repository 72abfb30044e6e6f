package payment

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	razorpayrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/razorpay"
	striperepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/stripe"
	paymentsvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/payment"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"

	"github.com/labstack/echo/v4"
)

var signatureHeaders = map[model.PaymentProvider]string{
	model.ProviderRazorpay: razorpayrepo.SignatureHeader,
	model.ProviderStripe:   striperepo.SignatureHeader,
}

type Controller struct {
	Svc paymentsvc.Service
	Log *slog.Logger
}

// Webhook
// @Summary      Provider webhook
// @Description  Signature is checked over the raw body before anything is decoded.
// @Tags         payments
// @Param        provider  path  string  true  "razorpay|stripe"
// @Success      200
// @Failure      401
// @Router       /v1/payments/webhook/{provider} [post]
func (h *Controller) Webhook(c echo.Context) error {
	provider := model.PaymentProvider(c.Param("provider"))
	header, ok := signatureHeaders[provider]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown provider"})
	}
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unreadable body"})
	}

	p, err := h.Svc.HandleWebhook(c.Request().Context(), provider, c.Request().Header.Get(header), raw)
	if err != nil {
		// An order we never created will not appear by retrying.
		if apperr.Is(err, apperr.ErrNotFound) {
			h.Log.Warn("webhook for unknown order", "provider", provider, "err", err)
			return c.JSON(http.StatusOK, echo.Map{"message": "ignored"})
		}
		return controller.Fail(c, h.Log, "payment webhook", err)
	}
	if p == nil {
		return c.JSON(http.StatusOK, echo.Map{"message": "ignored"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok", "status": p.Status})
}

// POST /v1/payments/verify
func (h *Controller) Verify(c echo.Context) error {
	var req VerifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}

	p, err := h.Svc.VerifyClient(c.Request().Context(), model.PaymentProvider(req.Provider), model.ClientCallback{
		ProviderOrderID: req.ProviderOrderID,
		PaymentRef:      req.PaymentRef,
		Signature:       req.Signature,
	})
	if err != nil {
		return controller.Fail(c, h.Log, "payment verify", err)
	}
	return c.JSON(http.StatusOK, p)
}
