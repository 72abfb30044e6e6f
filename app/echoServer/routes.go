package echoServer

import (
	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller/book"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller/payment"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller/rental"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"

	"github.com/labstack/echo/v4"
)

type C struct {
	Book      *book.Controller
	Rental    *rental.Controller
	Payment   *payment.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public: providers sign these themselves.
	pub := e.Group("/v1")
	pub.POST("/payments/webhook/:provider", c.Payment.Webhook)

	// Auth
	auth := e.Group("/v1")
	auth.Use(JWTAuth(c.JWTSecret))

	auth.GET("/books/:id/availability", c.Book.Availability)

	auth.POST("/rentals", c.Rental.Create)
	auth.GET("/rentals/my", c.Rental.My)
	auth.GET("/rentals/:id", c.Rental.Get)
	auth.GET("/rentals/:id/qr", c.Rental.QR)
	auth.GET("/rentals/:id/penalty", c.Rental.Penalty)
	auth.POST("/rentals/:id/cancel", c.Rental.Cancel)
	auth.POST("/rentals/:id/return-token", c.Rental.ReturnToken)
	auth.POST("/rentals/:id/retry-payment", c.Rental.RetryPayment)

	auth.POST("/payments/verify", c.Payment.Verify)

	// Issue/return desk
	desk := RequireRole(model.Role.CanScan)
	auth.POST("/rentals/scan", c.Rental.Scan, desk)
	auth.POST("/rentals/:id/return", c.Rental.Return, desk)
	auth.POST("/rentals/:id/penalty/settle", c.Rental.SettlePenalty, desk)
}
