// Package main library rental API.
//
// @title           Library Rental API
// @version         1.0
// @description     Rental fulfillment: inventory, payments, QR hand-over tokens, returns and penalties.
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer"
	bookctrl "github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller/book"
	paymentctrl "github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller/payment"
	rentalctrl "github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/controller/rental"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/app/echoServer/validation"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/config"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	bookrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/book"
	inventoryrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/inventory"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/repository/memory"
	paymentrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/payment"
	razorpayrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/razorpay"
	rentalrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/rental"
	snsrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/sns"
	striperepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/stripe"
	tokenrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/inventory"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/notify"
	paymentsvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/payment"
	rentalsvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/rental"
	tokensvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/jwt"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// stores groups the repositories of one backend.
type stores struct {
	tx        database.Transactor
	inventory inventoryrepo.Repo
	books     bookrepo.Repo
	rentals   rentalrepo.Repo
	payments  paymentrepo.Repo
	tokens    tokenrepo.Repo
	close     func()
}

func openStores(ctx context.Context, cfg config.App, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		m := memory.New()
		if cfg.Dev() {
			m.AddBook(model.Book{Title: "The Go Programming Language", RentPerDay: 5}, 2)
			m.AddBook(model.Book{Title: "Designing Data-Intensive Applications", RentPerDay: 8}, 1)
		}
		return &stores{
			tx:        m,
			inventory: m.Inventory(),
			books:     m.Books(),
			rentals:   m.Rentals(),
			payments:  m.Payments(),
			tokens:    m.Tokens(),
			close:     func() {},
		}, nil
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		tx:        db,
		inventory: inventoryrepo.New(db),
		books:     bookrepo.New(db),
		rentals:   rentalrepo.New(db),
		payments:  paymentrepo.New(db),
		tokens:    tokenrepo.New(db),
		close:     db.Close,
	}, nil
}

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer st.close()

	// providers
	rp := razorpayrepo.NewHTTP(razorpayrepo.Config{
		KeyID:         cfg.RazorpayKeyID,
		KeySecret:     cfg.RazorpayKeySecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
	})
	sp := striperepo.New(striperepo.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})

	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if cfg.NotifyTopicARN != "" {
		n, err := snsrepo.NewFromEnv(ctx, cfg.NotifyTopicARN, log)
		if err != nil {
			log.Error("sns setup failed", "err", err)
			os.Exit(1)
		}
		notifier = n
	}

	// services
	ledger := inventory.New(st.inventory, log)
	pays := paymentsvc.New(st.payments, paymentsvc.Config{
		Active:   model.PaymentProvider(cfg.PaymentProvider),
		Currency: cfg.Currency,
	}, log, nil, rp, sp)
	toks := tokensvc.New(st.tokens, tokensvc.Config{TTL: cfg.TokenTTL, Salt: cfg.TokenSalt}, log, nil)
	rs := rentalsvc.New(rentalsvc.Deps{
		Tx:       st.tx,
		Rentals:  st.rentals,
		Catalog:  st.books,
		Ledger:   ledger,
		Payments: pays,
		Tokens:   toks,
		Notifier: notifier,
		Log:      log,
	}, rentalsvc.Config{
		MaxRentalDays:     cfg.MaxRentalDays,
		PenaltyRatePerDay: cfg.PenaltyRatePerDay,
	})

	if cfg.SweepInterval > 0 {
		go rentalsvc.NewCleaner(rs, st.rentals, pays, cfg.PendingRentalTTL, log, nil).Run(ctx, cfg.SweepInterval)
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = echoServer.JSONSerializer{}
	e.Validator = validation.New()
	echoServer.RegisterMiddlewares(e, log)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Book:      &bookctrl.Controller{Catalog: st.books, Ledger: ledger, Log: log},
		Rental:    &rentalctrl.Controller{Svc: rs, Tokens: toks, Log: log},
		Payment:   &paymentctrl.Controller{Svc: pays, Log: log},
		JWTSecret: cfg.JWTSecret,
	})

	if cfg.Dev() {
		member, _ := jwt.Issue(cfg.JWTSecret, 1, model.RoleMember, 24*time.Hour)
		desk, _ := jwt.Issue(cfg.JWTSecret, 2, model.RoleLibrarian, 24*time.Hour)
		log.Info("dev tokens", "member", member, "librarian", desk)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		log.Info("starting server", "port", port, "provider", cfg.PaymentProvider)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
