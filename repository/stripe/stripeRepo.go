package striperepo

import (
	"context"
	"math"
	"strings"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"

	jsoniter "github.com/json-iterator/go"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const SignatureHeader = "Stripe-Signature"

type Config struct {
	SecretKey     string
	WebhookSecret string
}

type Repo interface {
	Name() model.PaymentProvider
	Configured() bool
	CreateOrder(ctx context.Context, amount float64, currency, receipt string) (string, error)
	VerifyCallback(ctx context.Context, cb model.ClientCallback) (*model.Confirmation, error)
	ParseWebhook(raw []byte, signature string) (*model.Confirmation, error)
}

type repo struct {
	cfg Config
}

func New(cfg Config) Repo {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &repo{cfg: cfg}
}

func (r *repo) Name() model.PaymentProvider { return model.ProviderStripe }

func (r *repo) Configured() bool { return r.cfg.SecretKey != "" }

// CreateOrder opens a PaymentIntent; its id is the provider order id.
func (r *repo) CreateOrder(ctx context.Context, amount float64, currency, receipt string) (string, error) {
	if !r.Configured() {
		return "", apperr.New(apperr.ErrProviderUnavailable, "stripe credentials missing")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(math.Round(amount * 100))),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	params.Context = ctx
	params.AddMetadata("receipt", receipt)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrProviderUnavailable, err, "stripe create intent")
	}
	return pi.ID, nil
}

// VerifyCallback asks Stripe for the intent instead of trusting the browser.
func (r *repo) VerifyCallback(ctx context.Context, cb model.ClientCallback) (*model.Confirmation, error) {
	if !r.Configured() {
		return nil, apperr.New(apperr.ErrProviderUnavailable, "stripe credentials missing")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(cb.ProviderOrderID, params)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrProviderUnavailable, err, "stripe get intent")
	}
	c := intentConfirmation(pi)
	c.EventType = "client.verify"
	return c, nil
}

func (r *repo) ParseWebhook(raw []byte, signature string) (*model.Confirmation, error) {
	if r.cfg.WebhookSecret == "" || signature == "" {
		return nil, apperr.New(apperr.ErrSignatureMismatch, "stripe webhook secret or signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(raw, signature, r.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSignatureMismatch, err, "stripe webhook")
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return &model.Confirmation{EventType: string(event.Type)}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, apperr.Wrap(apperr.ErrBadInput, err, "stripe payment intent")
	}
	c := intentConfirmation(&pi)
	c.EventType = string(event.Type)
	if event.Type == "payment_intent.payment_failed" {
		c.Outcome = model.OutcomeFailed
	}
	return c, nil
}

func intentConfirmation(pi *stripe.PaymentIntent) *model.Confirmation {
	c := &model.Confirmation{ProviderOrderID: pi.ID}
	if pi.LatestCharge != nil {
		c.Ref = pi.LatestCharge.ID
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		c.Outcome = model.OutcomeCompleted
	case stripe.PaymentIntentStatusCanceled:
		c.Outcome = model.OutcomeFailed
		c.FailureReason = "canceled"
	}
	if pi.LastPaymentError != nil {
		c.FailureReason = pi.LastPaymentError.Msg
	}
	return c
}
