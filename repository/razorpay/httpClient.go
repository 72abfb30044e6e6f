package razorpayrepo

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/hmacsig"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/httpx"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type httpRepo struct {
	cfg    Config
	client *http.Client
}

func NewHTTP(cfg Config) Repo {
	return NewHTTPWithClient(cfg, httpx.Client())
}

func NewHTTPWithClient(cfg Config, client *http.Client) Repo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &httpRepo{cfg: cfg, client: client}
}

func (r *httpRepo) Name() model.PaymentProvider { return model.ProviderRazorpay }

func (r *httpRepo) Configured() bool { return r.cfg.KeyID != "" && r.cfg.KeySecret != "" }

// CreateOrder amounts are sent in the currency's minor unit.
func (r *httpRepo) CreateOrder(ctx context.Context, amount float64, currency, receipt string) (string, error) {
	if !r.Configured() {
		return "", apperr.New(apperr.ErrProviderUnavailable, "razorpay credentials missing")
	}
	b, err := json.Marshal(createOrderReq{
		Amount:   int64(math.Round(amount * 100)),
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return "", err
	}
	// The receipt makes a repeated order request safe to retry.
	resp, err := httpx.Do(ctx, r.client, httpx.Attempts, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/orders", bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		httpReq.SetBasicAuth(r.cfg.KeyID, r.cfg.KeySecret)
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ErrProviderUnavailable, err, "razorpay create order")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", apperr.New(apperr.ErrProviderUnavailable, "razorpay create order failed: %s (retryable=%t)", resp.Status, httpx.Retryable(resp.StatusCode))
	}

	var out createOrderResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(apperr.ErrProviderUnavailable, err, "razorpay decode order")
	}
	if out.ID == "" {
		return "", apperr.New(apperr.ErrProviderUnavailable, "razorpay: empty order id")
	}
	return out.ID, nil
}

// VerifyCallback checks HMAC(order_id|payment_id) from checkout.
func (r *httpRepo) VerifyCallback(_ context.Context, cb model.ClientCallback) (*model.Confirmation, error) {
	if r.cfg.KeySecret == "" {
		return nil, apperr.New(apperr.ErrProviderUnavailable, "razorpay credentials missing")
	}
	if cb.PaymentRef == "" {
		return nil, apperr.New(apperr.ErrBadInput, "missing razorpay payment id")
	}
	payload := []byte(cb.ProviderOrderID + "|" + cb.PaymentRef)
	if !hmacsig.Verify(payload, cb.Signature, r.cfg.KeySecret) {
		return nil, apperr.New(apperr.ErrSignatureMismatch, "razorpay checkout signature")
	}
	return &model.Confirmation{
		ProviderOrderID: cb.ProviderOrderID,
		Outcome:         model.OutcomeCompleted,
		Ref:             cb.PaymentRef,
		EventType:       "client.verify",
	}, nil
}

func (r *httpRepo) ParseWebhook(raw []byte, signature string) (*model.Confirmation, error) {
	if !hmacsig.Verify(raw, signature, r.cfg.WebhookSecret) {
		return nil, apperr.New(apperr.ErrSignatureMismatch, "razorpay webhook signature")
	}
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.Wrap(apperr.ErrBadInput, err, "bad webhook json")
	}

	pay := body.Payload.Payment.Entity
	c := &model.Confirmation{
		ProviderOrderID: pay.OrderID,
		Ref:             pay.ID,
		EventType:       body.Event,
	}
	switch body.Event {
	case "payment.captured":
		c.Outcome = model.OutcomeCompleted
	case "order.paid":
		c.Outcome = model.OutcomeCompleted
		if c.ProviderOrderID == "" {
			c.ProviderOrderID = body.Payload.Order.Entity.ID
		}
	case "payment.failed":
		c.Outcome = model.OutcomeFailed
		c.FailureReason = pay.ErrorDescription
	default:
		return c, nil
	}
	if c.ProviderOrderID == "" {
		return nil, apperr.New(apperr.ErrBadInput, "razorpay %s without order id", body.Event)
	}
	return c, nil
}
