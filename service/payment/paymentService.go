package paymentsvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	paymentrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/payment"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/hmacsig"

	"github.com/google/uuid"
)

// CompletionListener is told about every completed payment bound to a rental.
// It must be idempotent: both confirmation channels may call it.
type CompletionListener interface {
	ConfirmPaymentSideEffects(ctx context.Context, rentalID int64) error
}

type Service interface {
	Initiate(ctx context.Context, userID int64, amount float64, meta map[string]string) (*model.Payment, error)
	// Reconcile is the one entry point for both the client callback and the
	// webhook. A payment already completed or failed is returned unchanged.
	Reconcile(ctx context.Context, c model.Confirmation) (*model.Payment, error)
	VerifySignature(raw []byte, signature, secret string) bool
	HandleWebhook(ctx context.Context, provider model.PaymentProvider, signature string, raw []byte) (*model.Payment, error)
	VerifyClient(ctx context.Context, provider model.PaymentProvider, cb model.ClientCallback) (*model.Payment, error)

	AttachRental(ctx context.Context, paymentID, rentalID int64) error
	Cancel(ctx context.Context, paymentID int64) error
	Get(ctx context.Context, paymentID int64) (*model.Payment, error)

	SetListener(l CompletionListener)
}

type Config struct {
	Active   model.PaymentProvider
	Currency string
}

type service struct {
	r         paymentrepo.Repo
	providers map[model.PaymentProvider]Provider
	cfg       Config
	listener  CompletionListener
	log       *slog.Logger
	now       func() time.Time
}

// New registers every provider; cfg.Active picks the one new orders use.
func New(r paymentrepo.Repo, cfg Config, log *slog.Logger, now func() time.Time, providers ...Provider) Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if now == nil {
		now = time.Now
	}
	ps := make(map[model.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		ps[p.Name()] = p
	}
	return &service{r: r, providers: ps, cfg: cfg, log: log, now: now}
}

func (s *service) SetListener(l CompletionListener) { s.listener = l }

func (s *service) provider(name model.PaymentProvider) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperr.New(apperr.ErrBadInput, "unknown payment provider %q", name)
	}
	return p, nil
}

func (s *service) Initiate(ctx context.Context, userID int64, amount float64, meta map[string]string) (*model.Payment, error) {
	if amount <= 0 {
		return nil, apperr.New(apperr.ErrBadInput, "invalid amount")
	}
	p, ok := s.providers[s.cfg.Active]
	if !ok || !p.Configured() {
		return nil, apperr.New(apperr.ErrProviderUnavailable, "payment provider %q has no credentials", s.cfg.Active)
	}

	receipt := fmt.Sprintf("rental:%d:%s", userID, uuid.NewString()[:8])
	if id, ok := meta["book_id"]; ok {
		receipt = fmt.Sprintf("rental:%d:%s:%s", userID, id, uuid.NewString()[:8])
	}
	orderID, err := p.CreateOrder(ctx, amount, s.cfg.Currency, receipt)
	if err != nil {
		if apperr.Code(err) == "" {
			err = apperr.Wrap(apperr.ErrProviderUnavailable, err, "create order")
		}
		s.log.Warn("provider create order failed", "provider", p.Name(), "user_id", userID, "err", err)
		return nil, err
	}

	pay := &model.Payment{
		UserID:          userID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Provider:        p.Name(),
		ProviderOrderID: orderID,
		Status:          model.PaymentPending,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.r.Insert(ctx, pay); err != nil {
		return nil, err
	}
	s.log.Info("payment initiated", "payment_id", pay.ID, "provider", pay.Provider, "provider_order_id", orderID)
	return pay, nil
}

func (s *service) Reconcile(ctx context.Context, c model.Confirmation) (*model.Payment, error) {
	if c.ProviderOrderID == "" {
		return nil, apperr.New(apperr.ErrBadInput, "missing provider order id")
	}
	var to model.PaymentStatus
	switch c.Outcome {
	case model.OutcomeCompleted:
		to = model.PaymentCompleted
	case model.OutcomeFailed:
		to = model.PaymentFailed
	default:
		return nil, apperr.New(apperr.ErrBadInput, "unknown outcome %q", c.Outcome)
	}

	var ref, reason *string
	if c.Ref != "" {
		ref = &c.Ref
	}
	if to == model.PaymentFailed && c.FailureReason != "" {
		reason = &c.FailureReason
	}

	p, transitioned, err := s.r.Resolve(ctx, c.ProviderOrderID, to, ref, reason, s.now().UTC())
	if err != nil {
		return nil, err
	}
	switch {
	case transitioned:
		s.log.Info("payment reconciled", "payment_id", p.ID, "status", p.Status, "event", c.EventType)
	case to == model.PaymentCompleted && p.Status != model.PaymentCompleted:
		// Money moved on an order we already closed; it goes back by hand.
		s.log.Error("payment captured after settlement, refund needed",
			"payment_id", p.ID, "status", p.Status, "provider_order_id", p.ProviderOrderID, "ref", c.Ref, "event", c.EventType)
	default:
		s.log.Info("payment already settled", "payment_id", p.ID, "status", p.Status, "reported", to, "event", c.EventType)
	}

	if p.Status == model.PaymentCompleted && p.RentalID != nil && s.listener != nil {
		if err := s.listener.ConfirmPaymentSideEffects(ctx, *p.RentalID); err != nil {
			// The payment stays completed; the sweep retries the side effects.
			s.log.Error("confirm side effects", "payment_id", p.ID, "rental_id", *p.RentalID, "err", err)
		}
	}
	return p, nil
}

func (s *service) VerifySignature(raw []byte, signature, secret string) bool {
	return hmacsig.Verify(raw, signature, secret)
}

func (s *service) HandleWebhook(ctx context.Context, name model.PaymentProvider, signature string, raw []byte) (*model.Payment, error) {
	p, err := s.provider(name)
	if err != nil {
		return nil, err
	}
	c, err := p.ParseWebhook(raw, signature)
	if err != nil {
		if apperr.Is(err, apperr.ErrSignatureMismatch) {
			s.log.Error("webhook signature mismatch", "provider", name, "bytes", len(raw))
		}
		return nil, err
	}
	if c.Outcome == "" {
		s.log.Info("webhook event ignored", "provider", name, "event", c.EventType)
		return nil, nil
	}
	return s.Reconcile(ctx, *c)
}

func (s *service) VerifyClient(ctx context.Context, name model.PaymentProvider, cb model.ClientCallback) (*model.Payment, error) {
	p, err := s.provider(name)
	if err != nil {
		return nil, err
	}
	cur, err := s.r.GetByProviderOrderID(ctx, cb.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if cur.Provider != name {
		return nil, apperr.New(apperr.ErrBadInput, "order %s belongs to %s", cb.ProviderOrderID, cur.Provider)
	}

	c, err := p.VerifyCallback(ctx, cb)
	if err != nil {
		if apperr.Is(err, apperr.ErrSignatureMismatch) {
			s.log.Error("client callback signature mismatch", "provider", name, "provider_order_id", cb.ProviderOrderID)
		}
		return nil, err
	}
	if c.Outcome == "" {
		return cur, nil
	}
	c.ProviderOrderID = cb.ProviderOrderID
	return s.Reconcile(ctx, *c)
}

func (s *service) AttachRental(ctx context.Context, paymentID, rentalID int64) error {
	return s.r.AttachRental(ctx, paymentID, rentalID)
}

func (s *service) Cancel(ctx context.Context, paymentID int64) error {
	ok, err := s.r.Cancel(ctx, paymentID, s.now().UTC())
	if err != nil {
		return err
	}
	if ok {
		s.log.Info("payment cancelled", "payment_id", paymentID)
	}
	return nil
}

func (s *service) Get(ctx context.Context, paymentID int64) (*model.Payment, error) {
	return s.r.Get(ctx, paymentID)
}
