package rental

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	bookrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/book"
	rentalrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/rental"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/inventory"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/notify"
	paymentsvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/payment"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/penalty"
	tokensvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"
)

const (
	DefaultMaxRentalDays     = 30
	DefaultPenaltyRatePerDay = 10
)

// System acts for background jobs; it passes every ownership check.
var System = model.Actor{Role: model.RoleAdmin}

// dto

type Created struct {
	Rental  *model.Rental  `json:"rental"`
	Payment *model.Payment `json:"payment"`
	Token   *model.QRToken `json:"token"`
}

type Returned struct {
	Rental  *model.Rental  `json:"rental"`
	Penalty penalty.Result `json:"penalty"`
}

type ScanResult struct {
	Purpose model.TokenPurpose `json:"purpose"`
	Rental  *model.Rental      `json:"rental"`
	Penalty *penalty.Result    `json:"penalty,omitempty"`
}

type Service interface {
	// RequestRental reserves a copy and opens the payment; the rental stays
	// pending until the issue token is scanned.
	RequestRental(ctx context.Context, userID, bookID int64, days int) (*Created, error)

	// RetryPayment opens a fresh payment for a pending rental whose last
	// payment failed. The reserved copy and the issue token carry over.
	RetryPayment(ctx context.Context, rentalID int64, actor model.Actor) (*Created, error)

	// ConfirmPaymentSideEffects is safe to call any number of times.
	ConfirmPaymentSideEffects(ctx context.Context, rentalID int64) error

	IssueBook(ctx context.Context, rentalID, librarianID int64) (*model.Rental, error)
	ReturnBook(ctx context.Context, rentalID, receivedBy int64) (*Returned, error)
	ProcessScan(ctx context.Context, value string, scannerID int64) (*ScanResult, error)

	RequestToken(ctx context.Context, rentalID int64, actor model.Actor, purpose model.TokenPurpose) (*model.QRToken, error)
	Cancel(ctx context.Context, rentalID int64, actor model.Actor) (*model.Rental, error)

	Penalty(ctx context.Context, rentalID int64, actor model.Actor) (*penalty.Result, error)
	SettlePenalty(ctx context.Context, rentalID int64) (*model.Rental, error)

	Get(ctx context.Context, rentalID int64, actor model.Actor) (*model.Rental, error)
	MyRentals(ctx context.Context, userID int64, status model.RentalStatus) ([]model.Rental, error)
}

type Config struct {
	MaxRentalDays     int
	PenaltyRatePerDay float64
}

type Deps struct {
	Tx       database.Transactor
	Rentals  rentalrepo.Repo
	Catalog  bookrepo.Repo
	Ledger   inventory.Ledger
	Payments paymentsvc.Service
	Tokens   tokensvc.Service
	Notifier notify.Notifier
	Log      *slog.Logger
	Now      func() time.Time
}

// ----- Service implementation -----

type service struct {
	Deps
	cfg Config
}

// New also registers the service as the payment completion listener.
func New(d Deps, cfg Config) Service {
	if cfg.MaxRentalDays <= 0 {
		cfg.MaxRentalDays = DefaultMaxRentalDays
	}
	// Zero is a valid rate: no fines.
	if cfg.PenaltyRatePerDay < 0 {
		cfg.PenaltyRatePerDay = DefaultPenaltyRatePerDay
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &service{Deps: d, cfg: cfg}
	d.Payments.SetListener(s)
	return s
}

func (s *service) now() time.Time { return s.Now().UTC() }

// fail logs err at the severity its kind calls for and hands it back.
func (s *service) fail(ctx context.Context, op string, rentalID int64, err error) error {
	args := []any{"op", op, "rental_id", rentalID, "err", err}
	switch apperr.Code(err) {
	case apperr.ErrInvalidToken:
		s.Log.InfoContext(ctx, "rental op rejected", args...)
	case apperr.ErrInvalidTransition:
		s.Log.WarnContext(ctx, "rental op rejected", args...)
	case apperr.ErrInvariantBroken, "":
		s.Log.ErrorContext(ctx, "rental op failed", args...)
	}
	return err
}

func (s *service) notify(ctx context.Context, rn *model.Rental, kind notify.Kind, extra map[string]any) {
	payload := map[string]any{
		"rental_id": rn.ID,
		"book_id":   rn.BookID,
		"due_date":  rn.DueDate,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.Notifier.Notify(ctx, rn.UserID, kind, payload)
}

// load returns the rental if actor owns it or works the desk.
func (s *service) load(ctx context.Context, rentalID int64, actor model.Actor) (*model.Rental, error) {
	rn, err := s.Rentals.Get(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rn.UserID != actor.UserID && !actor.Role.CanScan() {
		return nil, apperr.New(apperr.ErrForbidden, "rental %d belongs to another user", rentalID)
	}
	return rn, nil
}

func (s *service) payment(ctx context.Context, rn *model.Rental) (*model.Payment, error) {
	if rn.PaymentID == nil {
		return nil, apperr.New(apperr.ErrInvariantBroken, "rental %d has no payment", rn.ID)
	}
	return s.Payments.Get(ctx, *rn.PaymentID)
}

func (s *service) RequestRental(ctx context.Context, userID, bookID int64, days int) (*Created, error) {
	if days < 1 || days > s.cfg.MaxRentalDays {
		return nil, apperr.New(apperr.ErrBadInput, "days must be between 1 and %d", s.cfg.MaxRentalDays)
	}
	book, err := s.Catalog.FindBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	// Both rejections surface before any provider call.
	active, err := s.Rentals.HasActive(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperr.New(apperr.ErrAlreadyRented, "user %d already holds book %d", userID, bookID)
	}
	pool, err := s.Ledger.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if pool.AvailableCopies <= 0 {
		return nil, apperr.New(apperr.ErrUnavailable, "no copies left for book %d", bookID)
	}

	pay, err := s.Payments.Initiate(ctx, userID, book.RentPerDay*float64(days), map[string]string{
		"book_id": strconv.FormatInt(bookID, 10),
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	rn := &model.Rental{
		UserID:     userID,
		BookID:     bookID,
		PaymentID:  &pay.ID,
		RentalDays: days,
		StartDate:  now,
		DueDate:    now.Add(time.Duration(days) * 24 * time.Hour),
		Status:     model.RentalPending,
		CreatedAt:  now,
	}
	var tok *model.QRToken
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.Ledger.Reserve(ctx, bookID); err != nil {
			return err
		}
		if err := s.Rentals.Insert(ctx, rn); err != nil {
			return err
		}
		if err := s.Payments.AttachRental(ctx, pay.ID, rn.ID); err != nil {
			return err
		}
		var err error
		tok, err = s.Tokens.Issue(ctx, rn.ID, userID, model.PurposeIssue)
		return err
	})
	if err != nil {
		// Lost the last copy (or the per-user slot) to a concurrent request;
		// the provider order is never going to be paid against a rental.
		if cerr := s.Payments.Cancel(context.WithoutCancel(ctx), pay.ID); cerr != nil {
			s.Log.WarnContext(ctx, "cancel orphan payment", "payment_id", pay.ID, "err", cerr)
		}
		return nil, s.fail(ctx, "request rental", 0, err)
	}

	pay.RentalID = &rn.ID
	s.Log.InfoContext(ctx, "rental requested",
		"rental_id", rn.ID, "user_id", userID, "book_id", bookID, "payment_id", pay.ID, "days", days)
	return &Created{Rental: rn, Payment: pay, Token: tok}, nil
}

func (s *service) RetryPayment(ctx context.Context, rentalID int64, actor model.Actor) (*Created, error) {
	rn, err := s.load(ctx, rentalID, actor)
	if err != nil {
		return nil, err
	}
	if rn.Status != model.RentalPending {
		return nil, s.fail(ctx, "retry payment", rentalID,
			apperr.New(apperr.ErrInvalidTransition, "rental %d is %s, not awaiting payment", rentalID, rn.Status))
	}
	old, err := s.payment(ctx, rn)
	if err != nil {
		return nil, s.fail(ctx, "retry payment", rentalID, err)
	}
	if old.Status != model.PaymentFailed {
		return nil, s.fail(ctx, "retry payment", rentalID,
			apperr.New(apperr.ErrInvalidTransition, "payment %d is %s; only a failed payment can be retried", old.ID, old.Status))
	}

	pay, err := s.Payments.Initiate(ctx, rn.UserID, old.Amount, map[string]string{
		"book_id": strconv.FormatInt(rn.BookID, 10),
	})
	if err != nil {
		return nil, err
	}

	var tok *model.QRToken
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if rn, err = s.Rentals.RebindPayment(ctx, rentalID, old.ID, pay.ID); err != nil {
			return err
		}
		if err := s.Payments.AttachRental(ctx, pay.ID, rentalID); err != nil {
			return err
		}
		tok, err = s.Tokens.Issue(ctx, rentalID, rn.UserID, model.PurposeIssue)
		return err
	})
	if err != nil {
		// A concurrent retry won the rebind.
		if cerr := s.Payments.Cancel(context.WithoutCancel(ctx), pay.ID); cerr != nil {
			s.Log.WarnContext(ctx, "cancel orphan payment", "payment_id", pay.ID, "err", cerr)
		}
		return nil, s.fail(ctx, "retry payment", rentalID, err)
	}

	pay.RentalID = &rentalID
	s.Log.InfoContext(ctx, "rental payment retried",
		"rental_id", rentalID, "failed_payment_id", old.ID, "payment_id", pay.ID)
	return &Created{Rental: rn, Payment: pay, Token: tok}, nil
}

func (s *service) ConfirmPaymentSideEffects(ctx context.Context, rentalID int64) error {
	rn, err := s.Rentals.Get(ctx, rentalID)
	if err != nil {
		return err
	}
	switch rn.Status {
	case model.RentalPending:
	case model.RentalCancelled:
		// Paid after the user walked away; needs a refund by hand.
		return s.fail(ctx, "confirm payment", rentalID,
			apperr.New(apperr.ErrInvalidTransition, "rental %d cancelled but payment completed", rentalID))
	default:
		return nil
	}

	pay, err := s.payment(ctx, rn)
	if err != nil {
		return s.fail(ctx, "confirm payment", rentalID, err)
	}
	if pay.Status != model.PaymentCompleted {
		return apperr.New(apperr.ErrPaymentIncomplete, "payment %d is %s", pay.ID, pay.Status)
	}

	tok, err := s.Tokens.Issue(ctx, rn.ID, rn.UserID, model.PurposeIssue)
	if err != nil {
		return s.fail(ctx, "confirm payment", rentalID, err)
	}
	first, err := s.Rentals.MarkConfirmed(ctx, rn.ID, s.now())
	if err != nil {
		return s.fail(ctx, "confirm payment", rentalID, err)
	}
	if !first {
		return nil
	}
	s.Log.InfoContext(ctx, "rental confirmed", "rental_id", rn.ID, "payment_id", pay.ID)
	s.notify(ctx, rn, notify.KindRentalConfirmed, map[string]any{"token_expires_at": tok.ExpiresAt})
	return nil
}

// markIssued and markReturned run inside the caller's transaction and do
// not notify.
func (s *service) markIssued(ctx context.Context, rentalID, librarianID int64) (*model.Rental, error) {
	rn, err := s.Rentals.MarkIssued(ctx, rentalID, librarianID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Catalog.IncrementTotalRentals(ctx, rn.BookID); err != nil {
		return nil, err
	}
	return rn, nil
}

func (s *service) markReturned(ctx context.Context, rentalID, receivedBy int64) (*Returned, error) {
	cur, err := s.Rentals.Get(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if !cur.Status.OnLoan() {
		return nil, apperr.New(apperr.ErrInvalidTransition, "rental %d: %s -> %s", rentalID, cur.Status, model.RentalReturned)
	}
	now := s.now()
	p := penalty.Compute(cur.DueDate, now, s.cfg.PenaltyRatePerDay)
	rn, err := s.Rentals.MarkReturned(ctx, rentalID, receivedBy, now, p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.Ledger.Release(ctx, rn.BookID); err != nil {
		return nil, err
	}
	return &Returned{Rental: rn, Penalty: p}, nil
}

func (s *service) IssueBook(ctx context.Context, rentalID, librarianID int64) (*model.Rental, error) {
	var rn *model.Rental
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		rn, err = s.markIssued(ctx, rentalID, librarianID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "issue book", rentalID, err)
	}
	s.Log.InfoContext(ctx, "book issued", "rental_id", rn.ID, "by", librarianID)
	s.notify(ctx, rn, notify.KindBookIssued, nil)
	return rn, nil
}

func (s *service) ReturnBook(ctx context.Context, rentalID, receivedBy int64) (*Returned, error) {
	var out *Returned
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.markReturned(ctx, rentalID, receivedBy)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "return book", rentalID, err)
	}
	s.Log.InfoContext(ctx, "book returned",
		"rental_id", rentalID, "by", receivedBy, "overdue_days", out.Penalty.OverdueDays, "penalty", out.Penalty.Amount)
	s.notify(ctx, out.Rental, notify.KindBookReturned, map[string]any{"penalty": out.Penalty.Amount})
	return out, nil
}

func (s *service) ProcessScan(ctx context.Context, value string, scannerID int64) (*ScanResult, error) {
	t, err := s.Tokens.Validate(ctx, value)
	if err != nil {
		return nil, s.fail(ctx, "scan", 0, err)
	}
	rn, err := s.Rentals.Get(ctx, t.RentalID)
	if err != nil {
		return nil, err
	}

	// Checked before consuming so a premature scan does not burn the token.
	switch t.Purpose {
	case model.PurposeIssue:
		if rn.Status != model.RentalPending {
			return nil, s.fail(ctx, "scan", rn.ID,
				apperr.New(apperr.ErrInvalidTransition, "rental %d: %s -> %s", rn.ID, rn.Status, model.RentalIssued))
		}
		pay, err := s.payment(ctx, rn)
		if err != nil {
			return nil, s.fail(ctx, "scan", rn.ID, err)
		}
		if pay.Status != model.PaymentCompleted {
			return nil, apperr.New(apperr.ErrPaymentIncomplete, "payment %d is %s", pay.ID, pay.Status)
		}
	case model.PurposeReturn:
		if !rn.Status.OnLoan() {
			return nil, s.fail(ctx, "scan", rn.ID,
				apperr.New(apperr.ErrInvalidTransition, "rental %d: %s -> %s", rn.ID, rn.Status, model.RentalReturned))
		}
	}

	res := &ScanResult{Purpose: t.Purpose}
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Tokens.Consume(ctx, value, scannerID); err != nil {
			return err
		}
		if t.Purpose == model.PurposeIssue {
			var err error
			res.Rental, err = s.markIssued(ctx, t.RentalID, scannerID)
			return err
		}
		ret, err := s.markReturned(ctx, t.RentalID, scannerID)
		if err != nil {
			return err
		}
		res.Rental, res.Penalty = ret.Rental, &ret.Penalty
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "scan", t.RentalID, err)
	}

	s.Log.InfoContext(ctx, "scan processed", "rental_id", t.RentalID, "purpose", t.Purpose, "by", scannerID)
	if t.Purpose == model.PurposeIssue {
		s.notify(ctx, res.Rental, notify.KindBookIssued, nil)
	} else {
		s.notify(ctx, res.Rental, notify.KindBookReturned, map[string]any{"penalty": res.Penalty.Amount})
	}
	return res, nil
}

func (s *service) RequestToken(ctx context.Context, rentalID int64, actor model.Actor, purpose model.TokenPurpose) (*model.QRToken, error) {
	if !purpose.Valid() {
		return nil, apperr.New(apperr.ErrBadInput, "unknown purpose %q", purpose)
	}
	rn, err := s.load(ctx, rentalID, actor)
	if err != nil {
		return nil, err
	}
	ok := rn.Status == model.RentalPending
	if purpose == model.PurposeReturn {
		ok = rn.Status.OnLoan()
	}
	if !ok {
		return nil, apperr.New(apperr.ErrInvalidTransition, "rental %d is %s; no %s token", rentalID, rn.Status, purpose)
	}
	return s.Tokens.Issue(ctx, rn.ID, rn.UserID, purpose)
}

func (s *service) Cancel(ctx context.Context, rentalID int64, actor model.Actor) (*model.Rental, error) {
	rn, err := s.load(ctx, rentalID, actor)
	if err != nil {
		return nil, err
	}
	if rn.Status != model.RentalPending {
		return nil, s.fail(ctx, "cancel", rentalID,
			apperr.New(apperr.ErrInvalidTransition, "rental %d: %s -> %s", rentalID, rn.Status, model.RentalCancelled))
	}
	pay, err := s.payment(ctx, rn)
	if err != nil {
		return nil, s.fail(ctx, "cancel", rentalID, err)
	}
	if pay.Status == model.PaymentCompleted {
		return nil, apperr.New(apperr.ErrInvalidTransition, "rental %d is paid for; collect it or request a refund", rentalID)
	}

	var out *model.Rental
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if out, err = s.Rentals.MarkCancelled(ctx, rentalID, s.now()); err != nil {
			return err
		}
		if err := s.Ledger.Release(ctx, out.BookID); err != nil {
			return err
		}
		return s.Payments.Cancel(ctx, pay.ID)
	})
	if err != nil {
		return nil, s.fail(ctx, "cancel", rentalID, err)
	}
	s.Log.InfoContext(ctx, "rental cancelled", "rental_id", rentalID, "by", actor.UserID)
	s.notify(ctx, out, notify.KindRentalCancelled, nil)
	return out, nil
}

// Penalty persists the issued -> overdue widening when it observes it.
func (s *service) Penalty(ctx context.Context, rentalID int64, actor model.Actor) (*penalty.Result, error) {
	rn, err := s.load(ctx, rentalID, actor)
	if err != nil {
		return nil, err
	}
	switch {
	case rn.Status == model.RentalReturned && rn.ReturnDate != nil:
		res := penalty.Compute(rn.DueDate, *rn.ReturnDate, s.cfg.PenaltyRatePerDay)
		res.Amount = rn.PenaltyAmount
		return &res, nil
	case rn.Status.OnLoan():
		now := s.now()
		res := penalty.Compute(rn.DueDate, now, s.cfg.PenaltyRatePerDay)
		if res.OverdueDays > 0 && rn.Status == model.RentalIssued {
			marked, err := s.Rentals.MarkOverdue(ctx, rn.ID, now)
			if err != nil {
				return nil, err
			}
			if marked {
				s.Log.InfoContext(ctx, "rental overdue", "rental_id", rn.ID, "overdue_days", res.OverdueDays)
			}
		}
		return &res, nil
	}
	return &penalty.Result{}, nil
}

func (s *service) SettlePenalty(ctx context.Context, rentalID int64) (*model.Rental, error) {
	rn, err := s.Rentals.MarkPenaltyPaid(ctx, rentalID)
	if err != nil {
		return nil, s.fail(ctx, "settle penalty", rentalID, err)
	}
	s.Log.InfoContext(ctx, "penalty settled", "rental_id", rentalID, "amount", rn.PenaltyAmount)
	return rn, nil
}

func (s *service) Get(ctx context.Context, rentalID int64, actor model.Actor) (*model.Rental, error) {
	return s.load(ctx, rentalID, actor)
}

func (s *service) MyRentals(ctx context.Context, userID int64, status model.RentalStatus) ([]model.Rental, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.New(apperr.ErrBadInput, "unknown status %q", status)
	}
	return s.Rentals.ListByUser(ctx, userID, status)
}
