package rental_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/repository/memory"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/inventory"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/notify"
	paymentsvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/payment"
	rental "github.com/Kevall84/Smart-Library-Management-System-sub000/service/rental"
	tokensvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	member    = int64(10)
	other     = int64(11)
	librarian = int64(99)
)

var day0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type providerMock struct {
	unconfigured bool
	orders       atomic.Int64
}

func (m *providerMock) Name() model.PaymentProvider { return model.ProviderRazorpay }
func (m *providerMock) Configured() bool            { return !m.unconfigured }
func (m *providerMock) CreateOrder(ctx context.Context, amount float64, currency, receipt string) (string, error) {
	return fmt.Sprintf("order_%d", m.orders.Add(1)), nil
}
func (m *providerMock) VerifyCallback(ctx context.Context, cb model.ClientCallback) (*model.Confirmation, error) {
	return &model.Confirmation{ProviderOrderID: cb.ProviderOrderID, Outcome: model.OutcomeCompleted, Ref: cb.PaymentRef}, nil
}

// ParseWebhook treats the body as the order id; "bad" signatures are rejected.
func (m *providerMock) ParseWebhook(raw []byte, signature string) (*model.Confirmation, error) {
	if signature == "bad" {
		return nil, apperr.New(apperr.ErrSignatureMismatch, "bad signature")
	}
	return &model.Confirmation{ProviderOrderID: string(raw), Outcome: model.OutcomeCompleted, Ref: "pay_wh", EventType: "payment.captured"}, nil
}

type notifierMock struct {
	mu   sync.Mutex
	sent map[notify.Kind]int
}

func (m *notifierMock) Notify(ctx context.Context, userID int64, kind notify.Kind, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[notify.Kind]int{}
	}
	m.sent[kind]++
}

func (m *notifierMock) count(k notify.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[k]
}

type harness struct {
	svc   rental.Service
	st    *memory.Store
	pays  paymentsvc.Service
	clock *clock
	notes *notifierMock
	prov  *providerMock
	book  model.Book
}

func newHarness(t *testing.T, copies int64) *harness {
	t.Helper()
	return newHarnessWith(t, copies, rental.Config{MaxRentalDays: 30, PenaltyRatePerDay: 10})
}

func newHarnessWith(t *testing.T, copies int64, cfg rental.Config) *harness {
	t.Helper()
	h := &harness{
		st:    memory.New(),
		clock: &clock{t: day0},
		notes: &notifierMock{},
		prov:  &providerMock{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.book = h.st.AddBook(model.Book{Title: "The Name of the Rose", RentPerDay: 5}, copies)
	h.pays = paymentsvc.New(h.st.Payments(), paymentsvc.Config{Active: model.ProviderRazorpay}, log, h.clock.Now, h.prov)
	h.svc = rental.New(rental.Deps{
		Tx:       h.st,
		Rentals:  h.st.Rentals(),
		Catalog:  h.st.Books(),
		Ledger:   inventory.New(h.st.Inventory(), log),
		Payments: h.pays,
		Tokens:   tokensvc.New(h.st.Tokens(), tokensvc.Config{Salt: "pepper"}, log, h.clock.Now),
		Notifier: h.notes,
		Log:      log,
		Now:      h.clock.Now,
	}, cfg)
	return h
}

func (h *harness) available(t *testing.T) int64 {
	t.Helper()
	p, err := h.st.Inventory().Get(context.Background(), h.book.ID)
	require.NoError(t, err)
	return p.AvailableCopies
}

func (h *harness) pay(t *testing.T, c *rental.Created) {
	t.Helper()
	p, err := h.pays.VerifyClient(context.Background(), model.ProviderRazorpay, model.ClientCallback{
		ProviderOrderID: c.Payment.ProviderOrderID, PaymentRef: "pay_cli", Signature: "sig",
	})
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, p.Status)
}

func (h *harness) request(t *testing.T, user int64, days int) *rental.Created {
	t.Helper()
	c, err := h.svc.RequestRental(context.Background(), user, h.book.ID, days)
	require.NoError(t, err)
	return c
}

func TestRequestRental_CreatesPendingRentalPaymentAndToken(t *testing.T) {
	h := newHarness(t, 2)
	c := h.request(t, member, 7)

	require.Equal(t, model.RentalPending, c.Rental.Status)
	require.Equal(t, day0.Add(7*24*time.Hour), c.Rental.DueDate)
	require.Equal(t, model.PaymentPending, c.Payment.Status)
	require.Equal(t, 35.0, c.Payment.Amount)
	require.Equal(t, c.Rental.ID, *c.Payment.RentalID)
	require.Equal(t, c.Payment.ID, *c.Rental.PaymentID)
	require.Equal(t, model.PurposeIssue, c.Token.Purpose)
	require.Equal(t, model.TokenPending, c.Token.Status)
	require.Equal(t, int64(1), h.available(t))
}

func TestRequestRental_Rejections(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	_, err := h.svc.RequestRental(ctx, member, h.book.ID, 0)
	require.Equal(t, apperr.ErrBadInput, apperr.Code(err))
	_, err = h.svc.RequestRental(ctx, member, h.book.ID, 31)
	require.Equal(t, apperr.ErrBadInput, apperr.Code(err))
	_, err = h.svc.RequestRental(ctx, member, 404, 3)
	require.Equal(t, apperr.ErrNotFound, apperr.Code(err))

	h.request(t, member, 3)
	orders := h.prov.orders.Load()

	_, err = h.svc.RequestRental(ctx, member, h.book.ID, 3)
	require.Equal(t, apperr.ErrAlreadyRented, apperr.Code(err))
	_, err = h.svc.RequestRental(ctx, other, h.book.ID, 3)
	require.Equal(t, apperr.ErrUnavailable, apperr.Code(err))

	require.Equal(t, orders, h.prov.orders.Load(), "no provider call after a rejection")
	require.Equal(t, int64(0), h.available(t))
}

func TestRequestRental_ProviderUnavailable(t *testing.T) {
	h := newHarness(t, 1)
	h.prov.unconfigured = true

	_, err := h.svc.RequestRental(context.Background(), member, h.book.ID, 3)
	require.Equal(t, apperr.ErrProviderUnavailable, apperr.Code(err))
	require.Equal(t, int64(1), h.available(t))
}

// Two users race for the last copy; exactly one gets it.
func TestRequestRental_ConcurrentLastCopy(t *testing.T) {
	h := newHarness(t, 1)
	var ok, unavailable atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, user := range []int64{member, other} {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			<-start
			_, err := h.svc.RequestRental(context.Background(), user, h.book.ID, 3)
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.Is(err, apperr.ErrUnavailable):
				unavailable.Add(1)
			default:
				assert.NoError(t, err)
			}
		}(user)
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, int32(1), unavailable.Load())
	require.Equal(t, int64(0), h.available(t))
}

func TestRequestRental_SameUserConcurrentKeepsInventory(t *testing.T) {
	h := newHarness(t, 5)
	var ok atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.RequestRental(context.Background(), member, h.book.ID, 3)
			if err == nil {
				ok.Add(1)
				return
			}
			assert.Contains(t, []apperr.ErrCode{apperr.ErrAlreadyRented, apperr.ErrUnavailable}, apperr.Code(err))
		}()
	}
	close(start)
	wg.Wait()

	rentals, err := h.st.Rentals().ListByUser(context.Background(), member, model.RentalPending)
	require.NoError(t, err)
	require.Equal(t, int32(1), ok.Load())
	require.Len(t, rentals, 1)
	require.Equal(t, int64(5-len(rentals)), h.available(t))
}

// Seven-day rental returned on day ten pays three days of fines.
func TestLifecycle_IssueThenLateReturn(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 7)
	h.pay(t, c)
	require.Equal(t, 1, h.notes.count(notify.KindRentalConfirmed))

	res, err := h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.NoError(t, err)
	require.Equal(t, model.PurposeIssue, res.Purpose)
	require.Equal(t, model.RentalIssued, res.Rental.Status)
	require.Equal(t, librarian, *res.Rental.IssuedBy)
	b, err := h.st.Books().FindBook(ctx, h.book.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), b.TotalRentals)
	require.Equal(t, int64(0), h.available(t), "issue does not touch inventory")

	h.clock.Advance(10 * 24 * time.Hour)

	p, err := h.svc.Penalty(ctx, c.Rental.ID, model.Actor{UserID: member, Role: model.RoleMember})
	require.NoError(t, err)
	require.Equal(t, 3, p.OverdueDays)
	require.Equal(t, 30.0, p.Amount)
	rn, err := h.st.Rentals().Get(ctx, c.Rental.ID)
	require.NoError(t, err)
	require.Equal(t, model.RentalOverdue, rn.Status)

	tok, err := h.svc.RequestToken(ctx, c.Rental.ID, model.Actor{UserID: member}, model.PurposeReturn)
	require.NoError(t, err)
	res, err = h.svc.ProcessScan(ctx, tok.TokenValue, librarian)
	require.NoError(t, err)
	require.Equal(t, model.RentalReturned, res.Rental.Status)
	require.Equal(t, 30.0, res.Rental.PenaltyAmount)
	require.Equal(t, 3, res.Penalty.OverdueDays)
	require.Equal(t, int64(1), h.available(t))
	require.Equal(t, 1, h.notes.count(notify.KindBookReturned))

	h.clock.Advance(5 * 24 * time.Hour)
	p, err = h.svc.Penalty(ctx, c.Rental.ID, model.Actor{UserID: librarian, Role: model.RoleLibrarian})
	require.NoError(t, err)
	require.Equal(t, 30.0, p.Amount, "penalty frozen at return")
}

// Webhook and client callback report the same order at once.
func TestReconcile_WebhookRacesClientCallback(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)
	order := c.Payment.ProviderOrderID

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		p, err := h.pays.HandleWebhook(ctx, model.ProviderRazorpay, "ok", []byte(order))
		assert.NoError(t, err)
		assert.Equal(t, model.PaymentCompleted, p.Status)
	}()
	go func() {
		defer wg.Done()
		<-start
		p, err := h.pays.VerifyClient(ctx, model.ProviderRazorpay, model.ClientCallback{ProviderOrderID: order, PaymentRef: "pay_cli"})
		assert.NoError(t, err)
		assert.Equal(t, model.PaymentCompleted, p.Status)
	}()
	close(start)
	wg.Wait()

	p, err := h.pays.Get(ctx, c.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, p.Status)
	require.Equal(t, 1, h.notes.count(notify.KindRentalConfirmed))

	toks, err := h.st.Tokens().ListByRental(ctx, c.Rental.ID)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, c.Token.TokenValue, toks[0].TokenValue)
}

// A used issue token cannot be scanned again.
func TestProcessScan_ReplayedTokenRejected(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)
	h.pay(t, c)

	_, err := h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.NoError(t, err)
	_, err = h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))

	rn, err := h.st.Rentals().Get(ctx, c.Rental.ID)
	require.NoError(t, err)
	require.Equal(t, model.RentalIssued, rn.Status)
	b, err := h.st.Books().FindBook(ctx, h.book.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), b.TotalRentals)
}

// A rental that was never issued cannot be returned.
func TestReturnBook_PendingRejected(t *testing.T) {
	h := newHarness(t, 1)
	c := h.request(t, member, 3)

	_, err := h.svc.ReturnBook(context.Background(), c.Rental.ID, librarian)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
	require.Equal(t, int64(0), h.available(t))
}

func TestProcessScan_BeforePaymentKeepsToken(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	_, err := h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.Equal(t, apperr.ErrPaymentIncomplete, apperr.Code(err))

	h.pay(t, c)
	res, err := h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.NoError(t, err)
	require.Equal(t, model.RentalIssued, res.Rental.Status)
}

func TestProcessScan_ConcurrentScansIssueOnce(t *testing.T) {
	h := newHarness(t, 1)
	c := h.request(t, member, 3)
	h.pay(t, c)

	var ok atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := h.svc.ProcessScan(context.Background(), c.Token.TokenValue, librarian); err == nil {
				ok.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, 1, h.notes.count(notify.KindBookIssued))
}

func TestIssueBook_Direct(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	rn, err := h.svc.IssueBook(ctx, c.Rental.ID, librarian)
	require.NoError(t, err)
	require.Equal(t, model.RentalIssued, rn.Status)

	_, err = h.svc.IssueBook(ctx, c.Rental.ID, librarian)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))

	out, err := h.svc.ReturnBook(ctx, c.Rental.ID, librarian)
	require.NoError(t, err)
	require.Equal(t, 0.0, out.Penalty.Amount)
	require.Equal(t, int64(1), h.available(t))
}

func TestConfirmPaymentSideEffects(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	err := h.svc.ConfirmPaymentSideEffects(ctx, c.Rental.ID)
	require.Equal(t, apperr.ErrPaymentIncomplete, apperr.Code(err))

	// The issue token lapses before the user pays; confirmation re-mints it.
	h.clock.Advance(25 * time.Hour)
	h.pay(t, c)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.svc.ConfirmPaymentSideEffects(ctx, c.Rental.ID))
	}
	require.Equal(t, 1, h.notes.count(notify.KindRentalConfirmed))

	tok, err := h.svc.RequestToken(ctx, c.Rental.ID, model.Actor{UserID: member}, model.PurposeIssue)
	require.NoError(t, err)
	require.NotEqual(t, c.Token.TokenValue, tok.TokenValue)
	require.True(t, tok.ExpiresAt.After(h.clock.Now()))

	_, err = h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.Equal(t, apperr.ErrInvalidToken, apperr.Code(err))
	_, err = h.svc.ProcessScan(ctx, tok.TokenValue, librarian)
	require.NoError(t, err)

	require.NoError(t, h.svc.ConfirmPaymentSideEffects(ctx, c.Rental.ID), "no-op once issued")
}

func TestFailedPayment_LeavesRentalPending(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	p, err := h.pays.Reconcile(ctx, model.Confirmation{
		ProviderOrderID: c.Payment.ProviderOrderID, Outcome: model.OutcomeFailed, FailureReason: "declined",
	})
	require.NoError(t, err)
	require.Equal(t, model.PaymentFailed, p.Status)

	rn, err := h.svc.Get(ctx, c.Rental.ID, model.Actor{UserID: member})
	require.NoError(t, err)
	require.Equal(t, model.RentalPending, rn.Status)
	require.Equal(t, int64(0), h.available(t))
}

func TestRetryPayment(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	owner := model.Actor{UserID: member, Role: model.RoleMember}
	c := h.request(t, member, 3)

	_, err := h.svc.RetryPayment(ctx, c.Rental.ID, owner)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err), "payment still pending")

	_, err = h.pays.Reconcile(ctx, model.Confirmation{
		ProviderOrderID: c.Payment.ProviderOrderID, Outcome: model.OutcomeFailed, FailureReason: "declined",
	})
	require.NoError(t, err)

	_, err = h.svc.RetryPayment(ctx, c.Rental.ID, model.Actor{UserID: other, Role: model.RoleMember})
	require.Equal(t, apperr.ErrForbidden, apperr.Code(err))

	retry, err := h.svc.RetryPayment(ctx, c.Rental.ID, owner)
	require.NoError(t, err)
	require.NotEqual(t, c.Payment.ID, retry.Payment.ID)
	require.NotEqual(t, c.Payment.ProviderOrderID, retry.Payment.ProviderOrderID)
	require.Equal(t, model.PaymentPending, retry.Payment.Status)
	require.Equal(t, 15.0, retry.Payment.Amount)
	require.Equal(t, c.Rental.ID, *retry.Payment.RentalID)
	require.Equal(t, retry.Payment.ID, *retry.Rental.PaymentID)
	require.Equal(t, c.Token.TokenValue, retry.Token.TokenValue, "issue token carries over")
	require.Equal(t, int64(0), h.available(t), "copy stays reserved")

	_, err = h.svc.RetryPayment(ctx, c.Rental.ID, owner)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))

	h.pay(t, retry)
	require.Equal(t, 1, h.notes.count(notify.KindRentalConfirmed))
	res, err := h.svc.ProcessScan(ctx, c.Token.TokenValue, librarian)
	require.NoError(t, err)
	require.Equal(t, model.RentalIssued, res.Rental.Status)

	_, err = h.svc.RetryPayment(ctx, c.Rental.ID, owner)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
}

func TestRetryPayment_LateCaptureOnFailedOrderDoesNotConfirm(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)
	_, err := h.pays.Reconcile(ctx, model.Confirmation{ProviderOrderID: c.Payment.ProviderOrderID, Outcome: model.OutcomeFailed})
	require.NoError(t, err)

	p, err := h.pays.Reconcile(ctx, model.Confirmation{ProviderOrderID: c.Payment.ProviderOrderID, Outcome: model.OutcomeCompleted})
	require.NoError(t, err)
	require.Equal(t, model.PaymentFailed, p.Status)
	require.Equal(t, 0, h.notes.count(notify.KindRentalConfirmed))

	rn, err := h.st.Rentals().Get(ctx, c.Rental.ID)
	require.NoError(t, err)
	require.Equal(t, model.RentalPending, rn.Status)
	require.Nil(t, rn.ConfirmedAt)
}

func TestNew_ZeroPenaltyRateKept(t *testing.T) {
	h := newHarnessWith(t, 1, rental.Config{MaxRentalDays: 30, PenaltyRatePerDay: 0})
	ctx := context.Background()
	c := h.request(t, member, 1)
	_, err := h.svc.IssueBook(ctx, c.Rental.ID, librarian)
	require.NoError(t, err)

	h.clock.Advance(5 * 24 * time.Hour)
	out, err := h.svc.ReturnBook(ctx, c.Rental.ID, librarian)
	require.NoError(t, err)
	require.Equal(t, 4, out.Penalty.OverdueDays)
	require.Equal(t, 0.0, out.Penalty.Amount)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	_, err := h.svc.Cancel(ctx, c.Rental.ID, model.Actor{UserID: other, Role: model.RoleMember})
	require.Equal(t, apperr.ErrForbidden, apperr.Code(err))

	rn, err := h.svc.Cancel(ctx, c.Rental.ID, model.Actor{UserID: member, Role: model.RoleMember})
	require.NoError(t, err)
	require.Equal(t, model.RentalCancelled, rn.Status)
	require.Equal(t, int64(1), h.available(t))
	p, err := h.pays.Get(ctx, c.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentCancelled, p.Status)
	require.Equal(t, 1, h.notes.count(notify.KindRentalCancelled))

	_, err = h.svc.Cancel(ctx, c.Rental.ID, model.Actor{UserID: member})
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
	require.Equal(t, int64(1), h.available(t), "released once")

	// Book is free again and the user may request it anew.
	h.request(t, member, 3)
}

func TestCancel_PaidRentalRefused(t *testing.T) {
	h := newHarness(t, 1)
	c := h.request(t, member, 3)
	h.pay(t, c)

	_, err := h.svc.Cancel(context.Background(), c.Rental.ID, model.Actor{UserID: member})
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
	require.Equal(t, int64(0), h.available(t))
}

func TestRequestToken_Guards(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	_, err := h.svc.RequestToken(ctx, c.Rental.ID, model.Actor{UserID: member}, model.PurposeReturn)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
	_, err = h.svc.RequestToken(ctx, c.Rental.ID, model.Actor{UserID: other}, model.PurposeIssue)
	require.Equal(t, apperr.ErrForbidden, apperr.Code(err))
	_, err = h.svc.RequestToken(ctx, c.Rental.ID, model.Actor{UserID: member}, "lend")
	require.Equal(t, apperr.ErrBadInput, apperr.Code(err))

	tok, err := h.svc.RequestToken(ctx, c.Rental.ID, model.Actor{UserID: member}, model.PurposeIssue)
	require.NoError(t, err)
	require.Equal(t, c.Token.TokenValue, tok.TokenValue)
}

func TestSettlePenalty(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	late := h.request(t, member, 1)
	onTime := h.request(t, other, 1)
	for _, c := range []*rental.Created{late, onTime} {
		_, err := h.svc.IssueBook(ctx, c.Rental.ID, librarian)
		require.NoError(t, err)
	}
	_, err := h.svc.ReturnBook(ctx, onTime.Rental.ID, librarian)
	require.NoError(t, err)
	h.clock.Advance(36 * time.Hour)
	out, err := h.svc.ReturnBook(ctx, late.Rental.ID, librarian)
	require.NoError(t, err)
	require.Equal(t, 1, out.Penalty.OverdueDays)

	rn, err := h.svc.SettlePenalty(ctx, late.Rental.ID)
	require.NoError(t, err)
	require.True(t, rn.PenaltyPaid)

	_, err = h.svc.SettlePenalty(ctx, late.Rental.ID)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
	_, err = h.svc.SettlePenalty(ctx, onTime.Rental.ID)
	require.Equal(t, apperr.ErrInvalidTransition, apperr.Code(err))
}

func TestMyRentals(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	a := h.request(t, member, 3)
	_, err := h.svc.Cancel(ctx, a.Rental.ID, model.Actor{UserID: member})
	require.NoError(t, err)
	h.request(t, member, 5)
	h.request(t, other, 5)

	all, err := h.svc.MyRentals(ctx, member, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	pending, err := h.svc.MyRentals(ctx, member, model.RentalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 5, pending[0].RentalDays)

	_, err = h.svc.MyRentals(ctx, member, "lost")
	require.Equal(t, apperr.ErrBadInput, apperr.Code(err))
}
