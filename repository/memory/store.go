// Package memory keeps every pipeline table in process. It backs the tests
// and local runs without DATABASE_URL. Each call holds the store mutex, so
// each conditional update is atomic. WithTx keeps an undo log and reverts
// the writes made under it when fn fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	bookrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/book"
	inventoryrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/inventory"
	paymentrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/payment"
	rentalrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/rental"
	tokenrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/token"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
)

type bookRow struct {
	book model.Book
	pool model.BookPool
}

type Store struct {
	mu       sync.Mutex
	seq      int64
	books    map[int64]*bookRow
	rentals  map[int64]*model.Rental
	payments map[int64]*model.Payment
	tokens   map[int64]*model.QRToken
}

func New() *Store {
	return &Store{
		books:    map[int64]*bookRow{},
		rentals:  map[int64]*model.Rental{},
		payments: map[int64]*model.Payment{},
		tokens:   map[int64]*model.QRToken{},
	}
}

// AddBook seeds a catalog entry with copies all available.
func (s *Store) AddBook(b model.Book, copies int64) model.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.next()
	}
	s.books[b.ID] = &bookRow{
		book: b,
		pool: model.BookPool{ID: b.ID, TotalCopies: copies, AvailableCopies: copies},
	}
	return b
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

type undoKey struct{}

// undoLog is owned by the goroutine running the transaction; entries run
// under s.mu.
type undoLog struct{ fns []func() }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}
	u := &undoLog{}
	err := fn(context.WithValue(ctx, undoKey{}, u))
	if err != nil {
		s.mu.Lock()
		for i := len(u.fns) - 1; i >= 0; i-- {
			u.fns[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// onRollback records how to revert a write made under ctx. Callers hold s.mu.
func onRollback(ctx context.Context, fn func()) {
	if u, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		u.fns = append(u.fns, fn)
	}
}

func (s *Store) Inventory() inventoryrepo.Repo { return inventoryView{s} }
func (s *Store) Books() bookrepo.Repo          { return bookView{s} }
func (s *Store) Rentals() rentalrepo.Repo      { return rentalView{s} }
func (s *Store) Payments() paymentrepo.Repo    { return paymentView{s} }
func (s *Store) Tokens() tokenrepo.Repo        { return tokenView{s} }

// inventory

type inventoryView struct{ s *Store }

func (v inventoryView) Reserve(ctx context.Context, bookID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[bookID]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "book %d", bookID)
	}
	if b.pool.AvailableCopies <= 0 {
		return apperr.New(apperr.ErrUnavailable, "no copies left for book %d", bookID)
	}
	b.pool.AvailableCopies--
	onRollback(ctx, func() { b.pool.AvailableCopies++ })
	return nil
}

func (v inventoryView) Release(ctx context.Context, bookID int64) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[bookID]
	if !ok {
		return false, apperr.New(apperr.ErrNotFound, "book %d", bookID)
	}
	if b.pool.AvailableCopies >= b.pool.TotalCopies {
		return true, nil
	}
	b.pool.AvailableCopies++
	onRollback(ctx, func() { b.pool.AvailableCopies-- })
	return false, nil
}

func (v inventoryView) Get(_ context.Context, bookID int64) (*model.BookPool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[bookID]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "book %d", bookID)
	}
	p := b.pool
	return &p, nil
}

// catalog

type bookView struct{ s *Store }

func (v bookView) FindBook(_ context.Context, id int64) (*model.Book, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[id]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "book %d", id)
	}
	out := b.book
	return &out, nil
}

func (v bookView) IncrementTotalRentals(ctx context.Context, id int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[id]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "book %d", id)
	}
	b.book.TotalRentals++
	onRollback(ctx, func() { b.book.TotalRentals-- })
	return nil
}

// rentals

type rentalView struct{ s *Store }

func activeStatus(st model.RentalStatus) bool {
	return st == model.RentalPending || st.OnLoan()
}

func (v rentalView) Insert(ctx context.Context, rn *model.Rental) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, cur := range v.s.rentals {
		if cur.UserID == rn.UserID && cur.BookID == rn.BookID && activeStatus(cur.Status) {
			return apperr.New(apperr.ErrAlreadyRented, "user %d already holds book %d", rn.UserID, rn.BookID)
		}
	}
	rn.ID = v.s.next()
	cp := *rn
	v.s.rentals[rn.ID] = &cp
	id := rn.ID
	onRollback(ctx, func() { delete(v.s.rentals, id) })
	return nil
}

func (v rentalView) Get(_ context.Context, id int64) (*model.Rental, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	rn, ok := v.s.rentals[id]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "rental %d", id)
	}
	cp := *rn
	return &cp, nil
}

func (v rentalView) HasActive(_ context.Context, userID, bookID int64) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, cur := range v.s.rentals {
		if cur.UserID == userID && cur.BookID == bookID && activeStatus(cur.Status) {
			return true, nil
		}
	}
	return false, nil
}

// update applies fn to rental id under the lock when allowed reports true.
func (v rentalView) update(ctx context.Context, id int64, to model.RentalStatus, allowed func(*model.Rental) bool, fn func(*model.Rental)) (*model.Rental, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	rn, ok := v.s.rentals[id]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "rental %d", id)
	}
	if !allowed(rn) {
		return nil, apperr.New(apperr.ErrInvalidTransition, "rental %d: %s -> %s", id, rn.Status, to)
	}
	prev := *rn
	fn(rn)
	onRollback(ctx, func() { *rn = prev })
	cp := *rn
	return &cp, nil
}

func (v rentalView) MarkIssued(ctx context.Context, id, by int64, at time.Time) (*model.Rental, error) {
	return v.update(ctx, id, model.RentalIssued,
		func(r *model.Rental) bool { return r.Status == model.RentalPending },
		func(r *model.Rental) {
			r.Status = model.RentalIssued
			r.IssuedAt = &at
			r.IssuedBy = &by
		})
}

func (v rentalView) MarkReturned(ctx context.Context, id, by int64, at time.Time, penalty float64) (*model.Rental, error) {
	return v.update(ctx, id, model.RentalReturned,
		func(r *model.Rental) bool { return r.Status.OnLoan() },
		func(r *model.Rental) {
			r.Status = model.RentalReturned
			r.ReturnDate = &at
			r.ReturnedBy = &by
			r.PenaltyAmount = penalty
		})
}

func (v rentalView) MarkCancelled(ctx context.Context, id int64, at time.Time) (*model.Rental, error) {
	return v.update(ctx, id, model.RentalCancelled,
		func(r *model.Rental) bool { return r.Status == model.RentalPending },
		func(r *model.Rental) {
			r.Status = model.RentalCancelled
			r.CancelledAt = &at
		})
}

func (v rentalView) MarkOverdue(ctx context.Context, id int64, now time.Time) (bool, error) {
	_, err := v.update(ctx, id, model.RentalOverdue,
		func(r *model.Rental) bool { return r.Status == model.RentalIssued && r.DueDate.Before(now) },
		func(r *model.Rental) { r.Status = model.RentalOverdue })
	if apperr.Is(err, apperr.ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}

func (v rentalView) MarkConfirmed(ctx context.Context, id int64, at time.Time) (bool, error) {
	_, err := v.update(ctx, id, model.RentalPending,
		func(r *model.Rental) bool { return r.ConfirmedAt == nil },
		func(r *model.Rental) { r.ConfirmedAt = &at })
	if apperr.Is(err, apperr.ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}

func (v rentalView) MarkPenaltyPaid(ctx context.Context, id int64) (*model.Rental, error) {
	return v.update(ctx, id, model.RentalReturned,
		func(r *model.Rental) bool {
			return r.Status == model.RentalReturned && r.PenaltyAmount > 0 && !r.PenaltyPaid
		},
		func(r *model.Rental) { r.PenaltyPaid = true })
}

func (v rentalView) RebindPayment(ctx context.Context, id, oldPaymentID, newPaymentID int64) (*model.Rental, error) {
	return v.update(ctx, id, model.RentalPending,
		func(r *model.Rental) bool {
			return r.Status == model.RentalPending && r.PaymentID != nil && *r.PaymentID == oldPaymentID
		},
		func(r *model.Rental) { r.PaymentID = &newPaymentID })
}

func (v rentalView) ListByUser(_ context.Context, userID int64, status model.RentalStatus) ([]model.Rental, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Rental
	for _, rn := range v.s.rentals {
		if rn.UserID != userID || (status != "" && rn.Status != status) {
			continue
		}
		out = append(out, *rn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (v rentalView) ListPending(_ context.Context, limit int) ([]model.Rental, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Rental
	for _, rn := range v.s.rentals {
		if rn.Status == model.RentalPending {
			out = append(out, *rn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// payments

type paymentView struct{ s *Store }

func (v paymentView) Insert(ctx context.Context, p *model.Payment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, cur := range v.s.payments {
		if cur.ProviderOrderID == p.ProviderOrderID {
			return apperr.New(apperr.ErrConflict, "provider order %s already recorded", p.ProviderOrderID)
		}
	}
	p.ID = v.s.next()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	v.s.payments[p.ID] = &cp
	id := p.ID
	onRollback(ctx, func() { delete(v.s.payments, id) })
	return nil
}

func (v paymentView) Get(_ context.Context, id int64) (*model.Payment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.payments[id]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "payment %d", id)
	}
	cp := *p
	return &cp, nil
}

func (v paymentView) byOrder(orderID string) *model.Payment {
	for _, p := range v.s.payments {
		if p.ProviderOrderID == orderID {
			return p
		}
	}
	return nil
}

func (v paymentView) GetByProviderOrderID(_ context.Context, orderID string) (*model.Payment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p := v.byOrder(orderID)
	if p == nil {
		return nil, apperr.New(apperr.ErrNotFound, "provider order %s", orderID)
	}
	cp := *p
	return &cp, nil
}

func (v paymentView) AttachRental(ctx context.Context, paymentID, rentalID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.payments[paymentID]
	if !ok {
		return apperr.New(apperr.ErrNotFound, "payment %d", paymentID)
	}
	if p.RentalID != nil && *p.RentalID != rentalID {
		return apperr.New(apperr.ErrInvariantBroken, "payment %d bound to another rental", paymentID)
	}
	prev := p.RentalID
	p.RentalID = &rentalID
	onRollback(ctx, func() { p.RentalID = prev })
	return nil
}

func (v paymentView) Resolve(ctx context.Context, orderID string, status model.PaymentStatus, txnID, reason *string, at time.Time) (*model.Payment, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p := v.byOrder(orderID)
	if p == nil {
		return nil, false, apperr.New(apperr.ErrNotFound, "provider order %s", orderID)
	}
	if p.Status != model.PaymentPending {
		cp := *p
		return &cp, false, nil
	}
	prev := *p
	onRollback(ctx, func() { *p = prev })
	p.Status = status
	if txnID != nil {
		p.TransactionID = txnID
	}
	p.FailureReason = reason
	p.UpdatedAt = at
	cp := *p
	return &cp, true, nil
}

func (v paymentView) Cancel(ctx context.Context, id int64, at time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.payments[id]
	if !ok || p.Status != model.PaymentPending {
		return false, nil
	}
	prev := *p
	onRollback(ctx, func() { *p = prev })
	p.Status = model.PaymentCancelled
	p.UpdatedAt = at
	return true, nil
}

// tokens

type tokenView struct{ s *Store }

func (v tokenView) FindPending(_ context.Context, rentalID int64, purpose model.TokenPurpose) (*model.QRToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tokens {
		if t.RentalID == rentalID && t.Purpose == purpose && t.Status == model.TokenPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.ErrNotFound, "no pending %s token for rental %d", purpose, rentalID)
}

func (v tokenView) Insert(ctx context.Context, t *model.QRToken) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, cur := range v.s.tokens {
		if cur.TokenValue == t.TokenValue {
			return apperr.New(apperr.ErrConflict, "token value collision")
		}
		if t.Status == model.TokenPending && cur.Status == model.TokenPending &&
			cur.RentalID == t.RentalID && cur.Purpose == t.Purpose {
			return apperr.New(apperr.ErrConflict, "pending %s token exists for rental %d", t.Purpose, t.RentalID)
		}
	}
	t.ID = v.s.next()
	cp := *t
	v.s.tokens[t.ID] = &cp
	id := t.ID
	onRollback(ctx, func() { delete(v.s.tokens, id) })
	return nil
}

func (v tokenView) byValue(value string) *model.QRToken {
	for _, t := range v.s.tokens {
		if t.TokenValue == value {
			return t
		}
	}
	return nil
}

func (v tokenView) GetByValue(_ context.Context, value string) (*model.QRToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t := v.byValue(value)
	if t == nil {
		return nil, apperr.New(apperr.ErrNotFound, "token")
	}
	cp := *t
	return &cp, nil
}

func (v tokenView) Consume(ctx context.Context, value string, by int64, now time.Time) (*model.QRToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t := v.byValue(value)
	if t == nil || t.Status != model.TokenPending || !now.Before(t.ExpiresAt) {
		return nil, apperr.New(apperr.ErrInvalidToken, "token not consumable")
	}
	prev := *t
	onRollback(ctx, func() { *t = prev })
	t.Status = model.TokenUsed
	t.UsedAt = &now
	t.UsedBy = &by
	cp := *t
	return &cp, nil
}

func (v tokenView) Expire(ctx context.Context, id int64, now time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tokens[id]
	if !ok || t.Status != model.TokenPending || now.Before(t.ExpiresAt) {
		return false, nil
	}
	prev := *t
	onRollback(ctx, func() { *t = prev })
	t.Status = model.TokenExpired
	return true, nil
}

func (v tokenView) ListByRental(_ context.Context, rentalID int64) ([]model.QRToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.QRToken
	for _, t := range v.s.tokens {
		if t.RentalID == rentalID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
