package paymentrepo

import (
	"context"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"

	"github.com/jackc/pgx/v5"
)

// Repo owns payments.status. Resolve and Cancel only move pending rows.
type Repo interface {
	Insert(ctx context.Context, p *model.Payment) error
	Get(ctx context.Context, id int64) (*model.Payment, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (*model.Payment, error)
	AttachRental(ctx context.Context, paymentID, rentalID int64) error

	// Resolve moves a pending payment to status. transitioned is false when
	// the row was already terminal; the stored row is returned either way.
	Resolve(ctx context.Context, orderID string, status model.PaymentStatus, txnID, reason *string, at time.Time) (p *model.Payment, transitioned bool, err error)
	Cancel(ctx context.Context, id int64, at time.Time) (bool, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

const cols = `id, user_id, rental_id, amount::float8, currency, provider, provider_order_id,
	status, transaction_id, failure_reason, created_at, updated_at`

func scan(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	if err := row.Scan(
		&p.ID, &p.UserID, &p.RentalID, &p.Amount, &p.Currency, &p.Provider, &p.ProviderOrderID,
		&p.Status, &p.TransactionID, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) Insert(ctx context.Context, p *model.Payment) error {
	const q = `
INSERT INTO payments (user_id, rental_id, amount, currency, provider, provider_order_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
RETURNING id`
	err := r.db.Q(ctx).QueryRow(ctx, q,
		p.UserID, p.RentalID, p.Amount, p.Currency, p.Provider, p.ProviderOrderID, p.Status, p.CreatedAt,
	).Scan(&p.ID)
	if database.IsUniqueViolation(err, "payments_provider_order_id_key") {
		return apperr.New(apperr.ErrConflict, "provider order %s already recorded", p.ProviderOrderID)
	}
	if err != nil {
		return err
	}
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (r *repo) Get(ctx context.Context, id int64) (*model.Payment, error) {
	p, err := scan(r.db.Q(ctx).QueryRow(ctx, `SELECT `+cols+` FROM payments WHERE id=$1`, id))
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "payment %d", id)
	}
	return p, err
}

func (r *repo) GetByProviderOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	p, err := scan(r.db.Q(ctx).QueryRow(ctx, `SELECT `+cols+` FROM payments WHERE provider_order_id=$1`, orderID))
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "provider order %s", orderID)
	}
	return p, err
}

func (r *repo) AttachRental(ctx context.Context, paymentID, rentalID int64) error {
	const q = `
UPDATE payments
SET rental_id=$2, updated_at=NOW()
WHERE id=$1 AND (rental_id IS NULL OR rental_id=$2)`
	tag, err := r.db.Q(ctx).Exec(ctx, q, paymentID, rentalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrInvariantBroken, "payment %d bound to another rental", paymentID)
	}
	return nil
}

func (r *repo) Resolve(ctx context.Context, orderID string, status model.PaymentStatus, txnID, reason *string, at time.Time) (*model.Payment, bool, error) {
	const q = `
UPDATE payments
SET status=$2, transaction_id=COALESCE($3, transaction_id), failure_reason=$4, updated_at=$5
WHERE provider_order_id=$1 AND status='pending'
RETURNING ` + cols
	p, err := scan(r.db.Q(ctx).QueryRow(ctx, q, orderID, status, txnID, reason, at))
	if err == nil {
		return p, true, nil
	}
	if !database.IsNoRows(err) {
		return nil, false, err
	}
	p, err = r.GetByProviderOrderID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

func (r *repo) Cancel(ctx context.Context, id int64, at time.Time) (bool, error) {
	const q = `
UPDATE payments
SET status='cancelled', updated_at=$2
WHERE id=$1 AND status='pending'`
	tag, err := r.db.Q(ctx).Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
