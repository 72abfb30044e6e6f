package rental

import (
	"context"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
)

const activeRentalIndex = "rentals_one_active_per_user_book"

// Repo owns the rentals table. Every Mark* call is a conditional update on
// the current status; a miss reports NOT_FOUND or INVALID_TRANSITION.
type Repo interface {
	Insert(ctx context.Context, r *model.Rental) error
	Get(ctx context.Context, id int64) (*model.Rental, error)
	HasActive(ctx context.Context, userID, bookID int64) (bool, error)

	MarkIssued(ctx context.Context, id, by int64, at time.Time) (*model.Rental, error)
	MarkReturned(ctx context.Context, id, by int64, at time.Time, penalty float64) (*model.Rental, error)
	MarkCancelled(ctx context.Context, id int64, at time.Time) (*model.Rental, error)
	MarkOverdue(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkConfirmed(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkPenaltyPaid(ctx context.Context, id int64) (*model.Rental, error)
	// RebindPayment swaps the payment of a pending rental from oldPaymentID
	// to newPaymentID.
	RebindPayment(ctx context.Context, id, oldPaymentID, newPaymentID int64) (*model.Rental, error)

	ListByUser(ctx context.Context, userID int64, status model.RentalStatus) ([]model.Rental, error)
	ListPending(ctx context.Context, limit int) ([]model.Rental, error)
}

type repo struct {
	db *database.DB
}

func New(db *database.DB) Repo { return &repo{db: db} }

var columns = []any{
	"id", "user_id", "book_id", "payment_id", "rental_days", "start_date", "due_date",
	"return_date", "status", "issued_by", "issued_at", "returned_by",
	goqu.L("penalty_amount::float8"), "penalty_paid", "confirmed_at", "cancelled_at", "created_at",
}

const returning = `
		RETURNING id, user_id, book_id, payment_id, rental_days, start_date, due_date,
			return_date, status, issued_by, issued_at, returned_by,
			penalty_amount::float8, penalty_paid, confirmed_at, cancelled_at, created_at`

func scan(row pgx.Row) (*model.Rental, error) {
	var r model.Rental
	err := row.Scan(
		&r.ID, &r.UserID, &r.BookID, &r.PaymentID, &r.RentalDays, &r.StartDate, &r.DueDate,
		&r.ReturnDate, &r.Status, &r.IssuedBy, &r.IssuedAt, &r.ReturnedBy,
		&r.PenaltyAmount, &r.PenaltyPaid, &r.ConfirmedAt, &r.CancelledAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *repo) Insert(ctx context.Context, rn *model.Rental) error {
	const q = `
		INSERT INTO rentals (user_id, book_id, payment_id, rental_days, start_date, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.db.Q(ctx).QueryRow(ctx, q,
		rn.UserID, rn.BookID, rn.PaymentID, rn.RentalDays, rn.StartDate, rn.DueDate, rn.Status, rn.CreatedAt,
	).Scan(&rn.ID)
	if database.IsUniqueViolation(err, activeRentalIndex) {
		return apperr.New(apperr.ErrAlreadyRented, "user %d already holds book %d", rn.UserID, rn.BookID)
	}
	return err
}

func (r *repo) Get(ctx context.Context, id int64) (*model.Rental, error) {
	q, args, err := goqu.Dialect("postgres").
		From("rentals").
		Select(columns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	rn, err := scan(r.db.Q(ctx).QueryRow(ctx, q, args...))
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "rental %d", id)
	}
	return rn, err
}

func (r *repo) HasActive(ctx context.Context, userID, bookID int64) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM rentals
			WHERE user_id = $1
			AND book_id = $2
			AND status IN ('pending', 'issued', 'overdue'))`
	var ok bool
	err := r.db.Q(ctx).QueryRow(ctx, q, userID, bookID).Scan(&ok)
	return ok, err
}

// transition runs a conditional update and explains a miss.
func (r *repo) transition(ctx context.Context, id int64, to model.RentalStatus, q string, args ...any) (*model.Rental, error) {
	rn, err := scan(r.db.Q(ctx).QueryRow(ctx, q, args...))
	if err == nil {
		return rn, nil
	}
	if !database.IsNoRows(err) {
		return nil, err
	}
	cur, gerr := r.Get(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return nil, apperr.New(apperr.ErrInvalidTransition, "rental %d: %s -> %s", id, cur.Status, to)
}

func (r *repo) MarkIssued(ctx context.Context, id, by int64, at time.Time) (*model.Rental, error) {
	q := `
		UPDATE rentals
		SET status = 'issued',
			issued_at = $2,
			issued_by = $3
		WHERE id = $1
		AND status = 'pending'` + returning
	return r.transition(ctx, id, model.RentalIssued, q, id, at, by)
}

func (r *repo) MarkReturned(ctx context.Context, id, by int64, at time.Time, penalty float64) (*model.Rental, error) {
	q := `
		UPDATE rentals
		SET status = 'returned',
			return_date = $2,
			returned_by = $3,
			penalty_amount = $4
		WHERE id = $1
		AND status IN ('issued', 'overdue')` + returning
	return r.transition(ctx, id, model.RentalReturned, q, id, at, by, penalty)
}

func (r *repo) MarkCancelled(ctx context.Context, id int64, at time.Time) (*model.Rental, error) {
	q := `
		UPDATE rentals
		SET status = 'cancelled',
			cancelled_at = $2
		WHERE id = $1
		AND status = 'pending'` + returning
	return r.transition(ctx, id, model.RentalCancelled, q, id, at)
}

func (r *repo) MarkOverdue(ctx context.Context, id int64, now time.Time) (bool, error) {
	const q = `
		UPDATE rentals
		SET status = 'overdue'
		WHERE id = $1
		AND status = 'issued'
		AND due_date < $2`
	tag, err := r.db.Q(ctx).Exec(ctx, q, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) MarkConfirmed(ctx context.Context, id int64, at time.Time) (bool, error) {
	const q = `
		UPDATE rentals
		SET confirmed_at = $2
		WHERE id = $1
		AND confirmed_at IS NULL`
	tag, err := r.db.Q(ctx).Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) MarkPenaltyPaid(ctx context.Context, id int64) (*model.Rental, error) {
	q := `
		UPDATE rentals
		SET penalty_paid = TRUE
		WHERE id = $1
		AND status = 'returned'
		AND penalty_amount > 0
		AND penalty_paid = FALSE` + returning
	return r.transition(ctx, id, model.RentalReturned, q, id)
}

func (r *repo) RebindPayment(ctx context.Context, id, oldPaymentID, newPaymentID int64) (*model.Rental, error) {
	q := `
		UPDATE rentals
		SET payment_id = $3
		WHERE id = $1
		AND status = 'pending'
		AND payment_id = $2` + returning
	return r.transition(ctx, id, model.RentalPending, q, id, oldPaymentID, newPaymentID)
}

// History

func (r *repo) ListByUser(ctx context.Context, userID int64, status model.RentalStatus) ([]model.Rental, error) {
	ds := goqu.Dialect("postgres").
		From("rentals").
		Select(columns...).
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(status)))
	}
	q, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q, args...)
}

func (r *repo) ListPending(ctx context.Context, limit int) ([]model.Rental, error) {
	q, args, err := goqu.Dialect("postgres").
		From("rentals").
		Select(columns...).
		Where(goqu.C("status").Eq(string(model.RentalPending))).
		Order(goqu.C("created_at").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	return r.list(ctx, q, args...)
}

func (r *repo) list(ctx context.Context, q string, args ...any) ([]model.Rental, error) {
	rows, err := r.db.Q(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Rental
	for rows.Next() {
		rn, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rn)
	}
	return out, rows.Err()
}
