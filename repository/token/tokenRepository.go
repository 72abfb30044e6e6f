package tokenrepo

import (
	"context"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"

	"github.com/jackc/pgx/v5"
)

// Repo owns qr_tokens.status.
type Repo interface {
	// FindPending returns NOT_FOUND when (rental, purpose) has no pending token.
	FindPending(ctx context.Context, rentalID int64, purpose model.TokenPurpose) (*model.QRToken, error)
	// Insert fails with CONFLICT when a pending token for the pair exists.
	Insert(ctx context.Context, t *model.QRToken) error
	GetByValue(ctx context.Context, value string) (*model.QRToken, error)
	// Consume flips pending -> used if unexpired at now; INVALID_TOKEN otherwise.
	Consume(ctx context.Context, value string, by int64, now time.Time) (*model.QRToken, error)
	// Expire flips a pending token whose expiry has passed.
	Expire(ctx context.Context, id int64, now time.Time) (bool, error)
	ListByRental(ctx context.Context, rentalID int64) ([]model.QRToken, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db: db} }

const cols = `id, rental_id, user_id, token_value, purpose, status, expires_at, used_at, used_by, created_at`

func scan(row pgx.Row) (*model.QRToken, error) {
	var t model.QRToken
	if err := row.Scan(&t.ID, &t.RentalID, &t.UserID, &t.TokenValue, &t.Purpose, &t.Status,
		&t.ExpiresAt, &t.UsedAt, &t.UsedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindPending(ctx context.Context, rentalID int64, purpose model.TokenPurpose) (*model.QRToken, error) {
	const q = `SELECT ` + cols + `
		FROM qr_tokens
		WHERE rental_id = $1
		AND purpose = $2
		AND status = 'pending'`
	t, err := scan(r.db.Q(ctx).QueryRow(ctx, q, rentalID, purpose))
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "no pending %s token for rental %d", purpose, rentalID)
	}
	return t, err
}

func (r *repo) Insert(ctx context.Context, t *model.QRToken) error {
	const q = `
		INSERT INTO qr_tokens (rental_id, user_id, token_value, purpose, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.Q(ctx).QueryRow(ctx, q,
		t.RentalID, t.UserID, t.TokenValue, t.Purpose, t.Status, t.ExpiresAt, t.CreatedAt,
	).Scan(&t.ID)
	if database.IsUniqueViolation(err, "") {
		return apperr.Wrap(apperr.ErrConflict, err, "insert token")
	}
	return err
}

func (r *repo) GetByValue(ctx context.Context, value string) (*model.QRToken, error) {
	t, err := scan(r.db.Q(ctx).QueryRow(ctx, `SELECT `+cols+` FROM qr_tokens WHERE token_value = $1`, value))
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "token")
	}
	return t, err
}

func (r *repo) Consume(ctx context.Context, value string, by int64, now time.Time) (*model.QRToken, error) {
	const q = `
		UPDATE qr_tokens
		SET status = 'used',
			used_at = $3,
			used_by = $2
		WHERE token_value = $1
		AND status = 'pending'
		AND expires_at > $3
		RETURNING ` + cols
	t, err := scan(r.db.Q(ctx).QueryRow(ctx, q, value, by, now))
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrInvalidToken, "token not consumable")
	}
	return t, err
}

func (r *repo) Expire(ctx context.Context, id int64, now time.Time) (bool, error) {
	const q = `
		UPDATE qr_tokens
		SET status = 'expired'
		WHERE id = $1
		AND status = 'pending'
		AND expires_at <= $2`
	tag, err := r.db.Q(ctx).Exec(ctx, q, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) ListByRental(ctx context.Context, rentalID int64) ([]model.QRToken, error) {
	rows, err := r.db.Q(ctx).Query(ctx, `SELECT `+cols+` FROM qr_tokens WHERE rental_id = $1 ORDER BY id`, rentalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QRToken
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
