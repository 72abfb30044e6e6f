package inventoryrepo

import (
	"context"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"
)

// Repo is the only writer of books.available_copies.
type Repo interface {
	// Reserve takes one copy. UNAVAILABLE when none is left.
	Reserve(ctx context.Context, bookID int64) error
	// Release gives one copy back; clamped reports that the counter was
	// already at total_copies and nothing changed.
	Release(ctx context.Context, bookID int64) (clamped bool, err error)
	Get(ctx context.Context, bookID int64) (*model.BookPool, error)
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db: db} }

func (r *repo) Reserve(ctx context.Context, bookID int64) error {
	const q = `
		UPDATE books
		SET available_copies = available_copies - 1
		WHERE id = $1
		AND available_copies > 0`
	tag, err := r.db.Q(ctx).Exec(ctx, q, bookID)
	if err != nil {
		if database.IsCheckViolation(err) {
			return apperr.Wrap(apperr.ErrInvariantBroken, err, "reserve")
		}
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, bookID); err != nil {
		return err
	}
	return apperr.New(apperr.ErrUnavailable, "no copies left for book %d", bookID)
}

func (r *repo) Release(ctx context.Context, bookID int64) (bool, error) {
	const q = `
		UPDATE books
		SET available_copies = available_copies + 1
		WHERE id = $1
		AND available_copies < total_copies`
	tag, err := r.db.Q(ctx).Exec(ctx, q, bookID)
	if err != nil {
		if database.IsCheckViolation(err) {
			return false, apperr.Wrap(apperr.ErrInvariantBroken, err, "release")
		}
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return false, nil
	}
	if _, err := r.Get(ctx, bookID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) Get(ctx context.Context, bookID int64) (*model.BookPool, error) {
	const q = `
		SELECT id, total_copies, available_copies
		FROM books
		WHERE id = $1`
	var p model.BookPool
	err := r.db.Q(ctx).QueryRow(ctx, q, bookID).Scan(&p.ID, &p.TotalCopies, &p.AvailableCopies)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "book %d", bookID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
