package bookrepo

import (
	"context"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/database"
)

// Repo is the read side of the catalog plus the popularity counter.
type Repo interface {
	FindBook(ctx context.Context, id int64) (*model.Book, error)
	IncrementTotalRentals(ctx context.Context, id int64) error
}

type repo struct{ db *database.DB }

func New(db *database.DB) Repo { return &repo{db} }

func (r *repo) FindBook(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, rent_per_day::float8, total_rentals
FROM books
WHERE id=$1`
	var b model.Book
	err := r.db.Q(ctx).QueryRow(ctx, q, id).Scan(&b.ID, &b.Title, &b.RentPerDay, &b.TotalRentals)
	if database.IsNoRows(err) {
		return nil, apperr.New(apperr.ErrNotFound, "book %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) IncrementTotalRentals(ctx context.Context, id int64) error {
	const q = `UPDATE books SET total_rentals = total_rentals + 1 WHERE id=$1`
	tag, err := r.db.Q(ctx).Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrNotFound, "book %d", id)
	}
	return nil
}
