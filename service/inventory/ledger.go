package inventory

import (
	"context"
	"log/slog"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	inventoryrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/inventory"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/util/apperr"
)

// Ledger is the only way copy counters move. It knows nothing about rentals.
type Ledger interface {
	Reserve(ctx context.Context, bookID int64) error
	Release(ctx context.Context, bookID int64) error
	Get(ctx context.Context, bookID int64) (*model.BookPool, error)
}

type ledger struct {
	r   inventoryrepo.Repo
	log *slog.Logger
}

func New(r inventoryrepo.Repo, log *slog.Logger) Ledger {
	return &ledger{r: r, log: log}
}

func (l *ledger) Reserve(ctx context.Context, bookID int64) error {
	err := l.r.Reserve(ctx, bookID)
	if apperr.Is(err, apperr.ErrInvariantBroken) {
		l.log.Error("inventory invariant broken", "book_id", bookID, "err", err)
	}
	return err
}

func (l *ledger) Release(ctx context.Context, bookID int64) error {
	clamped, err := l.r.Release(ctx, bookID)
	if err != nil {
		if apperr.Is(err, apperr.ErrInvariantBroken) {
			l.log.Error("inventory invariant broken", "book_id", bookID, "err", err)
		}
		return err
	}
	if clamped {
		l.log.Warn("release clamped at total copies", "book_id", bookID)
	}
	return nil
}

func (l *ledger) Get(ctx context.Context, bookID int64) (*model.BookPool, error) {
	return l.r.Get(ctx, bookID)
}
