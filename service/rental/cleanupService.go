package rental

import (
	"context"
	"log/slog"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	rentalrepo "github.com/Kevall84/Smart-Library-Management-System-sub000/repository/rental"
	paymentsvc "github.com/Kevall84/Smart-Library-Management-System-sub000/service/payment"
)

const sweepBatch = 500

type SweepStats struct {
	Scanned   int
	Confirmed int
	Cancelled int
	Failed    int
}

// Cleaner walks pending rentals: it retries confirmation side effects that
// did not finish and, when pendingTTL > 0, cancels unpaid stale rentals.
type Cleaner interface {
	Sweep(ctx context.Context) (SweepStats, error)
	Run(ctx context.Context, every time.Duration)
}

type cleaner struct {
	svc        Service
	rentals    rentalrepo.Repo
	payments   paymentsvc.Service
	pendingTTL time.Duration
	log        *slog.Logger
	now        func() time.Time
}

func NewCleaner(svc Service, rentals rentalrepo.Repo, payments paymentsvc.Service, pendingTTL time.Duration, log *slog.Logger, now func() time.Time) Cleaner {
	if now == nil {
		now = time.Now
	}
	return &cleaner{svc: svc, rentals: rentals, payments: payments, pendingTTL: pendingTTL, log: log, now: now}
}

func (c *cleaner) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	pending, err := c.rentals.ListPending(ctx, sweepBatch)
	if err != nil {
		return st, err
	}
	now := c.now().UTC()
	for _, rn := range pending {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Scanned++
		if rn.PaymentID == nil {
			continue
		}
		pay, err := c.payments.Get(ctx, *rn.PaymentID)
		if err != nil {
			st.Failed++
			c.log.Warn("sweep: load payment", "rental_id", rn.ID, "err", err)
			continue
		}

		if pay.Status == model.PaymentCompleted {
			if rn.ConfirmedAt != nil {
				continue
			}
			if err := c.svc.ConfirmPaymentSideEffects(ctx, rn.ID); err != nil {
				st.Failed++
				continue
			}
			st.Confirmed++
			continue
		}

		if c.pendingTTL <= 0 || now.Sub(rn.CreatedAt) < c.pendingTTL {
			continue
		}
		if _, err := c.svc.Cancel(ctx, rn.ID, System); err != nil {
			st.Failed++
			continue
		}
		st.Cancelled++
	}
	return st, nil
}

func (c *cleaner) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st, err := c.Sweep(ctx)
			if err != nil {
				c.log.Error("sweep failed", "err", err)
				continue
			}
			if st.Confirmed+st.Cancelled+st.Failed > 0 {
				c.log.Info("sweep done", "scanned", st.Scanned, "confirmed", st.Confirmed, "cancelled", st.Cancelled, "failed", st.Failed)
			}
		}
	}
}
