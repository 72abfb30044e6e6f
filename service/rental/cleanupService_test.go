package rental_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/notify"
	rental "github.com/Kevall84/Smart-Library-Management-System-sub000/service/rental"

	"github.com/stretchr/testify/require"
)

func newCleaner(h *harness, ttl time.Duration) rental.Cleaner {
	return rental.NewCleaner(h.svc, h.st.Rentals(), h.pays, ttl, slog.New(slog.NewTextHandler(io.Discard, nil)), h.clock.Now)
}

func TestSweep_RetriesConfirmation(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	c := h.request(t, member, 3)

	// Settle the payment behind the reconciler's back, as if the listener
	// had crashed half way.
	_, _, err := h.st.Payments().Resolve(ctx, c.Payment.ProviderOrderID, model.PaymentCompleted, nil, nil, h.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 0, h.notes.count(notify.KindRentalConfirmed))

	cl := newCleaner(h, 0)
	st, err := cl.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Confirmed)
	require.Equal(t, 1, h.notes.count(notify.KindRentalConfirmed))

	st, err = cl.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, st.Confirmed)
	require.Equal(t, 1, st.Scanned)
	require.Equal(t, 1, h.notes.count(notify.KindRentalConfirmed))
}

func TestSweep_CancelsStaleUnpaid(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	unpaid := h.request(t, member, 3)
	paid := h.request(t, other, 3)
	h.pay(t, paid)

	cl := newCleaner(h, time.Hour)
	st, err := cl.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, st.Cancelled, "not stale yet")

	h.clock.Advance(2 * time.Hour)
	st, err = cl.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Cancelled)
	require.Equal(t, int64(1), h.available(t))

	rn, err := h.st.Rentals().Get(ctx, unpaid.Rental.ID)
	require.NoError(t, err)
	require.Equal(t, model.RentalCancelled, rn.Status)
	rn, err = h.st.Rentals().Get(ctx, paid.Rental.ID)
	require.NoError(t, err)
	require.Equal(t, model.RentalPending, rn.Status)
}

func TestSweep_DisabledTTLKeepsPending(t *testing.T) {
	h := newHarness(t, 1)
	h.request(t, member, 3)
	h.clock.Advance(30 * 24 * time.Hour)

	st, err := newCleaner(h, 0).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, st.Cancelled)
	require.Equal(t, int64(0), h.available(t))
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newCleaner(h, 0).Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
