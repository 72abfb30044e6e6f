// Package notify is the fire-and-forget boundary to e-mail / push delivery.
package notify

import (
	"context"
	"log/slog"
)

type Kind string

const (
	KindRentalConfirmed Kind = "rental_confirmed"
	KindBookIssued      Kind = "book_issued"
	KindBookReturned    Kind = "book_returned"
	KindRentalCancelled Kind = "rental_cancelled"
)

// Notifier must not block the pipeline or report delivery failures back.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind Kind, payload map[string]any)
}

// LogNotifier records notifications in the service log.
type LogNotifier struct{ Log *slog.Logger }

func (n LogNotifier) Notify(ctx context.Context, userID int64, kind Kind, payload map[string]any) {
	n.Log.InfoContext(ctx, "notification", "user_id", userID, "kind", kind, "payload", payload)
}
