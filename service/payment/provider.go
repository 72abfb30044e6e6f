package paymentsvc

import (
	"context"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
)

// Provider is one payment gateway. The reconciler never branches on the
// provider name; everything specific lives behind these calls.
type Provider interface {
	Name() model.PaymentProvider
	// Configured is false when credentials are missing.
	Configured() bool
	// CreateOrder returns the provider's order/intent id for amount.
	CreateOrder(ctx context.Context, amount float64, currency, receipt string) (string, error)
	// VerifyCallback checks the client-side confirmation. An empty Outcome
	// means the provider has not settled the order yet.
	VerifyCallback(ctx context.Context, cb model.ClientCallback) (*model.Confirmation, error)
	// ParseWebhook checks the signature over the untouched raw body and
	// decodes it. An empty Outcome means an event we ignore.
	ParseWebhook(raw []byte, signature string) (*model.Confirmation, error)
}
