package model

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Terminal() bool { return s != PaymentPending }

type PaymentProvider string

const (
	ProviderRazorpay PaymentProvider = "razorpay"
	ProviderStripe   PaymentProvider = "stripe"
)

// PaymentOutcome is what a provider reports for an order. Empty means the
// provider has nothing final to say yet.
type PaymentOutcome string

const (
	OutcomeCompleted PaymentOutcome = "completed"
	OutcomeFailed    PaymentOutcome = "failed"
)

type Payment struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	RentalID        *int64          `json:"rental_id,omitempty"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency"`
	Provider        PaymentProvider `json:"provider"`
	ProviderOrderID string          `json:"provider_order_id"`
	Status          PaymentStatus   `json:"status"`
	TransactionID   *string         `json:"transaction_id,omitempty"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Confirmation is one provider report about an order, from either the
// client callback or the webhook.
type Confirmation struct {
	ProviderOrderID string
	Outcome         PaymentOutcome
	Ref             string
	FailureReason   string
	EventType       string
}

// ClientCallback carries what the browser hands back after checkout.
type ClientCallback struct {
	ProviderOrderID string
	PaymentRef      string
	Signature       string
}
