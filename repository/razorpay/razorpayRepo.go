package razorpayrepo

import (
	"context"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"
)

const (
	DefaultBaseURL  = "https://api.razorpay.com"
	SignatureHeader = "X-Razorpay-Signature"
)

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

type createOrderReq struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

type orderEntity struct {
	ID string `json:"id"`
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type Repo interface {
	Name() model.PaymentProvider
	Configured() bool
	CreateOrder(ctx context.Context, amount float64, currency, receipt string) (string, error)
	VerifyCallback(ctx context.Context, cb model.ClientCallback) (*model.Confirmation, error)
	ParseWebhook(raw []byte, signature string) (*model.Confirmation, error)
}
