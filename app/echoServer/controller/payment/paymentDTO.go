package payment

type VerifyReq struct {
	Provider        string `json:"provider" validate:"required,oneof=razorpay stripe"`
	ProviderOrderID string `json:"provider_order_id" validate:"required"`
	PaymentRef      string `json:"payment_ref"`
	Signature       string `json:"signature"`
}
