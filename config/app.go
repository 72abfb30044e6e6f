package config

import "time"

type App struct {
	Port        string `env:"APP_PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Env         string `env:"APP_ENV" default:"dev"`

	PaymentProvider string `env:"PAYMENT_PROVIDER" default:"razorpay"`
	Currency        string `env:"PAYMENT_CURRENCY" default:"INR"`

	RazorpayKeyID         string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
	StripeSecretKey       string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET"`

	TokenTTL  time.Duration `env:"QR_TOKEN_TTL" default:"24h"`
	TokenSalt string        `env:"QR_TOKEN_SALT"`

	PenaltyRatePerDay float64 `env:"PENALTY_RATE_PER_DAY" default:"10"`
	MaxRentalDays     int     `env:"MAX_RENTAL_DAYS" default:"30"`

	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" default:"5m"`
	PendingRentalTTL time.Duration `env:"PENDING_RENTAL_TTL" default:"0"`

	NotifyTopicARN string `env:"NOTIFY_SNS_TOPIC_ARN"`
}

func (a App) Dev() bool { return a.Env == "dev" }
