package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

func Load() App {
	cfg := App{
		Port:        getenv("APP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   getenv("JWT_SECRET", "local_dev_secret"),
		Env:         getenv("APP_ENV", "dev"),

		PaymentProvider: getenv("PAYMENT_PROVIDER", "razorpay"),
		Currency:        getenv("PAYMENT_CURRENCY", "INR"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		StripeSecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),

		TokenTTL:  duration("QR_TOKEN_TTL", 24*time.Hour),
		TokenSalt: os.Getenv("QR_TOKEN_SALT"),

		PenaltyRatePerDay: number("PENALTY_RATE_PER_DAY", 10),
		MaxRentalDays:     int(number("MAX_RENTAL_DAYS", 30)),

		SweepInterval:    duration("SWEEP_INTERVAL", 5*time.Minute),
		PendingRentalTTL: duration("PENDING_RENTAL_TTL", 0),

		NotifyTopicARN: os.Getenv("NOTIFY_SNS_TOPIC_ARN"),
	}
	if !cfg.Dev() {
		cfg.JWTSecret = must("JWT_SECRET")
		cfg.TokenSalt = must("QR_TOKEN_SALT")
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}

func duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Error("bad duration env", "key", k, "value", v)
		panic("bad env " + k)
	}
	return d
}

func number(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Error("bad number env", "key", k, "value", v)
		panic("bad env " + k)
	}
	return f
}
