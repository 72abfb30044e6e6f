package model

import "time"

type TokenPurpose string

const (
	PurposeIssue  TokenPurpose = "issue"
	PurposeReturn TokenPurpose = "return"
)

func (p TokenPurpose) Valid() bool { return p == PurposeIssue || p == PurposeReturn }

type TokenStatus string

const (
	TokenPending TokenStatus = "pending"
	TokenUsed    TokenStatus = "used"
	TokenExpired TokenStatus = "expired"
)

type QRToken struct {
	ID         int64        `json:"id"`
	RentalID   int64        `json:"rental_id"`
	UserID     int64        `json:"user_id"`
	TokenValue string       `json:"token"`
	Purpose    TokenPurpose `json:"purpose"`
	Status     TokenStatus  `json:"status"`
	ExpiresAt  time.Time    `json:"expires_at"`
	UsedAt     *time.Time   `json:"used_at,omitempty"`
	UsedBy     *int64       `json:"used_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
