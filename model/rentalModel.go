package model

import "time"

type RentalStatus string

const (
	RentalPending   RentalStatus = "pending"
	RentalIssued    RentalStatus = "issued"
	RentalOverdue   RentalStatus = "overdue"
	RentalReturned  RentalStatus = "returned"
	RentalCancelled RentalStatus = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s RentalStatus) Terminal() bool {
	return s == RentalReturned || s == RentalCancelled
}

// OnLoan reports whether the physical copy is with the user.
func (s RentalStatus) OnLoan() bool {
	return s == RentalIssued || s == RentalOverdue
}

func (s RentalStatus) Valid() bool {
	switch s {
	case RentalPending, RentalIssued, RentalOverdue, RentalReturned, RentalCancelled:
		return true
	}
	return false
}

type Rental struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"user_id"`
	BookID        int64        `json:"book_id"`
	PaymentID     *int64       `json:"payment_id,omitempty"`
	RentalDays    int          `json:"rental_days"`
	StartDate     time.Time    `json:"start_date"`
	DueDate       time.Time    `json:"due_date"`
	ReturnDate    *time.Time   `json:"return_date,omitempty"`
	Status        RentalStatus `json:"status"`
	IssuedBy      *int64       `json:"issued_by,omitempty"`
	IssuedAt      *time.Time   `json:"issued_at,omitempty"`
	ReturnedBy    *int64       `json:"returned_by,omitempty"`
	PenaltyAmount float64      `json:"penalty_amount"`
	PenaltyPaid   bool         `json:"penalty_paid"`
	ConfirmedAt   *time.Time   `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
