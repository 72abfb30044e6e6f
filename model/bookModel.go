package model

// Book is the catalog view the rental pipeline prices against.
type Book struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	RentPerDay   float64 `json:"rent_per_day"`
	TotalRentals int64   `json:"total_rentals"`
}

// BookPool is the copy counter owned by the inventory ledger.
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type BookPool struct {
	ID              int64 `json:"id"`
	TotalCopies     int64 `json:"total_copies"`
	AvailableCopies int64 `json:"available_copies"`
}
