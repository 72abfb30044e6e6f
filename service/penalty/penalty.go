// Package penalty is the single place overdue days and fines are counted.
package penalty

import "time"

const day = 24 * time.Hour

type Result struct {
	OverdueDays int     `json:"overdue_days"`
	Amount      float64 `json:"amount"`
}

// Compute counts started days past due; a partial day is a full day.
func Compute(due, now time.Time, ratePerDay float64) Result {
	if !now.After(due) {
		return Result{}
	}
	late := now.Sub(due)
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return Result{OverdueDays: days, Amount: float64(days) * ratePerDay}
}
