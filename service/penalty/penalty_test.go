package penalty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	due := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		days int
	}{
		{"before due", due.Add(-48 * time.Hour), 0},
		{"exactly due", due, 0},
		{"one second late", due.Add(time.Second), 1},
		{"exactly one day", due.Add(24 * time.Hour), 1},
		{"one day and a bit", due.Add(25 * time.Hour), 2},
		{"three days", due.Add(72 * time.Hour), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Compute(due, tc.now, 10)
			require.Equal(t, tc.days, got.OverdueDays)
			require.Equal(t, float64(tc.days)*10, got.Amount)
		})
	}
}

func TestCompute_ZeroRate(t *testing.T) {
	due := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	got := Compute(due, due.Add(50*time.Hour), 0)
	require.Equal(t, 3, got.OverdueDays)
	require.Zero(t, got.Amount)
}
