package txn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.365853, 0.37},
		{7.317073, 7.32},
		{-45.004, -45},
		{100, 100},
		{1.005, 1.01},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Round2(tt.in), "Round2(%v)", tt.in)
	}
}

func TestDaysBetween(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)

	t.Run("same local day across UTC midnight", func(t *testing.T) {
		a := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC) // 00:30 on the 11th in WAT
		b := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)
		assert.Equal(t, 0, DaysBetween(a, b, loc))
	})

	t.Run("signed", func(t *testing.T) {
		a := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)
		b := time.Date(2025, 3, 7, 12, 0, 0, 0, loc)
		assert.Equal(t, -3, DaysBetween(a, b, loc))
		assert.Equal(t, 3, DaysBetween(b, a, loc))
	})
}

func TestRecord_HasForeignAmount(t *testing.T) {
	assert.False(t, Record{}.HasForeignAmount())
	assert.False(t, Record{ForeignAmount: Float(0)}.HasForeignAmount())
	assert.True(t, Record{ForeignAmount: Float(12.5)}.HasForeignAmount())
}
