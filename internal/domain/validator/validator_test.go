package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/recon-monitor/internal/domain/matcher"
	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestValidateBatch_Empty(t *testing.T) {
	assert.NoError(t, ValidateBatch(Batch{}))
}

func TestValidateBatch_PartialRowsAreFine(t *testing.T) {
	b := Batch{
		Charges:   []matcher.Charge{{ID: "ch_1", Created: now}, {ID: "ch_2"}},
		Statement: []txn.Record{{ID: "1"}, {ID: "2", Timestamp: now}},
	}

	assert.NoError(t, ValidateBatch(b))
}

func TestValidateBatch_MissingColumn(t *testing.T) {
	// Arrange
	b := Batch{
		Postings:   []matcher.Posting{{ID: "r1"}, {ID: "r2"}},
		CardExport: []txn.CardTransaction{{ID: "c1", Date: now}},
		Statement:  []txn.Record{{ID: "1"}},
	}

	// Act
	err := ValidateBatch(b)

	// Assert
	require.Error(t, err)
	assert.True(t, IsStructural(err))
	assert.Contains(t, err.Error(), `rms postings: required field "posted_at" missing from all 2 rows`)
	assert.Contains(t, err.Error(), `bank statement: required field "timestamp"`)
	assert.NotContains(t, err.Error(), "card export")
}

func TestIsStructural(t *testing.T) {
	assert.False(t, IsStructural(nil))
	assert.False(t, IsStructural(assert.AnError))
	assert.True(t, IsStructural(&StructuralError{Input: "x", Field: "y"}))
}

func TestValidateTotals(t *testing.T) {
	t.Run("balanced with refund and credit memo", func(t *testing.T) {
		result := ValidateTotals([]float64{100.10, 200.20}, []float64{50}, []float64{100.10, 200.20, -50}, 0.01)

		assert.True(t, result.Valid)
		assert.Equal(t, 250.30, result.ProcessorNet)
		assert.Equal(t, 250.30, result.LedgerNet)
		assert.Empty(t, result.Reason)
	})

	t.Run("missing posting", func(t *testing.T) {
		result := ValidateTotals([]float64{100, 200}, nil, []float64{100}, 0.01)

		assert.False(t, result.Valid)
		assert.Equal(t, 200.0, result.Difference)
		assert.Contains(t, result.Reason, "postings or credit memos are missing")
	})

	t.Run("duplicate posting", func(t *testing.T) {
		result := ValidateTotals([]float64{100}, nil, []float64{100, 100}, 0.01)

		assert.False(t, result.Valid)
		assert.Equal(t, -100.0, result.Difference)
		assert.Contains(t, result.Reason, "possible duplicate posting")
	})
}
