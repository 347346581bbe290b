package ageing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendar_AddWorkingDays(t *testing.T) {
	// 2025-01-24 is a Friday; Monday 27th is a holiday in this calendar.
	cal := NewCalendar([]string{"2025-01-27", "not-a-date"}, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		n     int
		want  time.Time
	}{
		{"midweek", date(2025, 1, 20), 3, date(2025, 1, 23)},
		{"across weekend and holiday", date(2025, 1, 24), 3, date(2025, 1, 30)},
		{"zero days", date(2025, 1, 25), 0, date(2025, 1, 25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.AddWorkingDays(tt.start, tt.n))
		})
	}
}

func TestCalendar_WorkingDaysBetween(t *testing.T) {
	cal := NewCalendar([]string{"2025-01-27"}, time.UTC)

	assert.Equal(t, 0, cal.WorkingDaysBetween(date(2025, 1, 24), date(2025, 1, 24)))
	assert.Equal(t, 0, cal.WorkingDaysBetween(date(2025, 1, 24), date(2025, 1, 27)), "weekend and holiday")
	assert.Equal(t, 1, cal.WorkingDaysBetween(date(2025, 1, 24), date(2025, 1, 28)))
	assert.Equal(t, 0, cal.WorkingDaysBetween(date(2025, 1, 28), date(2025, 1, 20)), "end before start")
}

func TestCalendar_IsWorkingDay(t *testing.T) {
	cal := NewCalendar([]string{"2025-08-15"}, time.UTC)

	assert.True(t, cal.IsWorkingDay(date(2025, 8, 14)))
	assert.False(t, cal.IsWorkingDay(date(2025, 8, 15)))
	assert.False(t, cal.IsWorkingDay(date(2025, 8, 16)))
	assert.False(t, cal.IsWorkingDay(date(2025, 8, 17)))
}

func TestClassify_SLAOverdue(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	txnDate := date(2025, 3, 3) // Monday, due Thursday 6th

	t.Run("on due date not overdue", func(t *testing.T) {
		rec := c.Classify(Input{TransactionDate: txnDate, Today: date(2025, 3, 6), HasReceipt: true})

		assert.Equal(t, date(2025, 3, 6), rec.SLADueDate)
		assert.False(t, rec.IsOverdue)
	})

	t.Run("day after due date overdue", func(t *testing.T) {
		rec := c.Classify(Input{TransactionDate: txnDate, Today: date(2025, 3, 7), HasReceipt: true})

		assert.True(t, rec.IsOverdue)
		assert.Equal(t, StageD3, rec.Stage)
		assert.Equal(t, FlagLateEntry, rec.Flag)
	})

	t.Run("entered is never overdue", func(t *testing.T) {
		entered := date(2025, 3, 10)
		rec := c.Classify(Input{TransactionDate: txnDate, EnteredAt: &entered, Today: date(2025, 3, 20)})

		assert.False(t, rec.IsOverdue)
		assert.Equal(t, StageNone, rec.Stage)
		assert.Equal(t, FlagNone, rec.Flag)
	})

	t.Run("before the SLA elapses", func(t *testing.T) {
		rec := c.Classify(Input{TransactionDate: txnDate, Today: date(2025, 3, 5)})

		assert.Equal(t, 2, rec.WorkingDaysElapsed)
		assert.Equal(t, StageNone, rec.Stage)
	})
}

func TestClassify_InvoiceLaterLadder(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	txnDate := date(2025, 3, 1)
	entered := date(2025, 3, 2)

	tests := []struct {
		name       string
		today      time.Time
		hasReceipt bool
		wantStage  Stage
		wantFlag   Flag
		wantAge    int
	}{
		{"13 days", date(2025, 3, 14), true, StageNone, FlagNone, 13},
		{"14 days", date(2025, 3, 15), true, StageD14, FlagInvoiceLater, 14},
		{"14 days without receipt", date(2025, 3, 15), false, StageD14, FlagNoReceipt, 14},
		{"29 days", date(2025, 3, 30), true, StageD14, FlagInvoiceLater, 29},
		{"30 days", date(2025, 3, 31), true, StageD30, FlagInvoiceLater, 30},
		{"45 days without receipt", date(2025, 4, 15), false, StageD30, FlagNoReceipt, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Classify(Input{
				TransactionDate: txnDate,
				EnteredAt:       &entered,
				InvoiceLater:    true,
				HasReceipt:      tt.hasReceipt,
				Today:           tt.today,
			})

			assert.Equal(t, tt.wantStage, rec.Stage)
			assert.Equal(t, tt.wantFlag, rec.Flag)
			assert.Equal(t, tt.wantAge, rec.InvoiceLaterAgeDays)
		})
	}
}

func TestClassify_D30OutranksD3(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	rec := c.Classify(Input{
		TransactionDate: date(2025, 1, 1),
		InvoiceLater:    true,
		HasReceipt:      true,
		Today:           date(2025, 2, 15),
	})

	assert.True(t, rec.IsOverdue)
	assert.Equal(t, StageD30, rec.Stage)
	assert.Equal(t, FlagInvoiceLater, rec.Flag)
}

func TestClassify_NotInvoiceLaterHasNoAge(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	rec := c.Classify(Input{TransactionDate: date(2025, 1, 1), Today: date(2025, 2, 15), HasReceipt: true})

	assert.Equal(t, 0, rec.InvoiceLaterAgeDays)
	assert.Equal(t, StageD3, rec.Stage)
}

func TestClassify_HolidayDelaysDueDate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Holidays = []string{"2025-03-05"}
	c := NewClassifier(cfg)

	rec := c.Classify(Input{TransactionDate: date(2025, 3, 3), Today: date(2025, 3, 7)})

	assert.Equal(t, date(2025, 3, 7), rec.SLADueDate)
	assert.False(t, rec.IsOverdue)
}

func TestStage_Audience(t *testing.T) {
	assert.Equal(t, "user", StageD3.Audience())
	assert.Equal(t, "ap", StageD14.Audience())
	assert.Equal(t, "finance", StageD30.Audience())
	assert.Equal(t, "", StageNone.Audience())
}
