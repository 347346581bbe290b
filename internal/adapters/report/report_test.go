package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	rate := 83.1
	var missing *float64
	sheet := Sheet{
		Name:    "FX_Annotated",
		Columns: []string{"id", "narration", "rate", "markup", "flagged", "date"},
		Rows: [][]any{
			{"s:2", "AMAZON US, SEATTLE", &rate, missing, true, time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC)},
			{"s:3", "UBER"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sheet))

	want := "id,narration,rate,markup,flagged,date\n" +
		"s:2,\"AMAZON US, SEATTLE\",83.1,,true,2025-09-20T00:00:00Z\n" +
		"s:3,UBER,,,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriter_Write(t *testing.T) {
	// Arrange
	base := t.TempDir()
	w := NewWriter(base, nil)
	w.now = func() time.Time { return time.Date(2025, 9, 20, 8, 0, 0, 0, time.UTC) }

	sheets := []Sheet{
		{Name: "Summary", Columns: []string{"metric", "value"}, Rows: [][]any{{"stripe_flags", 2}}},
		{Name: "Stripe_Flags", Columns: []string{"flag_id", "severity"}},
	}

	// Act
	dir, err := w.Write("20250920_080000", sheets)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "20250920_080000"), dir)

	for _, name := range []string{"Summary.csv", "Stripe_Flags.csv", BundleFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, BundleFile))
	require.NoError(t, err)

	var bundle Bundle
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.Equal(t, "20250920_080000", bundle.RunID)
	assert.Equal(t, []string{"Summary", "Stripe_Flags"}, bundle.SheetOrder)
	require.Len(t, bundle.Sheets["Summary"], 1)
	assert.Equal(t, "stripe_flags", bundle.Sheets["Summary"][0]["metric"])
	assert.Equal(t, 2.0, bundle.Sheets["Summary"][0]["value"])
	assert.Empty(t, bundle.Sheets["Stripe_Flags"])

	empty, err := os.ReadFile(filepath.Join(dir, "Stripe_Flags.csv"))
	require.NoError(t, err)
	assert.Equal(t, "flag_id,severity\n", string(empty))
}

func TestWriter_RequiresRunID(t *testing.T) {
	_, err := NewWriter(t.TempDir(), nil).Write("", nil)
	assert.Error(t, err)
}
