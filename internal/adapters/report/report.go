// Package report writes a run's sheets to disk: one JSON bundle for machines
// and one CSV per sheet for people opening the run folder in a spreadsheet.
//
// Values are written raw. Currency formatting is left to whoever renders them.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BundleFile is the JSON bundle written next to the per-sheet CSVs.
const BundleFile = "report.json"

// Sheet is a named table. Each row holds one value per column.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Records returns the sheet rows keyed by column name.
func (s Sheet) Records() []map[string]any {
	out := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		rec := make(map[string]any, len(s.Columns))
		for i, col := range s.Columns {
			if i < len(row) {
				rec[col] = normalize(row[i])
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
	return out
}

// Bundle is the JSON document written to BundleFile.
type Bundle struct {
	RunID       string                      `json:"run_id"`
	GeneratedAt time.Time                   `json:"generated_at"`
	SheetOrder  []string                    `json:"sheet_order"`
	Sheets      map[string][]map[string]any `json:"sheets"`
}

// Writer writes run reports under a base directory.
type Writer struct {
	baseDir string
	logger  *slog.Logger
	now     func() time.Time
}

// NewWriter creates a report writer rooted at baseDir.
func NewWriter(baseDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		baseDir: baseDir,
		logger:  logger.With("system", "report"),
		now:     time.Now,
	}
}

// Write stores sheets in <baseDir>/<runID>/ and returns that directory.
func (w *Writer) Write(runID string, sheets []Sheet) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	dir := filepath.Join(w.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	bundle := Bundle{
		RunID:       runID,
		GeneratedAt: w.now().UTC(),
		SheetOrder:  make([]string, 0, len(sheets)),
		Sheets:      make(map[string][]map[string]any, len(sheets)),
	}

	for _, sheet := range sheets {
		bundle.SheetOrder = append(bundle.SheetOrder, sheet.Name)
		bundle.Sheets[sheet.Name] = sheet.Records()

		path := filepath.Join(dir, sheet.Name+".csv")
		if err := writeCSVFile(path, sheet); err != nil {
			return "", fmt.Errorf("failed to write sheet %s: %w", sheet.Name, err)
		}
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report bundle: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, BundleFile), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report bundle: %w", err)
	}

	w.logger.Info("report written", "run_id", runID, "dir", dir, "sheets", len(sheets))
	return dir, nil
}

func writeCSVFile(path string, sheet Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, sheet); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV writes the sheet as CSV with a header row.
func WriteCSV(out io.Writer, sheet Sheet) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(sheet.Columns); err != nil {
		return err
	}
	record := make([]string, len(sheet.Columns))
	for _, row := range sheet.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// normalize dereferences optional values so JSON shows null or the value.
func normalize(v any) any {
	switch t := v.(type) {
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case *string:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

func cell(v any) string {
	switch t := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
