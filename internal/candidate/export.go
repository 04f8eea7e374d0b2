package candidate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNothingToExport is returned instead of writing a header-only file.
var ErrNothingToExport = errors.New("candidate: nothing to export")

// ExportContentType is served with CSV downloads.
const ExportContentType = "text/csv; charset=utf-8"

var csvHeader = []string{
	"ID",
	"Name",
	"Email",
	"Phone",
	"Instagram",
	"LinkedIn",
	"Resume URL",
	"Experience Level",
	"Motivation",
	"Date Idea",
	"Availability",
	"Created At",
}

// CSVOption adjusts WriteCSV.
type CSVOption func(*csvSettings)

type csvSettings struct {
	spreadsheetSafe bool
}

// SpreadsheetSafe prefixes cells that a spreadsheet would evaluate as a
// formula with a single quote. The file then no longer round-trips exactly.
func SpreadsheetSafe(enabled bool) CSVOption {
	return func(s *csvSettings) { s.spreadsheetSafe = enabled }
}

// formulaPrefixes start a formula in Excel, LibreOffice and Google Sheets.
const formulaPrefixes = "=+-@\t\r"

func neutralizeFormula(cell string) string {
	if cell != "" && strings.ContainsRune(formulaPrefixes, rune(cell[0])) {
		return "'" + cell
	}
	return cell
}

// WriteCSV writes items below a fixed header row using standard CSV quoting.
// Cell text is written verbatim unless SpreadsheetSafe is set.
func WriteCSV(w io.Writer, items []Candidate, opts ...CSVOption) error {
	if len(items) == 0 {
		return ErrNothingToExport
	}
	var settings csvSettings
	for _, opt := range opts {
		opt(&settings)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range items {
		record := []string{
			c.ID,
			c.Name,
			c.Email,
			c.Phone,
			c.Instagram,
			c.LinkedIn,
			c.ResumeURL,
			c.ExperienceLevel,
			c.Motivation,
			c.DateIdea,
			c.Availability,
			time.UnixMilli(c.CreatedAt).UTC().Format(time.RFC3339),
		}
		if settings.spreadsheetSafe {
			for i := range record {
				record[i] = neutralizeFormula(record[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", c.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportFilename names the export of one dashboard page taken on date.
func ExportFilename(date time.Time, page int) string {
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("candidates-%s-page-%d.csv", date.UTC().Format("2006-01-02"), page)
}

// FullExportFilename names an export of every record taken on date.
func FullExportFilename(date time.Time) string {
	return fmt.Sprintf("candidates-%s-all.csv", date.UTC().Format("2006-01-02"))
}
