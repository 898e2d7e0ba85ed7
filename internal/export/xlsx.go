// Package export moves prediction history in and out of spreadsheets.
package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/multiplier-cli/internal/model"
)

// SheetName is the worksheet holding history rows.
const SheetName = "history"

// Header is the first row of an exported workbook.
var Header = []string{"id", "created_at", "source", "text", "multipliers", "prediction"}

// WriteHistory saves entries to a new workbook at path.
func WriteHistory(path string, entries []model.HistoryEntry) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}

	for _, e := range entries {
		row := sheet.AddRow()
		row.AddCell().SetString(e.ID)
		row.AddCell().SetString(e.CreatedAt.UTC().Format(time.RFC3339Nano))
		row.AddCell().SetString(string(e.Source))
		row.AddCell().SetString(e.Text)
		row.AddCell().SetString(FormatMultipliers(e.Multipliers))
		row.AddCell().SetFloat(e.Prediction)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadHistory loads entries from a workbook written by WriteHistory.
func ReadHistory(path string) ([]model.HistoryEntry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, ok := f.Sheet[SheetName]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", SheetName)
	}

	var entries []model.HistoryEntry
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		e, err := parseRow(cells)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", i+1)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FormatMultipliers renders values as a space-separated list.
func FormatMultipliers(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parseMultipliers(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse multiplier %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseRow(cells []string) (model.HistoryEntry, error) {
	var e model.HistoryEntry
	for len(cells) < len(Header) {
		cells = append(cells, "")
	}

	e.ID = strings.TrimSpace(cells[0])
	if ts := strings.TrimSpace(cells[1]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return e, eris.Wrapf(err, "parse created_at %q", ts)
		}
		e.CreatedAt = t
	}

	src, err := model.ParseSourceOrder(strings.TrimSpace(cells[2]))
	if err != nil {
		return e, err
	}
	e.Source = src
	e.Text = cells[3]

	if e.Multipliers, err = parseMultipliers(cells[4]); err != nil {
		return e, err
	}
	if p := strings.TrimSpace(cells[5]); p != "" {
		if e.Prediction, err = strconv.ParseFloat(p, 64); err != nil {
			return e, eris.Wrapf(err, "parse prediction %q", p)
		}
	}
	return e, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
