package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/dgallion1/sopmaster/internal/sop"
)

// PartsHeader is the header row written to and expected in parts CSV files.
var PartsHeader = []string{"Part Number", "Part Name", "Description", "Quantity"}

const (
	colNumber = iota
	colName
	colDescription
	colQuantity
)

var partColumns = map[string]int{
	"partnumber":      colNumber,
	"partno":          colNumber,
	"number":          colNumber,
	"pn":              colNumber,
	"partname":        colName,
	"name":            colName,
	"description":     colDescription,
	"partdescription": colDescription,
	"desc":            colDescription,
	"quantity":        colQuantity,
	"qty":             colQuantity,
}

// ErrNoParts is returned for a CSV file without any part rows.
var ErrNoParts = errors.New("no part rows found")

// ReadPartsCSV reads a bill of materials. A recognised header row maps
// columns by name; without one the columns are taken in PartsHeader order.
// Blank rows are skipped.
func ReadPartsCSV(r io.Reader) ([]sop.PartRow, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoParts
	}

	// Default is positional.
	cols := []int{colNumber, colName, colDescription, colQuantity}
	if mapped, ok := headerColumns(records[0]); ok {
		cols = mapped
		records = records[1:]
	}

	var rows []sop.PartRow
	for _, rec := range records {
		var vals [4]string
		for i, cell := range rec {
			if i < len(cols) && cols[i] >= 0 {
				vals[cols[i]] = strings.TrimSpace(cell)
			}
		}
		row := sop.PartRow{PartNumber: vals[colNumber], PartName: vals[colName], Description: vals[colDescription], Quantity: vals[colQuantity]}
		if row.IsBlank() {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoParts
	}
	return rows, nil
}

// headerColumns maps each header cell to a part field, -1 for unknown cells.
// It reports false when no cell names a field.
func headerColumns(header []string) ([]int, bool) {
	cols := make([]int, len(header))
	found := false
	for i, h := range header {
		col, ok := partColumns[headerKey(h)]
		if !ok {
			cols[i] = -1
			continue
		}
		cols[i] = col
		found = true
	}
	return cols, found
}

func headerKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WritePartsCSV writes rows under PartsHeader. Blank rows are left out.
func WritePartsCSV(w io.Writer, rows []sop.PartRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PartsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if r.IsBlank() {
			continue
		}
		if err := cw.Write([]string{r.PartNumber, r.PartName, r.Description, r.Quantity}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
