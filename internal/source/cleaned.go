package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cama-import/internal/camalink"
	"github.com/cama-import/internal/normalize"
)

// CleanedColumns is the schema mapping for the human-cleaned spreadsheet
// (exported to CSV). Assessment/building columns vary by municipality
// and are optional; the identity columns are not.
var CleanedColumns = ColumnMap{
	Required: map[string]string{
		FieldParcelID:  "Parcel ID",
		FieldAddress:   "Property Address",
		FieldOwnerName: "Full Name",
	},
	Optional: map[string]string{
		FieldOwnerAddress: "Owner Address",
		FieldLandValue:    "Land Value",
		FieldBldgValue:    "Building Value",
		FieldTotalValue:   "Total Value",
		FieldYearBuilt:    "Year Built",
		FieldBldgArea:     "Building SqFt",
		FieldSaleDate:     "Sale Date",
		FieldSalePrice:    "Sale Price",
	},
}

// CleanedSet is the loaded cleaned sheet. Records preserve original row
// order, which the positional fallback and duplicate tie-break both
// depend on.
type CleanedSet struct {
	Records   []*Record
	Malformed int
	Skipped   int // non-data tracking rows dropped from the top
}

// ReadCleanedSheet loads the cleaned spreadsheet CSV. An unreadable file
// or missing required column is fatal (ErrSourceUnreadable); individual
// bad rows are counted and skipped. A sheet with zero data rows is a
// valid, empty set.
func ReadCleanedSheet(path string) (*CleanedSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open cleaned sheet: %v", ErrSourceUnreadable, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read cleaned sheet header: %v", ErrSourceUnreadable, err)
	}

	cols, err := CleanedColumns.Resolve(header)
	if err != nil {
		return nil, fmt.Errorf("%w: cleaned sheet: %v", ErrSourceUnreadable, err)
	}

	set := &CleanedSet{}
	row := 0
	for {
		raw, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			set.Malformed++
			row++
			continue
		}

		// The first row is sometimes a tracking/marker row left over
		// from the manual cleanup, not data.
		if row == 0 && isTrackingRow(raw, cols) {
			set.Skipped++
			row++
			continue
		}

		rec := cleanedRecord(raw, cols, len(set.Records))
		if rec == nil {
			set.Malformed++
			row++
			continue
		}
		set.Records = append(set.Records, rec)
		row++
	}

	return set, nil
}

// isTrackingRow applies the header-row heuristic: the owner-name column
// of a marker row contains "owner" or "replaced".
func isTrackingRow(row []string, cols map[string]int) bool {
	owner := strings.ToLower(cell(row, cols, FieldOwnerName))
	return strings.Contains(owner, "owner") || strings.Contains(owner, "replaced")
}

func cleanedRecord(row []string, cols map[string]int, dataRow int) *Record {
	fields := make(map[string]string)
	for field := range cols {
		if v := cell(row, cols, field); v != "" {
			fields[field] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}

	rec := &Record{
		Kind:   CleanedSheet,
		Row:    dataRow,
		Fields: fields,
	}
	if key, ok := camalink.NormalizeParcelID(fields[FieldParcelID]); ok {
		rec.Key = key
	}
	if addr, ok := normalize.Address(fields[FieldAddress]); ok {
		rec.Address = addr
	}
	return rec
}
