package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/cama-import/internal/camalink"
	"github.com/cama-import/internal/normalize"
)

// RawColumns is the schema mapping for the raw government export. The
// column set varies by municipality, so everything beyond the site link
// and location is optional.
var RawColumns = ColumnMap{
	Required: map[string]string{
		FieldCamaLink: "Site Link",
	},
	Optional: map[string]string{
		FieldParcelID:     "Parcel ID",
		FieldAddress:      "Location",
		FieldOwnerName:    "Owner Name",
		FieldOwnerAddress: "Owner Address",
		FieldLandValue:    "Land Value",
		FieldBldgValue:    "Building Value",
		FieldTotalValue:   "Total Value",
		FieldYearBuilt:    "Year Built",
		FieldBldgArea:     "Finished Area",
		FieldSaleDate:     "Sale Date",
		FieldSalePrice:    "Sale Price",
	},
}

// RawSet is the loaded raw export plus the auxiliary site-link lookup
// used for secondary enrichment after primary matching.
type RawSet struct {
	Records    []*Record
	BySiteLink map[string]*Record
	ByKey      map[string]*Record
	ByAddress  map[string]*Record
	Malformed  int
}

// ReadRawExport loads the delimited government export. The delimiter is
// sniffed from the header line (tab-separated exports are common).
// Unreadable files are fatal; malformed rows are counted and skipped.
func ReadRawExport(path string) (*RawSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open raw export: %v", ErrSourceUnreadable, err)
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	delim, err := sniffDelimiter(buffered)
	if err != nil {
		return nil, fmt.Errorf("%w: raw export: %v", ErrSourceUnreadable, err)
	}

	reader := csv.NewReader(buffered)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read raw export header: %v", ErrSourceUnreadable, err)
	}

	cols, err := RawColumns.Resolve(header)
	if err != nil {
		return nil, fmt.Errorf("%w: raw export: %v", ErrSourceUnreadable, err)
	}

	set := &RawSet{
		BySiteLink: make(map[string]*Record),
		ByKey:      make(map[string]*Record),
		ByAddress:  make(map[string]*Record),
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			set.Malformed++
			continue
		}

		rec := rawRecord(row, cols, len(set.Records))
		if rec == nil {
			set.Malformed++
			continue
		}
		set.Records = append(set.Records, rec)

		// First occurrence wins in every lookup so re-runs resolve
		// duplicates the same way.
		if rec.Link != nil {
			if _, exists := set.BySiteLink[rec.Link.String()]; !exists {
				set.BySiteLink[rec.Link.String()] = rec
			}
		}
		if rec.Key != nil {
			if _, exists := set.ByKey[rec.Key.String()]; !exists {
				set.ByKey[rec.Key.String()] = rec
			}
		}
		if rec.Address != "" {
			if _, exists := set.ByAddress[rec.Address]; !exists {
				set.ByAddress[rec.Address] = rec
			}
		}
	}

	return set, nil
}

// sniffDelimiter peeks at the first line: a tab anywhere in it wins,
// otherwise comma.
func sniffDelimiter(r *bufio.Reader) (rune, error) {
	line, err := r.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, err
	}
	for _, b := range line {
		if b == '\n' {
			break
		}
		if b == '\t' {
			return '\t', nil
		}
	}
	return ',', nil
}

func rawRecord(row []string, cols map[string]int, dataRow int) *Record {
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
		Kind:   RawExport,
		Row:    dataRow,
		Fields: fields,
	}
	if link, ok := camalink.Parse(fields[FieldCamaLink]); ok {
		rec.Link = link
	}
	if key, ok := camalink.NormalizeParcelID(fields[FieldParcelID]); ok {
		rec.Key = key
	}
	if addr, ok := normalize.Address(fields[FieldAddress]); ok {
		rec.Address = addr
	}
	return rec
}
