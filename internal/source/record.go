// Package source loads the three CAMA inputs (the human-cleaned
// spreadsheet, the raw government export, and the geographic parcel
// layer) into a uniform record shape. Column-name translation happens
// here: the linker only ever sees canonical field names.
package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cama-import/internal/camalink"
	"github.com/cama-import/internal/geometry"
)

// Kind identifies which of the three sources a record came from.
type Kind int

const (
	CleanedSheet Kind = iota
	RawExport
	GeoParcel
)

func (k Kind) String() string {
	switch k {
	case CleanedSheet:
		return "cleaned_sheet"
	case RawExport:
		return "raw_export"
	case GeoParcel:
		return "geo_parcel"
	}
	return "unknown"
}

// ErrSourceUnreadable marks a fatal input condition: a missing, corrupt,
// or structurally invalid source file. The run must abort before any
// writes when this is returned.
var ErrSourceUnreadable = errors.New("source unreadable")

// Record is one row from one source, immutable once read. Fields holds
// raw values under canonical names; Key/Link/Address are the normalized
// natural-key candidates used by the linker.
type Record struct {
	Kind     Kind
	Row      int // original data-row position, zero-based
	Fields   map[string]string
	Key      camalink.Key // normalized parcel-id column, nil when absent
	Link     camalink.Key // key parsed from the composite CAMA link, nil when absent
	Address  string       // normalized address, "" when blank/placeholder
	Geometry *geometry.Polygon
}

// Canonical field names used across all three readers.
const (
	FieldParcelID     = "parcel_id"
	FieldCamaLink     = "cama_link"
	FieldAddress      = "address"
	FieldOwnerName    = "owner_name"
	FieldOwnerAddress = "owner_address"
	FieldLandValue    = "land_value"
	FieldBldgValue    = "building_value"
	FieldTotalValue   = "total_value"
	FieldYearBuilt    = "year_built"
	FieldBldgArea     = "building_area"
	FieldSaleDate     = "sale_date"
	FieldSalePrice    = "sale_price"
)

// ColumnMap is the explicit, ordered schema mapping for one source kind:
// canonical field name → expected header. It is validated against the
// actual header at load time so a missing or renamed required column
// fails fast with a clear diagnostic instead of silently yielding nulls.
type ColumnMap struct {
	Required map[string]string
	Optional map[string]string
}

// Resolve matches the map against a header row and returns canonical
// field name → column index for every column actually present. A missing
// required column is an error; missing optional columns are skipped.
func (cm ColumnMap) Resolve(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}

	resolved := make(map[string]int, len(cm.Required)+len(cm.Optional))
	for field, col := range cm.Required {
		i, ok := index[normalizeHeader(col)]
		if !ok {
			return nil, fmt.Errorf("required column %q (field %s) not found in header", col, field)
		}
		resolved[field] = i
	}
	for field, col := range cm.Optional {
		if i, ok := index[normalizeHeader(col)]; ok {
			resolved[field] = i
		}
	}
	return resolved, nil
}

// normalizeHeader makes header comparison tolerant of case and the
// space/underscore drift between municipal export versions.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	h = strings.ReplaceAll(h, "_", " ")
	return strings.Join(strings.Fields(h), " ")
}

// cell returns the value at the resolved column, or "" when the column
// is absent or the row is short (raw exports vary in width).
func cell(row []string, cols map[string]int, field string) string {
	i, ok := cols[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
