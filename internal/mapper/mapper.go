// Package mapper translates merged parcel records into the typed rows
// the persistence schema expects. Pure and deterministic: a field that
// fails numeric or date parsing becomes null and is counted, never fatal
// to the record.
package mapper

import (
	"strconv"
	"strings"
	"time"

	"github.com/cama-import/internal/linker"
	"github.com/cama-import/internal/source"
)

// ParcelRow is the target-schema shape of one parcel, ready for upsert.
// Pointer fields are nullable columns.
type ParcelRow struct {
	Municipality string
	ParcelID     string
	CamaLink     *string
	Address      *string
	OwnerName    *string
	OwnerAddress *string

	LandValue     *float64
	BuildingValue *float64
	TotalValue    *float64
	YearBuilt     *int
	BuildingArea  *float64
	SalePrice     *float64
	SaleDate      *time.Time

	GeometryWKT string
	Confidence  string
	Provenance  string
}

// Stats counts the per-field parse failures across one mapping pass.
type Stats struct {
	BadNumeric  int
	BadDate     int
	BadGeometry int
}

// MapToSchema maps one merged parcel to a ParcelRow. Geometry failure is
// the only per-record fatal condition (a parcel with no serializable
// geometry is not a property); it is reported via the bool return and
// counted.
func MapToSchema(p *linker.MatchedParcel, stats *Stats) (ParcelRow, bool) {
	wkt, err := p.Geometry.WKT()
	if err != nil {
		stats.BadGeometry++
		return ParcelRow{}, false
	}

	row := ParcelRow{
		Municipality: p.Municipality,
		ParcelID:     p.ParcelID,
		CamaLink:     optString(p.RawLink),
		Address:      optString(p.Field(source.FieldAddress)),
		OwnerName:    optString(p.Field(source.FieldOwnerName)),
		OwnerAddress: optString(p.Field(source.FieldOwnerAddress)),
		GeometryWKT:  wkt,
		Confidence:   p.Confidence.String(),
		Provenance:   strings.Join(p.Provenance, ","),
	}

	row.LandValue = parseMoney(p.Field(source.FieldLandValue), stats)
	row.BuildingValue = parseMoney(p.Field(source.FieldBldgValue), stats)
	row.TotalValue = parseMoney(p.Field(source.FieldTotalValue), stats)
	row.BuildingArea = parseMoney(p.Field(source.FieldBldgArea), stats)
	row.SalePrice = parseMoney(p.Field(source.FieldSalePrice), stats)
	row.YearBuilt = parseYear(p.Field(source.FieldYearBuilt), stats)
	row.SaleDate = parseDate(p.Field(source.FieldSaleDate), stats)

	return row, true
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseMoney parses assessment figures, tolerating currency symbols and
// thousands separators ("$1,234.50").
func parseMoney(s string, stats *Stats) *float64 {
	if s == "" {
		return nil
	}
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if cleaned == "" {
		stats.BadNumeric++
		return nil
	}
	f, err := parseFloat(cleaned)
	if err != nil {
		stats.BadNumeric++
		return nil
	}
	return &f
}

func parseYear(s string, stats *Stats) *int {
	if s == "" {
		return nil
	}
	f, err := parseFloat(strings.TrimSpace(s))
	if err != nil || f < 1000 || f > 3000 {
		stats.BadNumeric++
		return nil
	}
	y := int(f)
	return &y
}

// Date formats seen across municipal exports, tried in order.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"2006-01-02 15:04:05",
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string, stats *Stats) *time.Time {
	if s == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, strings.TrimSpace(s)); err == nil {
			return &t
		}
	}
	stats.BadDate++
	return nil
}
