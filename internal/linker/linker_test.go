package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cama-import/internal/camalink"
	"github.com/cama-import/internal/geometry"
	"github.com/cama-import/internal/source"
)

func testPolygon() *geometry.Polygon {
	return &geometry.Polygon{Rings: []geometry.Ring{{
		{X: -98.5, Y: 32.0},
		{X: -98.5, Y: 32.001},
		{X: -98.499, Y: 32.001},
		{X: -98.499, Y: 32.0},
		{X: -98.5, Y: 32.0},
	}}}
}

func geoRecord(parcelID, link, address string) *source.Record {
	rec := &source.Record{
		Kind:     source.GeoParcel,
		Fields:   map[string]string{},
		Geometry: testPolygon(),
	}
	if parcelID != "" {
		rec.Fields[source.FieldParcelID] = parcelID
		if key, ok := camalink.NormalizeParcelID(parcelID); ok {
			rec.Key = key
		}
	}
	if link != "" {
		rec.Fields[source.FieldCamaLink] = link
		if k, ok := camalink.Parse(link); ok {
			rec.Link = k
		}
	}
	if address != "" {
		rec.Fields[source.FieldAddress] = address
		rec.Address = address
	}
	return rec
}

func cleanedRecordFor(row int, parcelID, address, owner string) *source.Record {
	rec := &source.Record{
		Kind:   source.CleanedSheet,
		Row:    row,
		Fields: map[string]string{},
	}
	if parcelID != "" {
		rec.Fields[source.FieldParcelID] = parcelID
		if key, ok := camalink.NormalizeParcelID(parcelID); ok {
			rec.Key = key
		}
	}
	if address != "" {
		rec.Address = address
	}
	if owner != "" {
		rec.Fields[source.FieldOwnerName] = owner
	}
	return rec
}

func link(t *testing.T, cleaned []*source.Record, geo []*source.Record) ([]*MatchedParcel, *Stats) {
	t.Helper()
	cleanedSet := &source.CleanedSet{Records: cleaned}
	geoSet := &source.GeoSet{Records: geo}
	return New("testville", false).Link(cleanedSet, nil, geoSet)
}

// A geo link "76570-141/005/072" and a cleaned-sheet row with parcel id
// "141/5/72" link via the derived key despite the zero padding.
func TestLinkDerivedMatch(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "141/5/72", "224 OAK AVE", "SMITH JOHN"),
	}
	geo := []*source.Record{
		geoRecord("", "76570-141/005/072", ""),
	}

	parcels, stats := link(t, cleaned, geo)
	require.Len(t, parcels, 1)

	p := parcels[0]
	require.Equal(t, LinkDerived, p.Confidence)
	require.Equal(t, "224 OAK AVE", p.Field(source.FieldAddress))
	require.Equal(t, "SMITH JOHN", p.Field(source.FieldOwnerName))
	require.Equal(t, "141/5/72", p.ParcelID)
	require.Equal(t, 1, stats.LinkDerived)
}

func TestExactKeyBeatsLink(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "141/5/72", "", "SMITH JOHN"),
	}
	geo := []*source.Record{
		geoRecord("141/005/072", "76570-141/005/072", ""),
	}

	parcels, stats := link(t, cleaned, geo)
	require.Equal(t, ExactKey, parcels[0].Confidence)
	require.Equal(t, 1, stats.ExactKey)
}

func TestAddressMatch(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "999/9/9", "224 OAK AVE", "SMITH JOHN"),
	}
	geo := []*source.Record{
		geoRecord("141/5/72", "", "224 OAK AVE"),
	}

	parcels, _ := link(t, cleaned, geo)
	require.Equal(t, AddressMatch, parcels[0].Confidence)
	require.Equal(t, "SMITH JOHN", parcels[0].Field(source.FieldOwnerName))
}

// Two cleaned rows normalize to the same address with owners "A" then
// "B" in file order. The first occurrence wins, deterministically, and
// the duplicate is counted.
func TestDuplicateAddressFirstWins(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "1/1/1", "10 MAIN ST", "A"),
		cleanedRecordFor(1, "2/2/2", "10 MAIN ST", "B"),
	}
	geo := []*source.Record{
		geoRecord("", "", "10 MAIN ST"),
	}
	geo[0].Key = nil
	geo[0].Link, _ = camalink.Parse("X-3/3/3")
	geo[0].Fields[source.FieldCamaLink] = "X-3/3/3"

	parcels, stats := link(t, cleaned, geo)
	require.Equal(t, "A", parcels[0].Field(source.FieldOwnerName))
	require.Equal(t, 1, stats.Duplicates)
}

// A geo record with no parsable link and no address overlap still
// becomes a parcel: geometry only, tagged unmatched.
func TestUnmatchedGeometryOnly(t *testing.T) {
	geo := []*source.Record{
		geoRecord("141/5/72", "", "1 NOWHERE LN"),
	}

	parcels, stats := link(t, nil, geo)
	require.Len(t, parcels, 1)
	require.Equal(t, Unmatched, parcels[0].Confidence)
	require.NotNil(t, parcels[0].Geometry)
	require.Empty(t, parcels[0].Field(source.FieldOwnerName))
	require.Equal(t, 1, stats.Unmatched)
}

// An empty cleaned sheet imports every geo record as unmatched;
// missing enrichment data is not an error.
func TestEmptyCleanedSheet(t *testing.T) {
	geo := []*source.Record{
		geoRecord("1/1/1", "", ""),
		geoRecord("2/2/2", "", ""),
	}

	parcels, stats := link(t, nil, geo)
	require.Len(t, parcels, 2)
	require.Equal(t, 2, stats.Unmatched)
	require.Equal(t, 0, stats.PositionalFallback)
}

// The positional fallback pairs the Nth residual geo parcel (sorted by
// parcel id) with the Nth residual cleaned row (file order) and tags the
// result so it can be audited or excluded.
func TestPositionalFallback(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "", "", "OWNER ONE"),
		cleanedRecordFor(1, "", "", "OWNER TWO"),
	}
	geo := []*source.Record{
		geoRecord("1/1/1", "", ""),
		geoRecord("2/2/2", "", ""),
	}

	parcels, stats := link(t, cleaned, geo)
	require.Equal(t, 2, stats.PositionalFallback)
	require.Equal(t, PositionalFallback, parcels[0].Confidence)
	require.Equal(t, "OWNER ONE", parcels[0].Field(source.FieldOwnerName))
	require.Equal(t, "OWNER TWO", parcels[1].Field(source.FieldOwnerName))
}

// A cleaned row enriches at most one geo anchor. Once claimed by the
// exact-key match it is consumed: a later anchor sharing its address
// falls through to unmatched and the contention is counted.
func TestCleanedRecordClaimedOnce(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "1/1/1", "10 MAIN ST", "A"),
	}
	geo := []*source.Record{
		geoRecord("1/1/1", "", ""),
		geoRecord("9/9/9", "", "10 MAIN ST"),
	}

	parcels, stats := link(t, cleaned, geo)
	require.Len(t, parcels, 2)

	require.Equal(t, ExactKey, parcels[0].Confidence)
	require.Equal(t, "A", parcels[0].Field(source.FieldOwnerName))

	require.Equal(t, Unmatched, parcels[1].Confidence)
	require.Empty(t, parcels[1].Field(source.FieldOwnerName))
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, 1, stats.Unmatched)
}

// Raw-export records are consumed the same way: two anchors resolving to
// the same raw row enrich it into exactly one parcel.
func TestRawRecordClaimedOnce(t *testing.T) {
	rawRec := &source.Record{
		Kind: source.RawExport,
		Fields: map[string]string{
			source.FieldOwnerName: "BROWN PAT",
		},
	}
	rawRec.Key, _ = camalink.NormalizeParcelID("1/1/1")
	rawSet := &source.RawSet{
		Records:    []*source.Record{rawRec},
		BySiteLink: map[string]*source.Record{},
		ByKey:      map[string]*source.Record{"1/1/1": rawRec},
		ByAddress:  map[string]*source.Record{},
	}
	geoSet := &source.GeoSet{Records: []*source.Record{
		geoRecord("1/1/1", "", ""),
		geoRecord("1/1/1", "", ""),
	}}

	parcels, stats := New("testville", false).Link(nil, rawSet, geoSet)
	require.Equal(t, ExactKey, parcels[0].Confidence)
	require.Equal(t, "BROWN PAT", parcels[0].Field(source.FieldOwnerName))
	require.Equal(t, Unmatched, parcels[1].Confidence)
	require.Empty(t, parcels[1].Field(source.FieldOwnerName))
	require.Equal(t, 1, stats.Duplicates)
}

// A cleaned row that duplicates both the key and the address of an
// earlier row counts as one duplicate, not one per index.
func TestDuplicateRowCountedOnce(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "1/1/1", "10 MAIN ST", "A"),
		cleanedRecordFor(1, "1/1/1", "10 MAIN ST", "B"),
	}
	geo := []*source.Record{
		geoRecord("1/1/1", "", ""),
	}

	_, stats := link(t, cleaned, geo)
	require.Equal(t, 1, stats.Duplicates)
}

// Confidence monotonicity: once any field came from a positional
// fallback, the parcel's overall confidence is positional_fallback.
func TestWeakestLinkConfidence(t *testing.T) {
	p := newMatchedParcel("testville", "1/1/1", "", testPolygon())
	require.True(t, p.SetField(source.FieldAddress, "224 OAK AVE", ExactKey))
	require.Equal(t, ExactKey, p.Confidence)

	require.True(t, p.SetField(source.FieldOwnerName, "SMITH JOHN", PositionalFallback))
	require.Equal(t, PositionalFallback, p.Confidence)
}

// A lower-confidence enrichment pass must not clobber a value set by a
// higher-confidence strategy; equal confidence overwrites.
func TestFieldConflictResolution(t *testing.T) {
	p := newMatchedParcel("testville", "1/1/1", "", testPolygon())

	require.True(t, p.SetField(source.FieldAddress, "224 OAK AVE", ExactKey))
	require.False(t, p.SetField(source.FieldAddress, "999 WRONG ST", PositionalFallback))
	require.Equal(t, "224 OAK AVE", p.Field(source.FieldAddress))

	require.True(t, p.SetField(source.FieldAddress, "225 OAK AVE", ExactKey))
	require.Equal(t, "225 OAK AVE", p.Field(source.FieldAddress))
}

// Every geo anchor produces exactly one parcel; geometry is never
// duplicated or dropped.
func TestOneParcelPerGeoRecord(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "1/1/1", "10 MAIN ST", "A"),
	}
	geo := []*source.Record{
		geoRecord("1/1/1", "", ""),
		geoRecord("2/2/2", "", ""),
		geoRecord("3/3/3", "", ""),
	}

	parcels, _ := link(t, cleaned, geo)
	require.Len(t, parcels, 3)
	seen := map[string]bool{}
	for _, p := range parcels {
		require.NotNil(t, p.Geometry)
		require.False(t, seen[p.ParcelID], "duplicate parcel id %s", p.ParcelID)
		seen[p.ParcelID] = true
	}
}

func TestSecondaryRawEnrichment(t *testing.T) {
	cleaned := []*source.Record{
		cleanedRecordFor(0, "141/5/72", "224 OAK AVE", "SMITH JOHN"),
	}
	rawRec := &source.Record{
		Kind: source.RawExport,
		Fields: map[string]string{
			source.FieldTotalValue: "120000",
		},
	}
	rawRec.Link, _ = camalink.Parse("76570-141/005/072")
	rawSet := &source.RawSet{
		Records:    []*source.Record{rawRec},
		BySiteLink: map[string]*source.Record{"141/5/72": rawRec},
		ByKey:      map[string]*source.Record{},
		ByAddress:  map[string]*source.Record{},
	}

	geoSet := &source.GeoSet{Records: []*source.Record{
		geoRecord("", "76570-141/005/072", ""),
	}}
	cleanedSet := &source.CleanedSet{Records: cleaned}

	parcels, _ := New("testville", false).Link(cleanedSet, rawSet, geoSet)
	p := parcels[0]
	require.Equal(t, "120000", p.Field(source.FieldTotalValue))
	require.Equal(t, "SMITH JOHN", p.Field(source.FieldOwnerName))
	require.Equal(t, LinkDerived, p.Confidence)
	require.Contains(t, p.Provenance, "raw_export")
	require.Contains(t, p.Provenance, "cleaned_sheet")
}
