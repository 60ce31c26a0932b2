package source

import (
	"fmt"
	"sort"

	shp "github.com/jonas-p/go-shp"

	"github.com/cama-import/internal/camalink"
	"github.com/cama-import/internal/geometry"
	"github.com/cama-import/internal/normalize"
)

// DBF attribute names carried by the county parcel layer. DBF field
// names are limited to ten characters, hence the terse forms.
const (
	geoFieldParcelID = "PARCEL_ID"
	geoFieldCamaLink = "CAMA_LINK"
	geoFieldLocation = "LOCATION"
)

// GeoSet is the loaded parcel geometry layer, the geometry source of
// truth. Records are sorted by canonical parcel id so downstream
// processing is order-stable across runs.
type GeoSet struct {
	Records    []*Record
	Degenerate int // polygons dropped for failing geometry validation
	Malformed  int // rows with unusable shape types or no identifier at all
}

// ReadGeoParcels loads the parcel shapefile, reprojects every ring from
// the state-plane CRS to WGS84, reduces Z/M shapes to 2-D, and drops
// records whose geometry is degenerate. An unreadable shapefile or a
// layer missing its attribute fields is fatal.
func ReadGeoParcels(path string) (*GeoSet, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open parcel shapefile: %v", ErrSourceUnreadable, err)
	}
	defer r.Close()

	fields := r.Fields()
	parcelIdx, linkIdx, locIdx := -1, -1, -1
	for i, f := range fields {
		switch f.String() {
		case geoFieldParcelID:
			parcelIdx = i
		case geoFieldCamaLink:
			linkIdx = i
		case geoFieldLocation:
			locIdx = i
		}
	}
	if parcelIdx < 0 || linkIdx < 0 {
		return nil, fmt.Errorf("%w: parcel shapefile missing %s/%s attributes",
			ErrSourceUnreadable, geoFieldParcelID, geoFieldCamaLink)
	}

	set := &GeoSet{}
	row := 0
	for r.Next() {
		idx, shape := r.Shape()

		poly, ok := polygonFromShape(shape)
		if !ok {
			set.Malformed++
			row++
			continue
		}
		if !poly.Valid() {
			set.Degenerate++
			row++
			continue
		}

		fieldsMap := map[string]string{}
		if v := r.ReadAttribute(idx, parcelIdx); v != "" {
			fieldsMap[FieldParcelID] = v
		}
		if v := r.ReadAttribute(idx, linkIdx); v != "" {
			fieldsMap[FieldCamaLink] = v
		}
		if locIdx >= 0 {
			if v := r.ReadAttribute(idx, locIdx); v != "" {
				fieldsMap[FieldAddress] = v
			}
		}

		rec := &Record{
			Kind:     GeoParcel,
			Row:      row,
			Fields:   fieldsMap,
			Geometry: poly,
		}
		if key, ok := camalink.NormalizeParcelID(fieldsMap[FieldParcelID]); ok {
			rec.Key = key
		}
		if link, ok := camalink.Parse(fieldsMap[FieldCamaLink]); ok {
			rec.Link = link
		}
		if addr, ok := normalize.Address(fieldsMap[FieldAddress]); ok {
			rec.Address = addr
		}

		if rec.Key == nil && rec.Link == nil {
			// A geometry with no identifier at all can never be keyed
			// or re-linked later.
			set.Malformed++
			row++
			continue
		}

		set.Records = append(set.Records, rec)
		row++
	}

	sort.SliceStable(set.Records, func(i, j int) bool {
		return sortKey(set.Records[i]) < sortKey(set.Records[j])
	})

	return set, nil
}

func sortKey(r *Record) string {
	if r.Key != nil {
		return r.Key.String()
	}
	if r.Link != nil {
		return r.Link.String()
	}
	return ""
}

// polygonFromShape converts the supported shapefile polygon variants to
// the 2-D WGS84 polygon model. PolygonZ and PolygonM carry their
// elevation/measure arrays separately in the shapefile format, so
// reading just Parts and Points reduces them to 2-D.
func polygonFromShape(shape shp.Shape) (*geometry.Polygon, bool) {
	var parts []int32
	var points []shp.Point

	switch s := shape.(type) {
	case *shp.Polygon:
		parts, points = s.Parts, s.Points
	case *shp.PolygonZ:
		parts, points = s.Parts, s.Points
	case *shp.PolygonM:
		parts, points = s.Parts, s.Points
	default:
		return nil, false
	}

	return PolygonFromParts(parts, points), true
}

// PolygonFromParts splits the flat shapefile point array into rings and
// reprojects each ring to WGS84.
func PolygonFromParts(parts []int32, points []shp.Point) *geometry.Polygon {
	numParts := len(parts)
	poly := &geometry.Polygon{}

	for partIdx := 0; partIdx < numParts; partIdx++ {
		start := parts[partIdx]
		end := int32(len(points))
		if partIdx+1 < numParts {
			end = parts[partIdx+1]
		}
		if end <= start {
			continue
		}

		ring := make(geometry.Ring, 0, end-start)
		for i := start; i < end; i++ {
			ring = append(ring, geometry.Point{X: points[i].X, Y: points[i].Y})
		}
		geometry.ReprojectRing(ring)
		poly.Rings = append(poly.Rings, ring.Close())
	}

	return poly
}
