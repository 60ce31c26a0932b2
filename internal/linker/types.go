// Package linker reconciles the three CAMA sources into one merged,
// geometry-bearing record per real-world parcel. The geo-parcel layer is
// the anchor: every geometry becomes exactly one MatchedParcel, and
// geometry is never duplicated or dropped.
package linker

import (
	"github.com/cama-import/internal/geometry"
)

// Confidence tags the weakest evidentiary basis used to assemble any
// non-geometry field of a merged parcel. Ordering matters: a larger
// value is stronger evidence.
type Confidence int

const (
	Unmatched Confidence = iota
	PositionalFallback
	AddressMatch
	LinkDerived
	ExactKey
)

func (c Confidence) String() string {
	switch c {
	case ExactKey:
		return "exact_key"
	case LinkDerived:
		return "link_derived"
	case AddressMatch:
		return "address_match"
	case PositionalFallback:
		return "positional_fallback"
	case Unmatched:
		return "unmatched"
	}
	return "unknown"
}

// MatchedParcel is the merged output entity: one row per real-world
// parcel, keyed by (parcel_id, municipality). Geometry comes only from
// the geo-parcel anchor; all other fields are enrichment.
type MatchedParcel struct {
	Municipality string
	ParcelID     string
	RawLink      string // original composite link, kept for future re-linking
	Fields       map[string]string
	Geometry     *geometry.Polygon
	Confidence   Confidence
	Provenance   []string

	fieldConf map[string]Confidence
	enriched  bool
}

func newMatchedParcel(municipality, parcelID, rawLink string, geom *geometry.Polygon) *MatchedParcel {
	return &MatchedParcel{
		Municipality: municipality,
		ParcelID:     parcelID,
		RawLink:      rawLink,
		Fields:       make(map[string]string),
		Geometry:     geom,
		Confidence:   Unmatched,
		Provenance:   []string{"geo_parcel"},
		fieldConf:    make(map[string]Confidence),
	}
}

// SetField records a non-geometry field value with the confidence of the
// strategy that produced it. A proposal from a strictly lower-confidence
// strategy than the one that set the existing value is rejected;
// equal-confidence proposals overwrite. Returns whether the value was
// accepted.
func (p *MatchedParcel) SetField(name, value string, conf Confidence) bool {
	if value == "" {
		return false
	}
	if existing, ok := p.fieldConf[name]; ok && conf < existing {
		return false
	}
	p.Fields[name] = value
	p.fieldConf[name] = conf

	// Overall confidence reflects the weakest link that contributed any
	// field, never a stronger tag than the evidence supports.
	if !p.enriched || conf < p.Confidence {
		p.Confidence = conf
	}
	p.enriched = true
	return true
}

// Field returns a non-geometry field value, or "" when unset.
func (p *MatchedParcel) Field(name string) string {
	return p.Fields[name]
}

func (p *MatchedParcel) addProvenance(kind string) {
	for _, existing := range p.Provenance {
		if existing == kind {
			return
		}
	}
	p.Provenance = append(p.Provenance, kind)
}

// Stats summarizes one linking pass over a municipality batch.
type Stats struct {
	Total              int
	ExactKey           int
	LinkDerived        int
	AddressMatch       int
	PositionalFallback int
	Unmatched          int
	Duplicates         int // duplicate rows and contended claims, resolved first-wins
}
