package linker

import (
	"github.com/cama-import/internal/camalink"
	"github.com/cama-import/internal/debug"
	"github.com/cama-import/internal/source"
)

// Enrichment fields copied from a matched source record, in the order
// they are applied.
var enrichFields = []string{
	source.FieldOwnerName,
	source.FieldOwnerAddress,
	source.FieldLandValue,
	source.FieldBldgValue,
	source.FieldTotalValue,
	source.FieldYearBuilt,
	source.FieldBldgArea,
	source.FieldSaleDate,
	source.FieldSalePrice,
}

// Linker matches geo-parcel anchors against the cleaned sheet and raw
// export for one municipality. Lookup indices are built once, single
// threaded, before any matching begins: tie-break and duplicate handling
// need the complete index to be deterministic.
type Linker struct {
	municipality string
	verbose      bool
}

func New(municipality string, verbose bool) *Linker {
	return &Linker{municipality: municipality, verbose: verbose}
}

// Link produces exactly one MatchedParcel per geo record. Strategies run
// in strict priority order per anchor (exact key, link-derived, address),
// then a municipality-wide positional fallback over the residual, then
// a site-link enrichment pass from the raw export. Anything left is
// stored geometry-only as unmatched. A cleaned or raw record is consumed
// by its first match: a later anchor hitting the same record falls
// through to a weaker strategy instead of duplicating the enrichment.
func (l *Linker) Link(cleaned *source.CleanedSet, raw *source.RawSet, geo *source.GeoSet) ([]*MatchedParcel, *Stats) {
	defer debug.Timing(l.verbose, "link "+l.municipality)()

	if cleaned == nil {
		cleaned = &source.CleanedSet{}
	}
	if raw == nil {
		raw = &source.RawSet{
			BySiteLink: map[string]*source.Record{},
			ByKey:      map[string]*source.Record{},
			ByAddress:  map[string]*source.Record{},
		}
	}

	stats := &Stats{Total: len(geo.Records)}

	cleanedByKey, cleanedByAddr := l.buildCleanedIndexes(cleaned, stats)
	usedCleaned := make(map[*source.Record]bool)
	usedRaw := make(map[*source.Record]bool)

	parcels := make([]*MatchedParcel, 0, len(geo.Records))
	var unmatchedGeo []*MatchedParcel

	for _, rec := range geo.Records {
		parcel := newMatchedParcel(l.municipality, parcelID(rec), rec.Fields[source.FieldCamaLink], rec.Geometry)
		parcels = append(parcels, parcel)

		// Strategy 1: the geo layer's own parcel identifier appears as
		// a primary key in the cleaned sheet or raw export.
		if rec.Key != nil {
			if c, ok := cleanedByKey[rec.Key.String()]; ok && claim(c, usedCleaned, stats) {
				l.enrich(parcel, c, ExactKey)
				continue
			}
			if r, ok := raw.ByKey[rec.Key.String()]; ok && claim(r, usedRaw, stats) {
				l.enrich(parcel, r, ExactKey)
				continue
			}
		}

		// Strategy 2: key derived from the composite CAMA link, looked
		// up against the cleaned sheet's identifier column.
		if rec.Link != nil {
			if c, ok := cleanedByKey[rec.Link.String()]; ok && claim(c, usedCleaned, stats) {
				l.enrich(parcel, c, LinkDerived)
				continue
			}
		}

		// Strategy 3: exact normalized-address equality. Substring and
		// ends-with matching produced false positives on this data and
		// are deliberately absent.
		if rec.Address != "" {
			if c, ok := cleanedByAddr[rec.Address]; ok && claim(c, usedCleaned, stats) {
				l.enrich(parcel, c, AddressMatch)
				continue
			}
			if r, ok := raw.ByAddress[rec.Address]; ok && claim(r, usedRaw, stats) {
				l.enrich(parcel, r, AddressMatch)
				continue
			}
		}

		unmatchedGeo = append(unmatchedGeo, parcel)
	}

	// Strategy 4: positional fallback over the residual on both sides.
	// Geo residual is already sorted by parcel id (the reader sorts);
	// cleaned residual keeps original row order. Order-dependent and
	// known-unsound, so every pairing is tagged for audit.
	l.positionalFallback(unmatchedGeo, cleaned, usedCleaned)

	// Secondary enrichment: fill remaining gaps from the raw export via
	// the site-link lookup. Field-level conflict resolution keeps a
	// lower-confidence pass from clobbering stronger values.
	for _, parcel := range parcels {
		if parcel.RawLink == "" {
			continue
		}
		key := linkKeyOf(parcel.RawLink)
		if key == "" {
			continue
		}
		if r, ok := raw.BySiteLink[key]; ok {
			l.enrich(parcel, r, LinkDerived)
		}
	}

	for _, parcel := range parcels {
		switch parcel.Confidence {
		case ExactKey:
			stats.ExactKey++
		case LinkDerived:
			stats.LinkDerived++
		case AddressMatch:
			stats.AddressMatch++
		case PositionalFallback:
			stats.PositionalFallback++
		default:
			stats.Unmatched++
		}
	}

	debug.Output(l.verbose, "linked %d parcels: %d exact, %d link, %d address, %d positional, %d unmatched, %d duplicates",
		stats.Total, stats.ExactKey, stats.LinkDerived, stats.AddressMatch,
		stats.PositionalFallback, stats.Unmatched, stats.Duplicates)

	return parcels, stats
}

// claim consumes a source record for exactly one geo anchor. A record
// that already enriched an earlier anchor is contention: counted like a
// duplicate, and the caller falls through to a weaker strategy.
func claim(rec *source.Record, used map[*source.Record]bool, stats *Stats) bool {
	if used[rec] {
		stats.Duplicates++
		return false
	}
	used[rec] = true
	return true
}

// buildCleanedIndexes builds the by-key and by-address indices over the
// cleaned sheet. When several rows normalize to the same key or address
// the first occurrence in file order wins, deterministically, and the
// duplicate row is counted once rather than silently ignored.
func (l *Linker) buildCleanedIndexes(cleaned *source.CleanedSet, stats *Stats) (map[string]*source.Record, map[string]*source.Record) {
	byKey := make(map[string]*source.Record, len(cleaned.Records))
	byAddr := make(map[string]*source.Record, len(cleaned.Records))

	for _, rec := range cleaned.Records {
		dup := false
		if rec.Key != nil {
			k := rec.Key.String()
			if _, exists := byKey[k]; exists {
				dup = true
			} else {
				byKey[k] = rec
			}
		}
		if rec.Address != "" {
			if _, exists := byAddr[rec.Address]; exists {
				dup = true
			} else {
				byAddr[rec.Address] = rec
			}
		}
		if dup {
			stats.Duplicates++
		}
	}
	return byKey, byAddr
}

// positionalFallback pairs the Nth unmatched geo parcel with the Nth
// unmatched cleaned row. Acceptable only when strategies 1-3 left a
// residual on both sides and no better evidence exists.
func (l *Linker) positionalFallback(unmatchedGeo []*MatchedParcel, cleaned *source.CleanedSet, usedCleaned map[*source.Record]bool) {
	var residual []*source.Record
	for _, rec := range cleaned.Records {
		if !usedCleaned[rec] {
			residual = append(residual, rec)
		}
	}

	n := len(unmatchedGeo)
	if len(residual) < n {
		n = len(residual)
	}
	for i := 0; i < n; i++ {
		l.enrich(unmatchedGeo[i], residual[i], PositionalFallback)
		usedCleaned[residual[i]] = true
	}
}

// enrich copies address, owner, and assessment fields from a matched
// source record into the parcel at the given confidence. Only fields the
// conflict-resolution rule accepts contribute to (and can weaken) the
// parcel's overall confidence.
func (l *Linker) enrich(parcel *MatchedParcel, rec *source.Record, conf Confidence) {
	accepted := false
	if rec.Address != "" && parcel.SetField(source.FieldAddress, rec.Address, conf) {
		accepted = true
	}
	for _, field := range enrichFields {
		if v := rec.Fields[field]; v != "" && parcel.SetField(field, v, conf) {
			accepted = true
		}
	}
	if accepted {
		parcel.addProvenance(rec.Kind.String())
	}
}

func parcelID(rec *source.Record) string {
	if rec.Key != nil {
		return rec.Key.String()
	}
	return rec.Link.String()
}

// linkKeyOf re-parses a stored composite link into its canonical key
// string for the site-link lookup.
func linkKeyOf(rawLink string) string {
	key, ok := camalink.Parse(rawLink)
	if !ok {
		return ""
	}
	return key.String()
}
