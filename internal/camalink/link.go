// Package camalink parses the composite CAMA link identifiers embedded
// in the county geometry layer and normalizes municipality-scoped parcel
// IDs into a canonical, structurally comparable key.
package camalink

import "strings"

// Key is a canonical parcel identifier: one element per slash-separated
// segment, leading zeros stripped from numeric segments. Equality is
// segment-wise, never raw string comparison, so "141/005/072" and
// "141/5/72" compare equal once normalized.
type Key []string

// String renders the canonical form, e.g. "141/5/72".
func (k Key) String() string {
	return strings.Join(k, "/")
}

// Equal reports structural equality between two keys.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// Parse extracts a canonical parcel key from a composite link of the
// form "<prefix>-<seg>/<seg>/<seg>". The prefix before the first dash is
// discarded. Returns false for empty, placeholder, or dash-less input:
// an unparseable link yields no key, never a wrong one.
func Parse(raw string) (Key, bool) {
	s := strings.TrimSpace(raw)
	if isPlaceholder(s) {
		return nil, false
	}

	idx := strings.Index(s, "-")
	if idx < 0 {
		return nil, false
	}

	rest := strings.TrimSpace(s[idx+1:])
	if rest == "" {
		return nil, false
	}

	return normalizeSegments(rest), true
}

// NormalizeParcelID canonicalizes a bare parcel-id column value
// ("141/005/072" -> 141/5/72) using the same segment rules as Parse, so
// keys derived from either source compare structurally.
func NormalizeParcelID(raw string) (Key, bool) {
	s := strings.TrimSpace(raw)
	if isPlaceholder(s) {
		return nil, false
	}
	return normalizeSegments(s), true
}

func normalizeSegments(s string) Key {
	segs := strings.Split(s, "/")
	key := make(Key, len(segs))
	for i, seg := range segs {
		key[i] = stripLeadingZeros(strings.TrimSpace(seg))
	}
	return key
}

// stripLeadingZeros strips leading zeros from numeric segments
// ("005" -> "5", "000" -> "0"); non-numeric segments pass through.
func stripLeadingZeros(seg string) string {
	if seg == "" || !isDigits(seg) {
		return seg
	}
	trimmed := strings.TrimLeft(seg, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isPlaceholder(s string) bool {
	switch strings.ToUpper(s) {
	case "", "NONE", "NAN", "NULL", "N/A":
		return true
	}
	return false
}
