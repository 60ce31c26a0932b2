package normalize

import (
	"regexp"
	"strings"
)

// Placeholder values that CAMA exports use where no address was recorded.
// "Location" shows up when a header row leaks into the data.
var placeholders = map[string]bool{
	"":         true,
	"NONE":     true,
	"NAN":      true,
	"NULL":     true,
	"N/A":      true,
	"LOCATION": true,
}

// Unit/suite markers. Everything from the marker onward is dropped,
// including the unit value itself: "10 MAIN ST APT 4" -> "10 MAIN ST".
var reUnitMarker = regexp.MustCompile(`(?i)(\bUNIT\b|\bAPT\b|\bAPARTMENT\b|\bSUITE\b|\bSTE\b|#)`)

// Street-type abbreviation table, USPS style. Applied token-wise after
// uppercasing so "AVENUE" and "Avenue" both land on "AVE".
var streetAbbrevs = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"AVENU":     "AVE",
	"ROAD":      "RD",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"COURT":     "CT",
	"PLACE":     "PL",
	"BOULEVARD": "BLVD",
	"TERRACE":   "TER",
	"CIRCLE":    "CIR",
	"HIGHWAY":   "HWY",
	"PARKWAY":   "PKWY",
	"SQUARE":    "SQ",
	"TRAIL":     "TRL",
	"TURNPIKE":  "TPKE",
	"EXTENSION": "EXT",
	"CROSSING":  "XING",
	"MOUNTAIN":  "MTN",
	"NORTH":     "N",
	"SOUTH":     "S",
	"EAST":      "E",
	"WEST":      "W",
}

// Address canonicalizes a free-text property address for equality
// comparison. It returns the canonical form and false when the input is
// empty or a known placeholder. Two inputs that normalize identically
// are treated as the same physical location; there is no fuzzy or
// substring matching here.
func Address(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if placeholders[strings.ToUpper(s)] {
		return "", false
	}

	// Truncate at the first unit/apartment/suite marker.
	if loc := reUnitMarker.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}

	s = strings.ToUpper(s)

	// Strip punctuation, preserving spaces so tokens stay separated.
	b := strings.Builder{}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '\t':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for i, tok := range tokens {
		if abbrev, ok := streetAbbrevs[tok]; ok {
			tokens[i] = abbrev
		}
	}

	s = strings.Join(tokens, " ")
	if s == "" || placeholders[s] {
		return "", false
	}
	return s, true
}

// IsBlank reports whether an address is effectively blank after
// normalization.
func IsBlank(raw string) bool {
	_, ok := Address(raw)
	return !ok
}
