package importer

import (
	"fmt"
	"io"
)

// sampleLimit bounds the audit samples included in a report.
const sampleLimit = 10

// Report is the coverage report for one municipality import run. Every
// recovered error class is surfaced here; nothing is silently swallowed.
type Report struct {
	Municipality string
	DryRun       bool

	Total              int
	ExactKey           int
	LinkDerived        int
	AddressMatch       int
	PositionalFallback int
	Unmatched          int

	MissingOwner   int
	MissingAddress int

	Inserted      int
	Updated       int
	FailedBatches int
	FailedRows    int

	MalformedRecords   int
	DegenerateGeometry int
	Duplicates         int
	BadNumeric         int
	BadDate            int

	// Parcel ids sampled for manual audit.
	SampleUnmatched []string
	SampleFallback  []string
}

// Print writes the human-readable coverage report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== Import Report: %s ===\n", r.Municipality)
	if r.DryRun {
		fmt.Fprintf(w, "(dry run - no writes performed)\n")
	}
	fmt.Fprintf(w, "Total Parcels: %d\n", r.Total)

	fmt.Fprintf(w, "\nMatch Confidence:\n")
	fmt.Fprintf(w, "  exact_key           %6d (%5.1f%%)\n", r.ExactKey, r.pct(r.ExactKey))
	fmt.Fprintf(w, "  link_derived        %6d (%5.1f%%)\n", r.LinkDerived, r.pct(r.LinkDerived))
	fmt.Fprintf(w, "  address_match       %6d (%5.1f%%)\n", r.AddressMatch, r.pct(r.AddressMatch))
	fmt.Fprintf(w, "  positional_fallback %6d (%5.1f%%)\n", r.PositionalFallback, r.pct(r.PositionalFallback))
	fmt.Fprintf(w, "  unmatched           %6d (%5.1f%%)\n", r.Unmatched, r.pct(r.Unmatched))

	fmt.Fprintf(w, "\nField Coverage:\n")
	fmt.Fprintf(w, "  missing owner:   %d\n", r.MissingOwner)
	fmt.Fprintf(w, "  missing address: %d\n", r.MissingAddress)

	fmt.Fprintf(w, "\nData Quality:\n")
	fmt.Fprintf(w, "  malformed records:   %d\n", r.MalformedRecords)
	fmt.Fprintf(w, "  degenerate geometry: %d\n", r.DegenerateGeometry)
	fmt.Fprintf(w, "  duplicates:          %d\n", r.Duplicates)
	fmt.Fprintf(w, "  bad numeric fields:  %d\n", r.BadNumeric)
	fmt.Fprintf(w, "  bad date fields:     %d\n", r.BadDate)

	fmt.Fprintf(w, "\nWrites:\n")
	fmt.Fprintf(w, "  inserted: %d\n", r.Inserted)
	fmt.Fprintf(w, "  updated:  %d\n", r.Updated)
	if r.FailedBatches > 0 {
		fmt.Fprintf(w, "  FAILED batches: %d (%d rows not written)\n", r.FailedBatches, r.FailedRows)
	}

	if len(r.SampleUnmatched) > 0 {
		fmt.Fprintf(w, "\nUnmatched sample (for audit):\n")
		for _, id := range r.SampleUnmatched {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	if len(r.SampleFallback) > 0 {
		fmt.Fprintf(w, "\nPositional-fallback sample (for audit):\n")
		for _, id := range r.SampleFallback {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
}

func (r *Report) pct(n int) float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(n) / float64(r.Total) * 100
}
